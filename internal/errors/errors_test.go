package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestError_Format(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  New(StageLoad, KindParse).Build(),
			want: "[load] parse_error",
		},
		{
			name: "subject and detail",
			err:  TraceFailed("Spacing", "unsupported field type"),
			want: "[trace] trace_failed Spacing: unsupported field type",
		},
		{
			name: "cause",
			err:  IO(StageEmit, "out/Vec2.g.cs", fs.ErrPermission),
			want: "[emit] io_error out/Vec2.g.cs (caused by: permission denied)",
		},
		{
			name: "formatted detail",
			err:  New(StageWire, KindDecode).Detail("variant index %d out of range", 2).Build(),
			want: "[wire] decode_error: variant index 2 out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("loading: %w", DanglingID(42, "impl 7"))

	if !stderrors.Is(err, ErrDanglingID) {
		t.Error("expected kind-only sentinel to match")
	}
	if !stderrors.Is(err, &Error{Stage: StageMerge, Kind: KindDanglingID}) {
		t.Error("expected stage+kind to match")
	}
	if stderrors.Is(err, &Error{Stage: StageLoad, Kind: KindDanglingID}) {
		t.Error("different stage should not match")
	}
	if stderrors.Is(err, ErrParse) {
		t.Error("different kind should not match")
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	err := Parse("egui.json", fs.ErrNotExist)
	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Error("expected cause to be reachable")
	}
}

func TestKind_Fatal(t *testing.T) {
	t.Parallel()
	if KindUnsupportedSignature.Fatal() || KindUnsupportedField.Fatal() {
		t.Error("unsupported diagnostics must not be fatal")
	}
	if !KindTraceFailed.Fatal() || !KindParse.Fatal() {
		t.Error("trace and parse failures must be fatal")
	}
}

func TestBindingMissing(t *testing.T) {
	t.Parallel()
	got := BindingMissing(7, "egui_style_Spacing_default").Error()
	want := "[runtime] binding_missing ordinal 7: no invoker registered for egui_style_Spacing_default"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
