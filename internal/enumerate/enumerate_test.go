package enumerate

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jcdickinson/eguinet/internal/config"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
	"github.com/jcdickinson/eguinet/internal/tracer"
)

var allKeys = []string{
	"egui_containers_frame_Frame_frame",
	"egui_containers_frame_Frame_new",
	"egui_dark_theme",
	"egui_memory_theme_Theme_is_dark",
	"egui_style_Spacing_default",
	"egui_style_Spacing_indent_width",
	"emath_pos2_Pos2_to_vec2",
	"emath_vec2_Vec2_length",
	"emath_vec2_Vec2_new",
	"emath_vec2_Vec2_splat",
}

func fixtureModel(t *testing.T) (*rustdoc.Model, schema.Registry) {
	t.Helper()
	dir := filepath.Join("..", "rustdoc", "testdata")
	c, err := rustdoc.LoadFiles(context.Background(), []string{
		filepath.Join(dir, "egui_mini.json"),
		filepath.Join(dir, "emath_mini.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	m := rustdoc.NewModel(c)
	reg, err := tracer.New(tracer.NewIREngine(m), tracer.Options{}).Run(m)
	if err != nil {
		t.Fatal(err)
	}
	return m, reg
}

func defaultOptions(reg schema.Registry) Options {
	return Options{
		Crates:               config.DefaultCrates,
		Registry:             reg,
		ExcludeFunctionNames: config.ListConfig{Values: config.DefaultExcludeFunctionNames}.Set(),
	}
}

func keys(e *Enumeration) []string {
	out := make([]string, len(e.Descriptors))
	for i, d := range e.Descriptors {
		out[i] = d.Key
	}
	return out
}

func TestEnumerate_Fixtures(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	e := Enumerate(m, defaultOptions(reg))

	if got := keys(e); !reflect.DeepEqual(got, allKeys) {
		t.Fatalf("keys:\n got %v\nwant %v", got, allKeys)
	}
	for i, d := range e.Descriptors {
		if d.Ordinal != uint32(i) {
			t.Errorf("%s: ordinal %d, want %d", d.Key, d.Ordinal, i)
		}
		if !d.Bound {
			t.Errorf("%s: not bound", d.Key)
		}
	}
	if len(e.Reserved) != 0 {
		t.Errorf("unexpected reserved ordinals: %v", e.Reserved)
	}

	wantDiags := map[string]string{
		"egui_containers_frame_Frame_fill_ptr": "parameter fill: raw pointer *const u8",
		"egui_style_Spacing_set_indent":        "mutable receiver",
		"egui_ui_Ui_label":                     "generic type parameters",
	}
	if len(e.Diagnostics) != len(wantDiags) {
		t.Fatalf("diagnostics: got %v", e.Diagnostics)
	}
	for _, d := range e.Diagnostics {
		if !stderrors.Is(d, bgerr.ErrUnsupportedSignature) {
			t.Errorf("%v: wrong kind", d)
		}
		if want, ok := wantDiags[d.Subject]; !ok || d.Detail != want {
			t.Errorf("diagnostic %s: got %q, want %q", d.Subject, d.Detail, want)
		}
	}
	if got := e.Skipped("Frame"); len(got) != 1 || got[0].Subject != "egui_containers_frame_Frame_fill_ptr" {
		t.Errorf("Skipped(Frame): got %v", got)
	}
}

func TestEnumerate_Descriptors(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	e := Enumerate(m, defaultOptions(reg))

	tests := []struct {
		key         string
		receiver    Receiver
		constructor bool
		path        string
		signature   string
	}{
		{"egui_style_Spacing_default", ReceiverNone, true, "Spacing::default", "fn default() -> Spacing"},
		{"egui_style_Spacing_indent_width", ReceiverSharedRef, false, "Spacing::indent_width", "fn indent_width(&self) -> f32"},
		{"egui_memory_theme_Theme_is_dark", ReceiverValue, false, "Theme::is_dark", "fn is_dark(self) -> bool"},
		{"egui_containers_frame_Frame_frame", ReceiverValue, false, "Frame::frame", "fn frame(self, frame: bool) -> Frame"},
		{"emath_vec2_Vec2_new", ReceiverNone, true, "Vec2::new", "fn new(x: f32, y: f32) -> Vec2"},
		{"emath_vec2_Vec2_splat", ReceiverNone, false, "Vec2::splat", "fn splat(v: f32) -> Vec2"},
		{"egui_dark_theme", ReceiverNone, false, "dark_theme", "fn dark_theme() -> Theme"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			d, ok := e.ByKey(tt.key)
			if !ok {
				t.Fatal("not enumerated")
			}
			if d.Receiver != tt.receiver {
				t.Errorf("receiver: got %v, want %v", d.Receiver, tt.receiver)
			}
			if d.IsConstructor() != tt.constructor {
				t.Errorf("IsConstructor: got %v", d.IsConstructor())
			}
			if d.Path != tt.path {
				t.Errorf("path: got %q, want %q", d.Path, tt.path)
			}
			if got := d.Signature(); got != tt.signature {
				t.Errorf("signature: got %q, want %q", got, tt.signature)
			}
		})
	}

	free := e.Free()
	if len(free) != 1 || free[0].Key != "egui_dark_theme" || !reflect.DeepEqual(free[0].Module, []string{"egui"}) {
		t.Errorf("Free: got %+v", free)
	}
	var frame []string
	for _, d := range e.DeclaredBy("Frame") {
		frame = append(frame, d.Name)
	}
	if !reflect.DeepEqual(frame, []string{"frame", "new"}) {
		t.Errorf("DeclaredBy(Frame): got %v", frame)
	}
}

func TestEnumerate_Representability(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	delete(reg, "Theme")

	e := Enumerate(m, defaultOptions(reg))
	for _, key := range []string{"egui_dark_theme", "egui_memory_theme_Theme_is_dark"} {
		if _, ok := e.ByKey(key); ok {
			t.Errorf("%s enumerated without Theme in the registry", key)
		}
	}
	details := map[string]string{}
	for _, d := range e.Diagnostics {
		details[d.Subject] = d.Detail
	}
	if got := details["egui_dark_theme"]; got != "return type: type Theme is not in the registry" {
		t.Errorf("dark_theme: got %q", got)
	}
	if got := details["egui_memory_theme_Theme_is_dark"]; got != "declaring type Theme is not in the registry" {
		t.Errorf("is_dark: got %q", got)
	}

	opts := defaultOptions(reg)
	opts.Extern = map[string]bool{"Theme": true}
	if got := keys(Enumerate(m, opts)); !reflect.DeepEqual(got, allKeys) {
		t.Errorf("hand-authored Theme: got %v", got)
	}
}

func TestEnumerate_Filters(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)

	opts := defaultOptions(reg)
	opts.Crates = []string{"egui"}
	opts.ExcludeFunctions = map[string]bool{"egui_containers_frame_Frame_new": true}
	opts.ExcludeFunctionNames = map[string]bool{"label": true, "default": true}
	e := Enumerate(m, opts)

	want := []string{
		"egui_containers_frame_Frame_frame",
		"egui_dark_theme",
		"egui_memory_theme_Theme_is_dark",
		"egui_style_Spacing_indent_width",
	}
	if got := keys(e); !reflect.DeepEqual(got, want) {
		t.Errorf("keys: got %v, want %v", got, want)
	}
	for _, d := range e.Diagnostics {
		if d.Subject == "egui_ui_Ui_label" {
			t.Error("excluded names must not produce diagnostics")
		}
	}
}

func TestEnumerate_Deterministic(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	first, err := Enumerate(m, defaultOptions(reg)).EmitNative()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		m, reg := fixtureModel(t)
		out, err := Enumerate(m, defaultOptions(reg)).EmitNative()
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != string(first) {
			t.Fatal("native output differs between runs")
		}
	}
}

func ordinals(e *Enumeration) map[string]uint32 {
	out := make(map[string]uint32)
	for _, d := range e.Descriptors {
		out[d.Key] = d.Ordinal
	}
	return out
}

func TestEnumerate_LockKeepsOrdinals(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	base := Enumerate(m, defaultOptions(reg))
	lock := base.Lock()

	// Removing a function reserves its ordinal; nothing else moves.
	opts := defaultOptions(reg)
	opts.Lock = lock
	opts.ExcludeFunctions = map[string]bool{"egui_dark_theme": true}
	shrunk := Enumerate(m, opts)

	for key, o := range ordinals(shrunk) {
		if was := ordinals(base)[key]; was != o {
			t.Errorf("%s moved from %d to %d", key, was, o)
		}
	}
	if want := []Reserved{{Ordinal: 2, Key: "egui_dark_theme"}}; !reflect.DeepEqual(shrunk.Reserved, want) {
		t.Errorf("reserved: got %v, want %v", shrunk.Reserved, want)
	}
	if shrunk.Len() != base.Len() {
		t.Errorf("Len: got %d, want %d", shrunk.Len(), base.Len())
	}
	if _, err := shrunk.Lookup(2); !stderrors.Is(err, bgerr.ErrOrdinalNotFound) {
		t.Errorf("Lookup(reserved): got %v", err)
	}
	if _, err := shrunk.Lookup(99); !stderrors.Is(err, bgerr.ErrOrdinalNotFound) {
		t.Errorf("Lookup(out of range): got %v", err)
	}

	// The reserved key stays in the lock and gets its ordinal back.
	opts = defaultOptions(reg)
	opts.Lock = shrunk.Lock()
	restored := Enumerate(m, opts)
	if !reflect.DeepEqual(ordinals(restored), ordinals(base)) {
		t.Errorf("restored: got %v, want %v", ordinals(restored), ordinals(base))
	}
	if len(restored.Reserved) != 0 {
		t.Errorf("restored reserved: %v", restored.Reserved)
	}
}

func TestEnumerate_LockAppendsNewKeys(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	opts := defaultOptions(reg)
	opts.Lock = &Lock{Ordinals: map[string]uint32{
		"emath_vec2_Vec2_new": 0,
		"egui_dark_theme":     1,
	}}
	e := Enumerate(m, opts)
	got := ordinals(e)

	if got["emath_vec2_Vec2_new"] != 0 || got["egui_dark_theme"] != 1 {
		t.Errorf("locked keys moved: %v", got)
	}
	// New keys follow the highest locked ordinal in key order.
	next := uint32(2)
	for _, key := range allKeys {
		if key == "emath_vec2_Vec2_new" || key == "egui_dark_theme" {
			continue
		}
		if got[key] != next {
			t.Errorf("%s: got %d, want %d", key, got[key], next)
		}
		next++
	}
	for i, d := range e.Descriptors {
		if i > 0 && d.Ordinal <= e.Descriptors[i-1].Ordinal {
			t.Fatal("descriptors are not ascending by ordinal")
		}
	}
}

func TestEnumerate_LockHoles(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	opts := defaultOptions(reg)
	opts.Lock = &Lock{Ordinals: map[string]uint32{"egui_dark_theme": 3}}
	e := Enumerate(m, opts)

	slots := e.Slots()
	if len(slots) != e.Len() {
		t.Fatalf("slots: got %d, want %d", len(slots), e.Len())
	}
	for i, s := range slots {
		if s.Ordinal != uint32(i) {
			t.Fatalf("slot %d has ordinal %d", i, s.Ordinal)
		}
	}
	for o := uint32(0); o < 3; o++ {
		if slots[o].Descriptor != nil || slots[o].Variant != (Reserved{Ordinal: o}).VariantName() {
			t.Errorf("slot %d: got %+v", o, slots[o])
		}
	}
	if slots[3].Variant != "egui_dark_theme" {
		t.Errorf("slot 3: got %+v", slots[3])
	}
}

func TestEnumerate_Unbound(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	opts := defaultOptions(reg)
	opts.Unbound = map[string]bool{"egui_dark_theme": true}
	e := Enumerate(m, opts)

	d, ok := e.ByKey("egui_dark_theme")
	if !ok || d.Bound || d.Ordinal != 2 {
		t.Fatalf("got %+v", d)
	}
	out, err := e.EmitNative()
	if err != nil {
		t.Fatal(err)
	}
	src := string(out)
	if !strings.Contains(src, "    egui_dark_theme = 2,\n") {
		t.Error("unbound function is missing from the enum")
	}
	if strings.Contains(src, ".with(EguiFn::egui_dark_theme,") {
		t.Error("unbound function has a dispatch entry")
	}
}

func TestEmitNative(t *testing.T) {
	t.Parallel()
	m, reg := fixtureModel(t)
	opts := defaultOptions(reg)
	opts.Lock = &Lock{Ordinals: map[string]uint32{"egui_removed_fn": 10}}
	out, err := Enumerate(m, opts).EmitNative()
	if err != nil {
		t.Fatal(err)
	}
	src := string(out)

	for _, want := range []string{
		"#[repr(u32)]\npub enum EguiFn {\n    __Reserved0 = 0,\n",
		"    __Reserved10 = 10,\n    egui_containers_frame_Frame_frame = 11,\n",
		"        Self::__Reserved10,\n",
		"const _: () = assert!(EguiFn::ALL.len() == 21);\n",
		"pub const AUTOGENERATED_EGUI_FNS: EguiFnMap = egui_fn_map()\n",
		"    .with(EguiFn::egui_style_Spacing_indent_width, Spacing::indent_width as fn(&_) -> _)\n",
		"    .with(EguiFn::emath_vec2_Vec2_new, Vec2::new as fn(_, _) -> _)\n",
		"    .with(EguiFn::egui_dark_theme, dark_theme as fn() -> _)\n",
		"    ;\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output is missing %q\n%s", want, src)
		}
	}
	if strings.Contains(src, ".with(EguiFn::__Reserved") {
		t.Error("reserved ordinals must not be dispatched")
	}
}

func TestLock_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ordinals.lock.yaml")

	l, err := LoadLock(path)
	if err != nil || l != nil {
		t.Fatalf("missing lock: got %v, %v", l, err)
	}

	want := &Lock{Ordinals: map[string]uint32{"egui_b": 1, "egui_a": 0}}
	data, err := want.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "ordinals:\n    egui_a: 0\n    egui_b: 1\n") {
		t.Errorf("unexpected layout:\n%s", data)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got.Next() != 2 {
		t.Errorf("Next: got %d", got.Next())
	}
}

func TestParseLock_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want error
	}{
		{"duplicate ordinal", "ordinals:\n  egui_a: 1\n  egui_b: 1\n", bgerr.ErrInvalidConfig},
		{"not yaml", "ordinals: [", bgerr.ErrParse},
		{"negative", "ordinals:\n  egui_a: -1\n", bgerr.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseLock([]byte(tt.data)); !stderrors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	l, err := ParseLock(nil)
	if err != nil || l.Next() != 0 {
		t.Errorf("empty lock: got %v, %v", l, err)
	}
}

func typeOf(t *testing.T, src string) rustdoc.Type {
	t.Helper()
	var ty rustdoc.Type
	if err := json.Unmarshal([]byte(src), &ty); err != nil {
		t.Fatal(err)
	}
	return ty
}

func TestResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src    string
		self   string
		want   string
		reason string
	}{
		{`{"primitive": "f32"}`, "", "f32", ""},
		{`{"primitive": "never"}`, "", "", "primitive never"},
		{`{"generic": "Self"}`, "Vec2", "Vec2", ""},
		{`{"generic": "Self"}`, "", "", "Self outside an impl"},
		{`{"generic": "T"}`, "Vec2", "", "generic parameter T"},
		{`{"borrowed_ref": {"lifetime": null, "is_mutable": false, "type": {"primitive": "str"}}}`, "", "&str", ""},
		{`{"borrowed_ref": {"lifetime": null, "is_mutable": true, "type": {"primitive": "str"}}}`, "", "", "mutable borrow &mut str"},
		{`{"resolved_path": {"path": "String", "id": 1, "args": null}}`, "", "str", ""},
		{`{"resolved_path": {"path": "Option", "id": 1, "args": {"angle_bracketed": {"args": [{"type": {"resolved_path": {"path": "Pos2", "id": 2, "args": null}}}], "constraints": []}}}}`, "", "Option<Pos2>", ""},
		{`{"resolved_path": {"path": "Vec", "id": 1, "args": {"angle_bracketed": {"args": [{"type": {"primitive": "u8"}}], "constraints": []}}}}`, "", "Vec<u8>", ""},
		{`{"resolved_path": {"path": "std::sync::Arc", "id": 1, "args": {"angle_bracketed": {"args": [{"type": {"primitive": "str"}}], "constraints": []}}}}`, "", "str", ""},
		{`{"resolved_path": {"path": "Response", "id": 1, "args": {"angle_bracketed": {"args": [{"type": {"primitive": "u8"}}], "constraints": []}}}}`, "", "", "generic type Response<…>"},
		{`{"slice": {"primitive": "f32"}}`, "", "Vec<f32>", ""},
		{`{"array": {"type": {"primitive": "u8"}, "len": "4"}}`, "", "[u8; 4]", ""},
		{`{"array": {"type": {"primitive": "u8"}, "len": "N"}}`, "", "", "array length \"N\" is not a literal"},
		{`{"tuple": [{"primitive": "f32"}, {"primitive": "f32"}]}`, "", "(f32, f32)", ""},
		{`{"raw_pointer": {"is_mutable": false, "type": {"primitive": "u8"}}}`, "", "", "raw pointer *const u8"},
		{`{"dyn_trait": {"traits": [], "lifetime": null}}`, "", "", "trait object"},
		{`{"impl_trait": []}`, "", "", "impl trait"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			t.Parallel()
			got := Resolve(typeOf(t, tt.src), tt.self)
			if reason := got.Unsupported(); reason != tt.reason {
				t.Fatalf("reason: got %q, want %q", reason, tt.reason)
			}
			if tt.reason == "" && got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestTypeRef_Format(t *testing.T) {
	t.Parallel()
	pos := Named("Pos2")
	f32 := Primitive("f32")
	tests := []struct {
		ref  TypeRef
		want schema.Format
	}{
		{Primitive("usize"), schema.Prim(schema.U64)},
		{Primitive("str"), schema.Prim(schema.Str)},
		{wrap(RefByRef, pos), schema.Named("Pos2")},
		{wrap(RefOption, pos), schema.OptionOf(schema.Named("Pos2"))},
		{TypeRef{Kind: RefTuple}, schema.Prim(schema.Unit)},
		{TypeRef{Kind: RefTuple, Elems: []TypeRef{f32, f32}}, schema.TupleOf(schema.Prim(schema.F32), schema.Prim(schema.F32))},
		{TypeRef{Kind: RefMap, Key: &TypeRef{Kind: RefPrimitive, Name: "str"}, Value: &f32}, schema.MapOf(schema.Prim(schema.Str), schema.Prim(schema.F32))},
	}
	for _, tt := range tests {
		if got := tt.ref.Format(); !got.Equal(tt.want) {
			t.Errorf("%s: got %s, want %s", tt.ref, got, tt.want)
		}
	}
	if got := wrap(RefSequence, wrap(RefOption, pos)).Names(); !reflect.DeepEqual(got, []string{"Pos2"}) {
		t.Errorf("Names: got %v", got)
	}
}
