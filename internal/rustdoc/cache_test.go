package rustdoc

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jcdickinson/eguinet/internal/config"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

func TestParseCrateRef(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    CrateRef
		wantErr bool
	}{
		{"egui@0.31.1", CrateRef{"egui", "0.31.1"}, false},
		{"egui_extras", CrateRef{"egui_extras", "latest"}, false},
		{"emath@", CrateRef{"emath", "latest"}, false},
		{"", CrateRef{}, true},
		{"../egui@1", CrateRef{}, true},
		{"egui@1/2", CrateRef{}, true},
	}
	for _, tt := range tests {
		got, err := ParseCrateRef(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: error %v", tt.in, err)
			continue
		}
		if tt.wantErr {
			if !stderrors.Is(err, bgerr.ErrInvalidConfig) {
				t.Errorf("%q: expected InvalidConfig, got %v", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCrateCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	raw, err := os.ReadFile(filepath.Join("testdata", "emath_mini.json"))
	if err != nil {
		t.Fatal(err)
	}

	refs := []CrateRef{{"emath", "0.31.1"}, {"egui_extras", "latest"}, {"emath", "0.30.0"}}
	for _, r := range refs {
		if HasCrateCache(r) {
			t.Fatalf("%s cached before save", r)
		}
		if err := SaveCrateCache(r, raw); err != nil {
			t.Fatal(err)
		}
	}

	c, err := LoadCrateCache(refs[0])
	if err != nil {
		t.Fatal(err)
	}
	if c.Index[1].NameOr("") != "Vec2" {
		t.Error("unexpected crate contents")
	}

	got, err := CachedCrates()
	if err != nil {
		t.Fatal(err)
	}
	want := []CrateRef{{"egui_extras", "latest"}, {"emath", "0.30.0"}, {"emath", "0.31.1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CachedCrates: got %v, want %v", got, want)
	}

	entries, err := os.ReadDir(config.JSONCacheDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestCachedCrates_Empty(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	got, err := CachedCrates()
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestFetchRustdocJSON_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "crate not found", http.StatusNotFound)
	}))
	defer srv.Close()

	old := docsRSBase
	docsRSBase = srv.URL
	defer func() { docsRSBase = old }()

	_, err := FetchRustdocJSON(context.Background(), CrateRef{"nope", "1.0.0"})
	if !stderrors.Is(err, bgerr.ErrIO) {
		t.Fatalf("expected IOError, got %v", err)
	}
	var e *bgerr.Error
	if !stderrors.As(err, &e) || e.Stage != bgerr.StageLoad || e.Subject != "nope@1.0.0" {
		t.Errorf("got %+v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("status missing from %q", err)
	}
}
