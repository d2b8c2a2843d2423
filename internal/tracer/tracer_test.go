package tracer

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

func fixture(name string) string {
	return filepath.Join("..", "rustdoc", "testdata", name)
}

func mergedModel(t *testing.T) *rustdoc.Model {
	t.Helper()
	c, err := rustdoc.LoadFiles(context.Background(), []string{fixture("egui_mini.json"), fixture("emath_mini.json")})
	if err != nil {
		t.Fatal(err)
	}
	return rustdoc.NewModel(c)
}

func TestSeeds(t *testing.T) {
	t.Parallel()
	m := mergedModel(t)
	got, err := Seeds(m, map[string]bool{"Frame": true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AreaState", "Pos2", "Spacing", "Theme", "Vec2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSeeds_DuplicateName(t *testing.T) {
	t.Parallel()
	c, err := rustdoc.LoadFiles(context.Background(), []string{fixture("emath_mini.json"), fixture("emath_mini.json")})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Seeds(rustdoc.NewModel(c), nil)
	if !stderrors.Is(err, bgerr.ErrDuplicateTypeName) {
		t.Errorf("expected DuplicateTypeName, got %v", err)
	}
}

func TestRun_IREngine(t *testing.T) {
	t.Parallel()
	m := mergedModel(t)
	reg, err := New(NewIREngine(m), Options{}).Run(m)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := reg.Names(), []string{"AreaState", "Frame", "Pos2", "Spacing", "Theme", "Vec2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names: got %v, want %v", got, want)
	}

	area := reg["AreaState"]
	wantArea := []schema.Field{
		{Name: "PivotPos", Format: schema.OptionOf(schema.Named("Pos2"))},
		{Name: "Size", Format: schema.OptionOf(schema.Named("Vec2"))},
		{Name: "Interactable", Format: schema.Prim(schema.Bool)},
		{Name: "LastBecameVisibleAt", Format: schema.OptionOf(schema.Prim(schema.F64))},
	}
	if area.Kind != schema.Struct || !reflect.DeepEqual(area.Fields, wantArea) {
		t.Errorf("AreaState: got %+v", area)
	}

	theme := reg["Theme"]
	if !theme.IsCStyle() || theme.Variants[0].Name != "Dark" || theme.Variants[1].Name != "Light" {
		t.Errorf("Theme: got %+v", theme)
	}

	spacing := reg["Spacing"]
	if spacing.Fields[0].Name != "ItemSpacing" || !spacing.Fields[0].Format.Equal(schema.Named("Vec2")) {
		t.Errorf("Spacing.ItemSpacing: got %+v", spacing.Fields[0])
	}

	if err := reg.Validate(nil); err != nil {
		t.Errorf("traced registry is not total: %v", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()
	var first []byte
	for i := 0; i < 3; i++ {
		m := mergedModel(t)
		reg, err := New(NewIREngine(m), Options{}).Run(m)
		if err != nil {
			t.Fatal(err)
		}
		out, err := schema.Marshal(reg)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = out
		} else if string(first) != string(out) {
			t.Fatal("registry output differs between runs")
		}
	}
}

func TestRun_Exclusions(t *testing.T) {
	t.Parallel()
	m := mergedModel(t)
	opts := Options{
		ExcludeTypes:       map[string]bool{"Frame": true},
		ExcludeDefinitions: map[string]bool{"Vec2": true},
	}
	reg, err := New(NewIREngine(m), opts).Run(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg["Frame"]; ok {
		t.Error("excluded type was traced")
	}
	if _, ok := reg["Vec2"]; ok {
		t.Error("excluded definition was kept")
	}
	if err := reg.Validate(nil); err == nil {
		t.Error("references to a removed definition should not validate without extern")
	}
	if err := reg.Validate(opts.Extern()); err != nil {
		t.Errorf("hand-authored definitions should satisfy references: %v", err)
	}
}

func TestRun_TraceFailed(t *testing.T) {
	t.Parallel()
	// Without emath, Vec2 is foreign and cannot be traced.
	c, err := rustdoc.LoadFile(fixture("egui_mini.json"))
	if err != nil {
		t.Fatal(err)
	}
	m := rustdoc.NewModel(c)
	_, err = New(NewIREngine(m), Options{}).Run(m)
	if !stderrors.Is(err, bgerr.ErrTraceFailed) {
		t.Errorf("expected TraceFailed, got %v", err)
	}
}

func TestRun_SamplesReplaceTypeTrace(t *testing.T) {
	t.Parallel()
	m := mergedModel(t)
	sampled := schema.ContainerFormat{Kind: schema.Enum, Variants: map[uint32]schema.Variant{
		0: {Name: "Dark"},
		1: {Name: "Light"},
		2: {Name: "System", Kind: schema.VariantNewtype, Value: schema.Named("Vec2")},
	}}
	reg, err := New(NewIREngine(m), Options{Samples: schema.Registry{"Theme": sampled}}).Run(m)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg["Theme"]; len(got.Variants) != 3 {
		t.Errorf("sample did not replace the traced layout: %+v", got)
	}
}

type recordingEngine struct {
	calls []string
	reg   schema.Registry
}

func (e *recordingEngine) TraceType(name string) error {
	e.calls = append(e.calls, "type:"+name)
	e.reg[name] = schema.ContainerFormat{Kind: schema.Struct, Fields: []schema.Field{{Name: "snake_case", Format: schema.Prim(schema.U8)}}}
	return nil
}

func (e *recordingEngine) TraceValue(name string, layout schema.ContainerFormat) error {
	e.calls = append(e.calls, "value:"+name)
	e.reg[name] = layout
	return nil
}

func (e *recordingEngine) Registry() (schema.Registry, error) {
	return e.reg, nil
}

func TestRun_EngineCalls(t *testing.T) {
	t.Parallel()
	m := mergedModel(t)
	eng := &recordingEngine{reg: schema.Registry{}}
	samples := schema.Registry{"Spacing": {Kind: schema.UnitStruct}}
	reg, err := New(eng, Options{Samples: samples}).Run(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"value:Spacing", "type:AreaState", "type:Frame", "type:Pos2", "type:Theme", "type:Vec2"}
	if !reflect.DeepEqual(eng.calls, want) {
		t.Errorf("calls: got %v, want %v", eng.calls, want)
	}
	if got := reg["Vec2"].Fields[0].Name; got != "SnakeCase" {
		t.Errorf("field rename: got %q", got)
	}
}

func TestLoadSamples(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "samples.yaml")
	src := "Theme:\n  ENUM:\n    0:\n      Dark: UNIT\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadSamples(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reg["Theme"].Variants) != 1 {
		t.Errorf("got %+v", reg)
	}

	if reg, err := LoadSamples(""); err != nil || len(reg) != 0 {
		t.Errorf("empty path: got %v, %v", reg, err)
	}
	if _, err := LoadSamples(filepath.Join(t.TempDir(), "missing.yaml")); !stderrors.Is(err, bgerr.ErrIO) {
		t.Errorf("expected IOError, got %v", err)
	}
}
