package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jcdickinson/eguinet/internal/config"
	"github.com/jcdickinson/eguinet/internal/pipeline"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	data := filepath.Join("..", "rustdoc", "testdata")
	cfg := &config.Config{
		Generate: config.GenerateConfig{
			Inputs: []string{
				filepath.Join(data, "egui_mini.json"),
				filepath.Join(data, "emath_mini.json"),
			},
			Crates:      config.DefaultCrates,
			Namespace:   "Egui",
			CStyleEnums: true,
		},
		Exclude: config.ExcludeConfig{
			FunctionNames: config.ListConfig{Values: config.DefaultExcludeFunctionNames},
			Unbound:       config.ListConfig{Values: []string{"emath_vec2_Vec2_splat"}},
		},
	}
	res, err := pipeline.New(cfg, pipeline.Options{Stop: pipeline.Emitted}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(res, "test")
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content: %+v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return text.Text, res.IsError
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("%v in %s", err, text)
	}
	return v
}

func TestListTypes(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	text, isErr := call(t, s.handleListTypes, nil)
	if isErr {
		t.Fatal(text)
	}
	all := decode[[]typeSummary](t, text)
	var names []string
	for _, ty := range all {
		names = append(names, ty.Name)
	}
	if got := strings.Join(names, ","); got != "AreaState,Frame,Pos2,Spacing,Theme,Vec2" {
		t.Errorf("names: %s", got)
	}

	text, _ = call(t, s.handleListTypes, map[string]any{"kind": "enum"})
	enums := decode[[]typeSummary](t, text)
	if len(enums) != 1 || enums[0].Name != "Theme" || enums[0].Kind != "ENUM" {
		t.Errorf("enums: %+v", enums)
	}
}

func TestDescribeType(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	text, isErr := call(t, s.handleDescribeType, map[string]any{"name": "Vec2"})
	if isErr {
		t.Fatal(text)
	}
	desc := decode[typeDescription](t, text)
	if desc.Kind != "STRUCT" || !strings.Contains(desc.Layout, "Vec2:") {
		t.Errorf("layout: %+v", desc)
	}
	var keys []string
	for _, m := range desc.Methods {
		keys = append(keys, m.Key)
	}
	want := "emath_vec2_Vec2_length,emath_vec2_Vec2_new,emath_vec2_Vec2_splat"
	if got := strings.Join(keys, ","); got != want {
		t.Errorf("methods: got %s", got)
	}
	if len(desc.Sources) != 1 || desc.Sources[0] != "eguinet://managed/Egui/Vec2.g.cs" {
		t.Errorf("sources: %v", desc.Sources)
	}

	text, _ = call(t, s.handleDescribeType, map[string]any{"name": "Spacing"})
	spacing := decode[typeDescription](t, text)
	if len(spacing.Skipped) != 1 || !strings.Contains(spacing.Skipped[0].Key, "set_indent") {
		t.Errorf("skipped: %+v", spacing.Skipped)
	}

	if text, isErr := call(t, s.handleDescribeType, map[string]any{"name": "Ui"}); !isErr {
		t.Errorf("unknown type: %s", text)
	}
	if _, isErr := call(t, s.handleDescribeType, nil); !isErr {
		t.Error("missing name was accepted")
	}
}

func TestLookupFunction(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantKey string
		wantErr bool
	}{
		{"by key", map[string]any{"key": "emath_vec2_Vec2_length"}, "emath_vec2_Vec2_length", false},
		{"by ordinal", map[string]any{"ordinal": float64(2)}, "egui_dark_theme", false},
		{"unknown key", map[string]any{"key": "egui_nope"}, "", true},
		{"out of range", map[string]any{"ordinal": float64(42)}, "", true},
		{"fractional", map[string]any{"ordinal": 1.5}, "", true},
		{"neither", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, s.handleLookupFunction, tt.args)
			if isErr != tt.wantErr {
				t.Fatalf("error %v: %s", isErr, text)
			}
			if tt.wantErr {
				return
			}
			info := decode[functionInfo](t, text)
			if info.Key != tt.wantKey || info.Signature == "" {
				t.Errorf("got %+v", info)
			}
		})
	}

	text, _ := call(t, s.handleLookupFunction, map[string]any{"key": "emath_vec2_Vec2_length"})
	info := decode[functionInfo](t, text)
	if info.Receiver != "self" && info.Receiver != "&self" {
		t.Errorf("receiver: %q", info.Receiver)
	}
	if info.Declaring != "Vec2" || !info.Bound {
		t.Errorf("got %+v", info)
	}
}

func TestCoverageGaps(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	text, isErr := call(t, s.handleCoverageGaps, nil)
	if isErr {
		t.Fatal(text)
	}
	gaps := decode[coverageGaps](t, text)
	if len(gaps.Skipped) != 3 {
		t.Errorf("skipped: %+v", gaps.Skipped)
	}
	if len(gaps.Unbound) != 1 || gaps.Unbound[0].Key != "emath_vec2_Vec2_splat" || gaps.Unbound[0].Ordinal != 9 {
		t.Errorf("unbound: %+v", gaps.Unbound)
	}
	if len(gaps.Reserved) != 0 || len(gaps.UnsupportedFields) != 0 {
		t.Errorf("got %+v", gaps)
	}
}

func TestReadResource(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	var req mcp.ReadResourceRequest
	req.Params.URI = "eguinet://managed/Egui/Vec2.g.cs"
	contents, err := s.handleReadResource(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(text.Text, "Vec2") || text.MIMEType != "text/x-csharp" {
		t.Errorf("got %+v", contents)
	}

	req.Params.URI = "eguinet://managed/Egui/Missing.g.cs"
	if _, err := s.handleReadResource(context.Background(), req); err == nil {
		t.Error("missing file was served")
	}
}
