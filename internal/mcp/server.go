package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jcdickinson/eguinet/internal/enumerate"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/pipeline"
	"github.com/jcdickinson/eguinet/internal/schema"
)

//go:embed instructions.md
var instructions string

const managedScheme = "eguinet://managed/"

// Server answers questions about one generator run: the traced types, the
// enumerated functions and what could not be bound.
type Server struct {
	mcpServer *server.MCPServer
	res       *pipeline.Result
	managed   map[string][]byte
}

// NewServer serves res, which must have reached at least the emitted
// state.
func NewServer(res *pipeline.Result, version string) *Server {
	s := &Server{res: res, managed: make(map[string][]byte, len(res.Managed))}
	for _, f := range res.Managed {
		s.managed[f.Path] = f.Content
	}

	mcpServer := server.NewMCPServer(
		"eguinet",
		version,
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("list_types",
			mcp.WithDescription("List the traced egui types with their container kind (STRUCT, ENUM, NEWTYPESTRUCT, TUPLESTRUCT, UNITSTRUCT)."),
			mcp.WithString("kind",
				mcp.Description("Optional container kind to filter by"),
			),
		),
		s.handleListTypes,
	)

	mcpServer.AddTool(
		mcp.NewTool("describe_type",
			mcp.WithDescription("Show a type's wire layout, its bound methods with ordinals, the methods that were skipped and the generated C# file."),
			mcp.WithString("name",
				mcp.Description("Type name as traced, e.g. \"Vec2\""),
				mcp.Required(),
			),
		),
		s.handleDescribeType,
	)

	mcpServer.AddTool(
		mcp.NewTool("lookup_function",
			mcp.WithDescription("Look up an enumerated function by canonical key or by ordinal."),
			mcp.WithString("key",
				mcp.Description("Canonical key, e.g. \"emath_vec2_Vec2_length\""),
			),
			mcp.WithNumber("ordinal",
				mcp.Description("Dispatch ordinal"),
			),
		),
		s.handleLookupFunction,
	)

	mcpServer.AddTool(
		mcp.NewTool("coverage_gaps",
			mcp.WithDescription("List what the bindings do not cover: skipped functions with reasons, unbound ordinals, reserved ordinals and unsupported fields."),
		),
		s.handleCoverageGaps,
	)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			managedScheme+"{path}",
			"Generated C# source",
			mcp.WithTemplateDescription("Read a generated managed source file. describe_type returns these URIs."),
			mcp.WithTemplateMIMEType("text/x-csharp"),
		),
		s.handleReadResource,
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type typeSummary struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (s *Server) handleListTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := strings.ToUpper(req.GetString("kind", ""))
	out := []typeSummary{}
	for _, name := range s.res.Registry.Names() {
		k := s.res.Registry[name].Kind.String()
		if kind != "" && k != kind {
			continue
		}
		out = append(out, typeSummary{Name: name, Kind: k})
	}
	return jsonResult(out)
}

type functionInfo struct {
	Ordinal   uint32 `json:"ordinal"`
	Key       string `json:"key"`
	Signature string `json:"signature"`
	Receiver  string `json:"receiver,omitempty"`
	Declaring string `json:"declaring_type,omitempty"`
	Path      string `json:"rust_path"`
	Bound     bool   `json:"bound"`
	Docs      string `json:"docs,omitempty"`
}

func infoOf(d *enumerate.Descriptor) functionInfo {
	info := functionInfo{
		Ordinal:   d.Ordinal,
		Key:       d.Key,
		Signature: d.Signature(),
		Path:      d.Path,
		Bound:     d.Bound,
		Docs:      d.Docs,
	}
	if d.Receiver != enumerate.ReceiverNone {
		info.Receiver = d.Receiver.String()
	}
	if d.Declaring != nil {
		info.Declaring = d.Declaring.Name
	}
	return info
}

type skipInfo struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func skipsOf(errs []*bgerr.Error) []skipInfo {
	out := make([]skipInfo, 0, len(errs))
	for _, e := range errs {
		out = append(out, skipInfo{Key: e.Subject, Reason: e.Detail})
	}
	return out
}

type typeDescription struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Layout  string         `json:"layout"`
	Methods []functionInfo `json:"methods"`
	Skipped []skipInfo     `json:"skipped"`
	Sources []string       `json:"sources"`
}

func (s *Server) handleDescribeType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	c, ok := s.res.Registry[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", name)), nil
	}

	layout, err := schema.Marshal(schema.Registry{name: c})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rendering layout: %v", err)), nil
	}
	desc := typeDescription{
		Name:    name,
		Kind:    c.Kind.String(),
		Layout:  string(layout),
		Methods: []functionInfo{},
		Skipped: skipsOf(s.res.Enumeration.Skipped(name)),
		Sources: []string{},
	}
	for _, d := range s.res.Enumeration.DeclaredBy(name) {
		desc.Methods = append(desc.Methods, infoOf(d))
	}
	suffix := "/" + name + ".g.cs"
	for _, f := range s.res.Managed {
		if strings.HasSuffix("/"+f.Path, suffix) {
			desc.Sources = append(desc.Sources, managedScheme+f.Path)
		}
	}
	return jsonResult(desc)
}

func (s *Server) handleLookupFunction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if key, ok := args["key"].(string); ok && key != "" {
		d, found := s.res.Enumeration.ByKey(key)
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("no enumerated function with key %q", key)), nil
		}
		return jsonResult(infoOf(d))
	}
	ordinal, ok := args["ordinal"].(float64)
	if !ok {
		return mcp.NewToolResultError("one of key or ordinal is required"), nil
	}
	if ordinal < 0 || ordinal != float64(uint32(ordinal)) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid ordinal %v", ordinal)), nil
	}
	d, err := s.res.Enumeration.Lookup(uint32(ordinal))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infoOf(d))
}

type reservedInfo struct {
	Ordinal uint32 `json:"ordinal"`
	Key     string `json:"key,omitempty"`
}

type coverageGaps struct {
	Skipped           []skipInfo     `json:"skipped"`
	Unbound           []functionInfo `json:"unbound"`
	Reserved          []reservedInfo `json:"reserved"`
	UnsupportedFields []skipInfo     `json:"unsupported_fields"`
}

func (s *Server) handleCoverageGaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gaps := coverageGaps{
		Skipped:           []skipInfo{},
		Unbound:           []functionInfo{},
		Reserved:          []reservedInfo{},
		UnsupportedFields: []skipInfo{},
	}
	for _, d := range s.res.Diagnostics {
		switch d.Kind {
		case bgerr.KindUnsupportedField:
			gaps.UnsupportedFields = append(gaps.UnsupportedFields, skipInfo{Key: d.Subject, Reason: d.Detail})
		default:
			gaps.Skipped = append(gaps.Skipped, skipInfo{Key: d.Subject, Reason: d.Detail})
		}
	}
	sort.Slice(gaps.Skipped, func(i, j int) bool { return gaps.Skipped[i].Key < gaps.Skipped[j].Key })

	for i := range s.res.Enumeration.Descriptors {
		if d := &s.res.Enumeration.Descriptors[i]; !d.Bound {
			gaps.Unbound = append(gaps.Unbound, infoOf(d))
		}
	}
	for _, r := range s.res.Enumeration.Reserved {
		gaps.Reserved = append(gaps.Reserved, reservedInfo{Ordinal: r.Ordinal, Key: r.Key})
	}
	return jsonResult(gaps)
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	path := strings.TrimPrefix(uri, managedScheme)
	content, ok := s.managed[path]
	if !ok || path == uri {
		return nil, fmt.Errorf("no generated file for %s", uri)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/x-csharp",
			Text:     string(content),
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}
