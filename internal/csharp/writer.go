package csharp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jcdickinson/eguinet/internal/markdown"
)

const indentUnit = "    "

// codeWriter accumulates indented C# source.
type codeWriter struct {
	b     strings.Builder
	depth int
}

func (w *codeWriter) prefix() string {
	return strings.Repeat(indentUnit, w.depth)
}

// line writes one formatted, indented line. An empty format writes a blank
// line.
func (w *codeWriter) line(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// raw writes an already rendered line as is, indented.
func (w *codeWriter) raw(s string) {
	if s == "" {
		w.b.WriteByte('\n')
		return
	}
	w.b.WriteString(w.prefix())
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

// block writes every line of a pre-rendered snippet at the current depth.
func (w *codeWriter) block(snippet string) {
	for _, l := range strings.Split(strings.Trim(snippet, "\n"), "\n") {
		w.raw(l)
	}
}

// open writes a line ending in " {" and indents.
func (w *codeWriter) open(format string, args ...any) {
	w.line(format+" {", args...)
	w.depth++
}

// close dedents and writes the closing brace with an optional suffix.
func (w *codeWriter) close(suffix string) {
	w.depth--
	w.raw("}" + suffix)
}

// doc writes a documentation comment body as /// lines.
func (w *codeWriter) doc(body string) {
	w.b.WriteString(markdown.CommentLines(body, w.prefix()))
}

// todo writes a machine-readable marker for something that was skipped.
func (w *codeWriter) todo(format string, args ...any) {
	w.line("// TODO(eguinet): "+format, args...)
}

func (w *codeWriter) String() string {
	return w.b.String()
}

var baseUsings = []string{
	"System",
	"System.Collections.Generic",
	"System.Collections.Immutable",
	"System.Numerics",
	"System.Text",
}

// sourceFile is one generated .g.cs file. Namespaces of referenced types are
// collected while the body is written and become using directives.
type sourceFile struct {
	path      string
	namespace string
	usings    map[string]bool
	body      codeWriter
}

func newSourceFile(path, namespace string) *sourceFile {
	return &sourceFile{path: path, namespace: namespace, usings: make(map[string]bool)}
}

func (f *sourceFile) use(namespace string) {
	if namespace != "" && namespace != f.namespace {
		f.usings[namespace] = true
	}
}

func (f *sourceFile) bytes() []byte {
	var b strings.Builder
	b.WriteString("// <auto-generated>\n// Code generated by eguinet. DO NOT EDIT.\n// </auto-generated>\n")
	b.WriteString("#pragma warning disable\n#nullable enable\n\n")

	extra := make([]string, 0, len(f.usings))
	for ns := range f.usings {
		extra = append(extra, ns)
	}
	sort.Strings(extra)
	for _, ns := range append(append([]string(nil), baseUsings...), extra...) {
		fmt.Fprintf(&b, "using %s;\n", ns)
	}

	fmt.Fprintf(&b, "\nnamespace %s {\n\n", f.namespace)
	b.WriteString(f.body.String())
	fmt.Fprintf(&b, "\n} // end of namespace %s\n", f.namespace)
	return []byte(b.String())
}

// namespaceDir maps a namespace to its directory below the managed root.
func namespaceDir(namespace string) string {
	return strings.ReplaceAll(namespace, ".", "/")
}
