// Package markdown converts rustdoc markdown into C# XML documentation.
package markdown

import (
	"fmt"
	"strings"
	"unicode"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"

	"github.com/jcdickinson/eguinet/internal/naming"
)

const intraDocLink = "rustdoc:intra-doc"

// DocComment renders rustdoc markdown as the body of a C# documentation
// comment wrapped in <summary>. Fenced code blocks are dropped, links are
// flattened to their label text and inline code becomes <c>…</c>. intraDoc
// holds the item's resolved intra-doc link texts (the keys of its rustdoc
// links map) so that shortcut links like [`Vec2`] are recognized. Returns ""
// when nothing is left.
func DocComment(src string, intraDoc []string) string {
	body := Plain(src, intraDoc)
	if body == "" {
		return ""
	}
	return "<summary>\n" + body + "\n</summary>"
}

// Plain renders rustdoc markdown as XML-escaped text without the summary
// wrapper.
func Plain(src string, intraDoc []string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}

	known := make(map[string]bool, len(intraDoc))
	for _, k := range intraDoc {
		known[k] = true
	}
	p := gmparser.NewWithExtensions((gmparser.CommonExtensions | gmparser.Autolink) &^ gmparser.MathJax)
	p.ReferenceOverride = func(ref string) (*gmparser.Reference, bool) {
		if known[ref] {
			return &gmparser.Reference{Link: intraDocLink}, true
		}
		return nil, false
	}

	doc := gm.Parse([]byte(src), p)
	return strings.Join(blocks(doc.GetChildren(), ""), "\n\n")
}

// blocks renders block-level nodes, one string per non-empty block.
func blocks(nodes []ast.Node, indent string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	for i, n := range nodes {
		switch n := n.(type) {
		case *ast.CodeBlock, *ast.HTMLBlock, *ast.HorizontalRule:
		case *ast.Heading:
			// An "Example" heading introducing a dropped code block goes too.
			if i+1 == len(nodes) || isCodeBlock(nodes[i+1]) {
				continue
			}
			add(inline(n))
		case *ast.Paragraph:
			add(inline(n))
		case *ast.List:
			add(list(n, indent))
		case *ast.Table:
			add(table(n))
		default:
			if c := n.AsContainer(); c != nil {
				for _, b := range blocks(c.Children, indent) {
					add(b)
				}
			} else {
				add(inline(n))
			}
		}
	}
	return out
}

func isCodeBlock(n ast.Node) bool {
	_, ok := n.(*ast.CodeBlock)
	return ok
}

func list(l *ast.List, indent string) string {
	var lines []string
	ordinal := l.Start
	if ordinal == 0 {
		ordinal = 1
	}
	for _, item := range l.Children {
		marker := "- "
		if l.ListFlags&ast.ListTypeOrdered != 0 {
			marker = fmt.Sprintf("%d. ", ordinal)
			ordinal++
		}
		body := strings.Join(blocks(item.GetChildren(), indent+"  "), "\n")
		if body == "" {
			continue
		}
		pad := strings.Repeat(" ", len(marker))
		lines = append(lines, marker+strings.ReplaceAll(body, "\n", "\n"+pad))
	}
	return strings.Join(lines, "\n")
}

func table(t *ast.Table) string {
	var rows []string
	ast.WalkFunc(t, func(node ast.Node, entering bool) ast.WalkStatus {
		row, ok := node.(*ast.TableRow)
		if !ok || !entering {
			return ast.GoToNext
		}
		var cells []string
		for _, c := range row.Children {
			cells = append(cells, strings.TrimSpace(inline(c)))
		}
		rows = append(rows, strings.Join(cells, " | "))
		return ast.SkipChildren
	})
	return strings.Join(rows, "\n")
}

// inline renders the text content of a node.
func inline(n ast.Node) string {
	var b strings.Builder
	ast.WalkFunc(n, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node := node.(type) {
		case *ast.Text:
			b.WriteString(Escape(string(node.Literal)))
		case *ast.Code:
			b.WriteString(codeSpan(string(node.Literal)))
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte('\n')
		case *ast.NonBlockingSpace:
			b.WriteByte(' ')
		case *ast.HTMLSpan, *ast.CodeBlock:
			return ast.SkipChildren
		}
		return ast.GoToNext
	})
	return b.String()
}

// codeSpan converts inline code to <c>…</c>. Paths keep their last segment
// and snake_case identifiers are Pascal-cased to match the generated member
// names. Type and constant names keep their spelling.
func codeSpan(code string) string {
	if i := strings.LastIndex(code, "::"); i >= 0 {
		code = code[i+2:]
	}
	if isIdentifier(code) && !unicode.IsUpper([]rune(code)[0]) {
		code = naming.ToPascalCase(code)
	}
	return "<c>" + Escape(code) + "</c>"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes the XML special characters of documentation text.
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

// CommentLines prefixes every line of a comment body with "/// ", indented.
func CommentLines(body, indent string) string {
	if body == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		b.WriteString(indent)
		if line == "" {
			b.WriteString("///\n")
			continue
		}
		b.WriteString("/// ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
