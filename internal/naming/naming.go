// Package naming converts Rust identifiers to C# conventions.
package naming

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// ToPascalCase converts a snake_case string to PascalCase.
// e.g., "item_spacing" → "ItemSpacing", "with_frame" → "WithFrame"
func ToPascalCase(s string) string {
	return strcase.ToCamel(s)
}

// ToCamelCase converts a snake_case string to camelCase.
func ToCamelCase(s string) string {
	return strcase.ToLowerCamel(s)
}

var csharpKeywords = map[string]bool{
	"abstract": true, "as": true, "base": true, "bool": true, "break": true,
	"byte": true, "case": true, "catch": true, "char": true, "checked": true,
	"class": true, "const": true, "continue": true, "decimal": true, "default": true,
	"delegate": true, "do": true, "double": true, "else": true, "enum": true,
	"event": true, "explicit": true, "extern": true, "false": true, "finally": true,
	"fixed": true, "float": true, "for": true, "foreach": true, "goto": true,
	"if": true, "implicit": true, "in": true, "int": true, "interface": true,
	"internal": true, "is": true, "lock": true, "long": true, "namespace": true,
	"new": true, "null": true, "object": true, "operator": true, "out": true,
	"override": true, "params": true, "private": true, "protected": true, "public": true,
	"readonly": true, "ref": true, "return": true, "sbyte": true, "sealed": true,
	"short": true, "sizeof": true, "stackalloc": true, "static": true, "string": true,
	"struct": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "uint": true, "ulong": true, "unchecked": true,
	"unsafe": true, "ushort": true, "using": true, "virtual": true, "void": true,
	"volatile": true, "while": true,
}

// Identifier escapes C# keywords with '@'.
func Identifier(s string) string {
	if csharpKeywords[s] {
		return "@" + s
	}
	return s
}

// ParamName returns the camelCase, keyword-safe parameter name for a Rust argument.
func ParamName(s string) string {
	return Identifier(ToCamelCase(strings.TrimPrefix(s, "r#")))
}
