package schema

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

var primitiveKinds = func() map[string]Kind {
	m := make(map[string]Kind)
	for k := Unit; k <= Bytes; k++ {
		m[k.String()] = k
	}
	return m
}()

// Marshal renders the registry in the serde-reflection YAML layout, sorted by
// type name.
func Marshal(r Registry) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r.node()); err != nil {
		return nil, fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode registry: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a registry from its YAML layout.
func Unmarshal(data []byte) (Registry, error) {
	r := Registry{}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Registry) MarshalYAML() (interface{}, error) {
	return r.node(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Registry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return nodeError(value, "registry must be a mapping")
	}
	if *r == nil {
		*r = Registry{}
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		c, err := parseContainer(value.Content[i+1])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		(*r)[name] = c
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (f Format) MarshalYAML() (interface{}, error) {
	return formatNode(f), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Format) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := parseFormat(value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (r Registry) node() *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range r.Names() {
		root.Content = append(root.Content, scalar(name), containerNode(r[name]))
	}
	return root
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intScalar(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: pairs}
}

func formatsNode(fs []Format) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range fs {
		seq.Content = append(seq.Content, formatNode(f))
	}
	return seq
}

func fieldsNode(fields []Field) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range fields {
		seq.Content = append(seq.Content, mapping(scalar(f.Name), formatNode(f.Format)))
	}
	return seq
}

func formatNode(f Format) *yaml.Node {
	switch f.Kind {
	case TypeName:
		return mapping(scalar("TYPENAME"), scalar(f.Name))
	case Option, Seq:
		return mapping(scalar(f.Kind.String()), formatNode(*f.Elem))
	case Map:
		return mapping(scalar("MAP"), mapping(
			scalar("KEY"), formatNode(*f.Key),
			scalar("VALUE"), formatNode(*f.Value),
		))
	case Tuple:
		return mapping(scalar("TUPLE"), formatsNode(f.Elems))
	case TupleArray:
		return mapping(scalar("TUPLEARRAY"), mapping(
			scalar("CONTENT"), formatNode(*f.Elem),
			scalar("SIZE"), intScalar(f.Size),
		))
	}
	return scalar(f.Kind.String())
}

func containerNode(c ContainerFormat) *yaml.Node {
	switch c.Kind {
	case UnitStruct:
		return scalar("UNITSTRUCT")
	case NewtypeStruct:
		return mapping(scalar("NEWTYPESTRUCT"), formatNode(c.Value))
	case TupleStruct:
		return mapping(scalar("TUPLESTRUCT"), formatsNode(c.Elems))
	case Struct:
		return mapping(scalar("STRUCT"), fieldsNode(c.Fields))
	}
	variants := &yaml.Node{Kind: yaml.MappingNode}
	for _, o := range c.Ordinals() {
		v := c.Variants[o]
		variants.Content = append(variants.Content, intScalar(int(o)), mapping(scalar(v.Name), variantNode(v)))
	}
	return mapping(scalar("ENUM"), variants)
}

func variantNode(v Variant) *yaml.Node {
	switch v.Kind {
	case VariantNewtype:
		return mapping(scalar("NEWTYPE"), formatNode(v.Value))
	case VariantTuple:
		return mapping(scalar("TUPLE"), formatsNode(v.Elems))
	case VariantStruct:
		return mapping(scalar("STRUCT"), fieldsNode(v.Fields))
	}
	return scalar("UNIT")
}

func nodeError(n *yaml.Node, msg string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(msg, args...))
}

// singleKey unpacks a one-entry mapping.
func singleKey(n *yaml.Node) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, nodeError(n, "expected a single-key mapping")
	}
	return n.Content[0].Value, n.Content[1], nil
}

func parseFormat(n *yaml.Node) (Format, error) {
	if n.Kind == yaml.ScalarNode {
		k, ok := primitiveKinds[n.Value]
		if !ok {
			return Format{}, nodeError(n, "unknown format %q", n.Value)
		}
		return Prim(k), nil
	}
	tag, body, err := singleKey(n)
	if err != nil {
		return Format{}, err
	}
	switch tag {
	case "TYPENAME":
		return Named(body.Value), nil
	case "OPTION", "SEQ":
		elem, err := parseFormat(body)
		if err != nil {
			return Format{}, err
		}
		if tag == "OPTION" {
			return OptionOf(elem), nil
		}
		return SeqOf(elem), nil
	case "MAP":
		k, v, err := parsePair(body, "KEY", "VALUE")
		if err != nil {
			return Format{}, err
		}
		key, err := parseFormat(k)
		if err != nil {
			return Format{}, err
		}
		value, err := parseFormat(v)
		if err != nil {
			return Format{}, err
		}
		return MapOf(key, value), nil
	case "TUPLE":
		elems, err := parseFormats(body)
		if err != nil {
			return Format{}, err
		}
		return TupleOf(elems...), nil
	case "TUPLEARRAY":
		c, s, err := parsePair(body, "CONTENT", "SIZE")
		if err != nil {
			return Format{}, err
		}
		elem, err := parseFormat(c)
		if err != nil {
			return Format{}, err
		}
		size, err := strconv.Atoi(s.Value)
		if err != nil || size < 0 {
			return Format{}, nodeError(s, "invalid array size %q", s.Value)
		}
		return ArrayOf(elem, size), nil
	}
	return Format{}, nodeError(n, "unknown format %q", tag)
}

func parsePair(n *yaml.Node, a, b string) (*yaml.Node, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nil, nodeError(n, "expected mapping with %s and %s", a, b)
	}
	var na, nb *yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch n.Content[i].Value {
		case a:
			na = n.Content[i+1]
		case b:
			nb = n.Content[i+1]
		}
	}
	if na == nil || nb == nil {
		return nil, nil, nodeError(n, "expected mapping with %s and %s", a, b)
	}
	return na, nb, nil
}

func parseFormats(n *yaml.Node) ([]Format, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, "expected a sequence")
	}
	out := make([]Format, 0, len(n.Content))
	for _, c := range n.Content {
		f, err := parseFormat(c)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseFields(n *yaml.Node) ([]Field, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, "expected a sequence of fields")
	}
	out := make([]Field, 0, len(n.Content))
	for _, c := range n.Content {
		name, body, err := singleKey(c)
		if err != nil {
			return nil, err
		}
		f, err := parseFormat(body)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out = append(out, Field{Name: name, Format: f})
	}
	return out, nil
}

func parseContainer(n *yaml.Node) (ContainerFormat, error) {
	if n.Kind == yaml.ScalarNode {
		if n.Value != "UNITSTRUCT" {
			return ContainerFormat{}, nodeError(n, "unknown container %q", n.Value)
		}
		return ContainerFormat{Kind: UnitStruct}, nil
	}
	tag, body, err := singleKey(n)
	if err != nil {
		return ContainerFormat{}, err
	}
	switch tag {
	case "NEWTYPESTRUCT":
		f, err := parseFormat(body)
		return ContainerFormat{Kind: NewtypeStruct, Value: f}, err
	case "TUPLESTRUCT":
		fs, err := parseFormats(body)
		return ContainerFormat{Kind: TupleStruct, Elems: fs}, err
	case "STRUCT":
		fields, err := parseFields(body)
		return ContainerFormat{Kind: Struct, Fields: fields}, err
	case "ENUM":
		return parseEnum(body)
	}
	return ContainerFormat{}, nodeError(n, "unknown container %q", tag)
}

func parseEnum(n *yaml.Node) (ContainerFormat, error) {
	if n.Kind != yaml.MappingNode {
		return ContainerFormat{}, nodeError(n, "enum variants must be a mapping")
	}
	c := ContainerFormat{Kind: Enum, Variants: make(map[uint32]Variant)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		ord, err := strconv.ParseUint(n.Content[i].Value, 10, 32)
		if err != nil {
			return c, nodeError(n.Content[i], "invalid variant index %q", n.Content[i].Value)
		}
		name, body, err := singleKey(n.Content[i+1])
		if err != nil {
			return c, err
		}
		v, err := parseVariant(name, body)
		if err != nil {
			return c, fmt.Errorf("variant %s: %w", name, err)
		}
		c.Variants[uint32(ord)] = v
	}
	return c, nil
}

func parseVariant(name string, n *yaml.Node) (Variant, error) {
	if n.Kind == yaml.ScalarNode {
		if n.Value != "UNIT" {
			return Variant{}, nodeError(n, "unknown variant %q", n.Value)
		}
		return Variant{Name: name, Kind: VariantUnit}, nil
	}
	tag, body, err := singleKey(n)
	if err != nil {
		return Variant{}, err
	}
	switch tag {
	case "NEWTYPE":
		f, err := parseFormat(body)
		return Variant{Name: name, Kind: VariantNewtype, Value: f}, err
	case "TUPLE":
		fs, err := parseFormats(body)
		return Variant{Name: name, Kind: VariantTuple, Elems: fs}, err
	case "STRUCT":
		fields, err := parseFields(body)
		return Variant{Name: name, Kind: VariantStruct, Fields: fields}, err
	}
	return Variant{}, nodeError(n, "unknown variant %q", tag)
}
