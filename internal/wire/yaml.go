package wire

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValueNode renders a dynamic value as YAML for display. Field and entry
// order is preserved.
func ValueNode(v any) *yaml.Node {
	switch v := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(v)}
	case float32:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(float64(v), 'g', -1, 32)}
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v, 'g', -1, 64)}
	case Int128:
		n := new(big.Int).Lsh(big.NewInt(v.Hi), 64)
		n.Add(n, new(big.Int).SetUint64(v.Lo))
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: n.String()}
	case Uint128:
		n := new(big.Int).Lsh(new(big.Int).SetUint64(v.Hi), 64)
		n.Add(n, new(big.Int).SetUint64(v.Lo))
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: n.String()}
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	case []byte:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: hex.EncodeToString(v)}
	case Some:
		return ValueNode(v.Value)
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range v {
			seq.Content = append(seq.Content, ValueNode(item))
		}
		return seq
	case []Entry:
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range v {
			m.Content = append(m.Content, ValueNode(e.Key), ValueNode(e.Value))
		}
		return m
	case []NamedValue:
		return fieldsNode(v)
	case StructValue:
		return fieldsNode(v.Fields)
	case EnumValue:
		if v.Value == nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Variant}
		}
		return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Variant},
			ValueNode(v.Value),
		}}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(v)}
}

func fieldsNode(fields []NamedValue) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name}, ValueNode(f.Value))
	}
	return m
}
