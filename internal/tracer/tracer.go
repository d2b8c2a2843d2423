package tracer

import (
	"os"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/naming"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// Options configures a tracing run.
type Options struct {
	// ExcludeTypes are never seeded and are removed from the result.
	ExcludeTypes map[string]bool
	// ExcludeDefinitions are traced but removed from the result; their wire
	// form is hand-authored.
	ExcludeDefinitions map[string]bool
	// Samples are observed layouts that replace type-derived ones.
	Samples schema.Registry
}

// Tracer drives an Engine over the serializable types of a model.
type Tracer struct {
	engine Engine
	opts   Options
}

func New(engine Engine, opts Options) *Tracer {
	return &Tracer{engine: engine, opts: opts}
}

// Seeds returns the own-crate types that implement both Serialize and
// Deserialize and are not excluded, sorted by name.
func Seeds(model *rustdoc.Model, exclude map[string]bool) ([]string, error) {
	var (
		names []string
		seen  = make(map[string]rustdoc.Id)
	)
	for _, id := range model.Types() {
		name := model.Name(id)
		if exclude[name] {
			continue
		}
		if !model.Implements(id, "Serialize") || !model.Implements(id, "Deserialize") {
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, bgerr.New(bgerr.StageTrace, bgerr.KindDuplicateTypeName).
				Subject(name).
				Detail("declared at %s and %s", model.RustPath(prev), model.RustPath(id)).
				Build()
		}
		seen[name] = id
		names = append(names, name)
	}
	return names, nil
}

// Run traces every seed, applies the samples and post-processes the
// registry: struct fields become PascalCase and excluded entries are
// removed.
func (t *Tracer) Run(model *rustdoc.Model) (schema.Registry, error) {
	seeds, err := Seeds(model, t.opts.ExcludeTypes)
	if err != nil {
		return nil, err
	}

	for _, name := range t.opts.Samples.Names() {
		if err := t.engine.TraceValue(name, t.opts.Samples[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range seeds {
		if _, sampled := t.opts.Samples[name]; sampled {
			continue
		}
		if err := t.engine.TraceType(name); err != nil {
			return nil, err
		}
	}

	reg, err := t.engine.Registry()
	if err != nil {
		return nil, err
	}

	out := make(schema.Registry, len(reg))
	for name, c := range reg {
		if t.opts.ExcludeTypes[name] || t.opts.ExcludeDefinitions[name] {
			continue
		}
		out[name] = pascalFields(c)
	}
	return out, nil
}

func pascalFields(c schema.ContainerFormat) schema.ContainerFormat {
	c.Fields = renameFields(c.Fields)
	if c.Variants != nil {
		variants := make(map[uint32]schema.Variant, len(c.Variants))
		for o, v := range c.Variants {
			v.Fields = renameFields(v.Fields)
			variants[o] = v
		}
		c.Variants = variants
	}
	return c
}

func renameFields(fields []schema.Field) []schema.Field {
	if fields == nil {
		return nil
	}
	out := make([]schema.Field, len(fields))
	for i, f := range fields {
		out[i] = schema.Field{Name: naming.ToPascalCase(f.Name), Format: f.Format}
	}
	return out
}

// LoadSamples reads observed layouts from a registry YAML file. An empty
// path yields no samples.
func LoadSamples(path string) (schema.Registry, error) {
	if path == "" {
		return schema.Registry{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bgerr.IO(bgerr.StageTrace, path, err)
	}
	reg, err := schema.Unmarshal(data)
	if err != nil {
		return nil, bgerr.New(bgerr.StageTrace, bgerr.KindParse).Subject(path).Cause(err).Build()
	}
	return reg, nil
}

// Extern returns the names a registry may reference without defining:
// hand-authored definitions.
func (o Options) Extern() map[string]bool {
	out := make(map[string]bool, len(o.ExcludeDefinitions))
	for name := range o.ExcludeDefinitions {
		out[name] = true
	}
	return out
}
