// Package pipeline runs the generator stages in order: load the API model,
// trace the schema, enumerate functions, emit sources and write them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/config"
	"github.com/jcdickinson/eguinet/internal/csharp"
	"github.com/jcdickinson/eguinet/internal/enumerate"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
	"github.com/jcdickinson/eguinet/internal/tracer"
)

// State is a pipeline stage boundary.
type State int

const (
	Start State = iota
	Loaded
	Traced
	Enumerated
	Emitted
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Loaded:
		return "loaded"
	case Traced:
		return "traced"
	case Enumerated:
		return "enumerated"
	case Emitted:
		return "emitted"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures a run.
type Options struct {
	// DryRun computes every output without writing.
	DryRun bool
	// Stop ends the run successfully once this state is reached. Zero runs
	// to Done.
	Stop State
}

// Result is everything a run produced. Fields are filled up to the state
// the run reached.
type Result struct {
	Model       *rustdoc.Model
	Registry    schema.Registry
	Enumeration *enumerate.Enumeration
	Native      []byte
	Managed     []csharp.File
	// Diagnostics are the non-fatal UnsupportedSignature and
	// UnsupportedField errors: enumeration first, then emission, each
	// sorted by subject.
	Diagnostics []*bgerr.Error
	Changes     []FileChange
}

// Summary counts diagnostics per kind.
func (r *Result) Summary() map[bgerr.Kind]int {
	out := make(map[bgerr.Kind]int)
	for _, d := range r.Diagnostics {
		out[d.Kind]++
	}
	return out
}

// Pipeline is one generator run. It is not reusable.
type Pipeline struct {
	cfg     *config.Config
	opts    Options
	state   State
	failure bgerr.Kind
	history []State
}

func New(cfg *config.Config, opts Options) *Pipeline {
	if opts.Stop == Start {
		opts.Stop = Done
	}
	return &Pipeline{cfg: cfg, opts: opts, state: Start, history: []State{Start}}
}

// State is the last state reached.
func (p *Pipeline) State() State {
	return p.state
}

// Failure is the kind of the error that halted the run, or "".
func (p *Pipeline) Failure() bgerr.Kind {
	return p.failure
}

// History lists every state entered, in order.
func (p *Pipeline) History() []State {
	return p.history
}

func (p *Pipeline) enter(s State) {
	p.state = s
	p.history = append(p.history, s)
	Logger().Debug("pipeline state", zap.Stringer("state", s))
}

func (p *Pipeline) fail(err error) error {
	p.failure = bgerr.KindIO
	var be *bgerr.Error
	if errors.As(err, &be) {
		p.failure = be.Kind
	}
	p.enter(Failed)
	Logger().Error("pipeline failed", zap.String("kind", string(p.failure)), zap.Error(err))
	return err
}

// Run executes the stages. Any error halts the run in the Failed state;
// diagnostics do not.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.state != Start {
		return nil, fmt.Errorf("pipeline already ran (state %s)", p.state)
	}
	res := &Result{}
	stages := []struct {
		to  State
		run func(context.Context, *Result) error
	}{
		{Loaded, p.load},
		{Traced, p.trace},
		{Enumerated, p.enumerate},
		{Emitted, p.emit},
		{Done, p.write},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return res, p.fail(err)
		}
		if err := st.run(ctx, res); err != nil {
			return res, p.fail(err)
		}
		p.enter(st.to)
		if st.to == p.opts.Stop {
			break
		}
	}
	return res, nil
}

func (p *Pipeline) load(ctx context.Context, res *Result) error {
	crate, err := rustdoc.LoadFiles(ctx, p.cfg.Generate.Inputs)
	if err != nil {
		return err
	}
	res.Model = rustdoc.NewModel(crate)
	Logger().Info("loaded API model",
		zap.Int("inputs", len(p.cfg.Generate.Inputs)),
		zap.Int("items", len(crate.Index)))
	return nil
}

func (p *Pipeline) tracerOptions() (tracer.Options, error) {
	samples, err := tracer.LoadSamples(p.cfg.Generate.Samples)
	if err != nil {
		return tracer.Options{}, err
	}
	return tracer.Options{
		ExcludeTypes:       p.cfg.Exclude.Types.Set(),
		ExcludeDefinitions: p.cfg.Exclude.Definitions.Set(),
		Samples:            samples,
	}, nil
}

func (p *Pipeline) trace(_ context.Context, res *Result) error {
	opts, err := p.tracerOptions()
	if err != nil {
		return err
	}
	reg, err := tracer.New(tracer.NewIREngine(res.Model), opts).Run(res.Model)
	if err != nil {
		return err
	}
	// Dangling references are reported per field by the emitter; a broken
	// layout is fatal.
	if err := reg.ValidateLayout(); err != nil {
		return err
	}
	res.Registry = reg
	Logger().Info("traced schema", zap.Int("types", len(reg)))
	return nil
}

func (p *Pipeline) enumerate(_ context.Context, res *Result) error {
	lock, err := enumerate.LoadLock(p.cfg.Generate.LockFile)
	if err != nil {
		return err
	}
	e := enumerate.Enumerate(res.Model, enumerate.Options{
		Crates:               p.cfg.Generate.Crates,
		Registry:             res.Registry,
		Extern:               p.cfg.Exclude.Definitions.Set(),
		ExcludeFunctions:     p.cfg.Exclude.Functions.Set(),
		ExcludeFunctionNames: p.cfg.Exclude.FunctionNames.Set(),
		Unbound:              p.cfg.Exclude.Unbound.Set(),
		Lock:                 lock,
	})
	native, err := e.EmitNative()
	if err != nil {
		return err
	}
	res.Enumeration = e
	res.Native = native
	res.Diagnostics = append(res.Diagnostics, e.Diagnostics...)
	Logger().Info("enumerated functions",
		zap.Int("ordinals", e.Len()),
		zap.Int("reserved", len(e.Reserved)),
		zap.Int("skipped", len(e.Diagnostics)))
	return nil
}

func (p *Pipeline) emit(_ context.Context, res *Result) error {
	out, err := csharp.Emit(res.Model, res.Registry, res.Enumeration, csharp.Options{
		Namespace:   p.cfg.Namespace,
		CStyleEnums: p.cfg.Generate.CStyleEnums,
		Extern:      p.cfg.Exclude.Definitions.Set(),
	})
	if err != nil {
		return err
	}
	res.Managed = out.Files
	res.Diagnostics = append(res.Diagnostics, out.Diagnostics...)
	Logger().Info("emitted managed surface",
		zap.Int("files", len(out.Files)),
		zap.Int("unsupported_fields", len(out.Diagnostics)))
	return nil
}

func (p *Pipeline) write(_ context.Context, res *Result) error {
	w := &Writer{DryRun: p.opts.DryRun}
	gen := p.cfg.Generate

	reg, err := schema.Marshal(res.Registry)
	if err != nil {
		return err
	}
	lock, err := res.Enumeration.Lock().Marshal()
	if err != nil {
		return err
	}
	for _, f := range []struct {
		path    string
		content []byte
	}{
		{gen.RegistryFile, reg},
		{gen.NativeFile, res.Native},
		{gen.LockFile, lock},
	} {
		if f.path == "" {
			continue
		}
		if _, err := w.Write(f.path, f.content); err != nil {
			return err
		}
	}

	for _, f := range res.Managed {
		if _, err := w.Write(filepath.Join(gen.ManagedDir, filepath.FromSlash(f.Path)), f.Content); err != nil {
			return err
		}
	}
	if err := w.Prune(gen.ManagedDir, ".g.cs"); err != nil {
		return err
	}

	res.Changes = w.Changes()
	changed := 0
	for _, c := range res.Changes {
		if c.Change != Unchanged {
			changed++
		}
	}
	Logger().Info("wrote outputs",
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Int("files", len(res.Changes)),
		zap.Int("changed", changed))
	return nil
}
