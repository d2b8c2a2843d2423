package dispatch

import (
	"fmt"

	"github.com/jcdickinson/eguinet/internal/enumerate"
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/wire"
)

// Result is what invoke hands back across the boundary. Ret aliases the
// return buffer it was produced into and is valid until the next Invoke on
// that buffer.
type Result struct {
	Found bool
	Ret   []byte
}

// ReturnBuffer is the per-caller buffer results are encoded into. It is
// reset on every call and its capacity only grows. A ReturnBuffer must not
// be shared between goroutines; each caller owns one, the way each native
// thread owns its thread-local buffer.
type ReturnBuffer struct {
	s wire.Serializer
}

// Cap is the buffer's current capacity.
func (b *ReturnBuffer) Cap() int {
	return cap(b.s.Bytes())
}

// Builder assembles a Table. The zero value is not usable; call NewBuilder.
type Builder struct {
	invokers []*Invoker
}

// NewBuilder returns a builder for a table of n ordinals.
func NewBuilder(n int) *Builder {
	return &Builder{invokers: make([]*Invoker, n)}
}

// With registers the invoker for an ordinal. Registering an ordinal twice
// or one outside the table is a programming error and panics.
func (b *Builder) With(ordinal uint32, inv Invoker) *Builder {
	if int(ordinal) >= len(b.invokers) {
		panic(fmt.Sprintf("dispatch: ordinal %d outside a table of %d", ordinal, len(b.invokers)))
	}
	if b.invokers[ordinal] != nil {
		panic(fmt.Sprintf("dispatch: ordinal %d registered twice", ordinal))
	}
	b.invokers[ordinal] = &inv
	return b
}

// Build freezes the builder into a Table. The builder must not be used
// afterwards.
func (b *Builder) Build() *Table {
	t := &Table{invokers: b.invokers}
	b.invokers = nil
	return t
}

// Table maps ordinals to invokers. It is immutable and safe for concurrent
// use.
type Table struct {
	invokers []*Invoker
}

// Bind builds the table of an enumeration from invokers keyed by canonical
// key, the way the generated native table is built. Every bound descriptor
// needs an invoker; unbound and reserved ordinals stay empty.
func Bind(e *enumerate.Enumeration, targets map[string]Invoker) (*Table, error) {
	b := NewBuilder(e.Len())
	used := 0
	for i := range e.Descriptors {
		d := &e.Descriptors[i]
		inv, ok := targets[d.Key]
		switch {
		case d.Bound && !ok:
			return nil, bgerr.BindingMissing(d.Ordinal, d.Key)
		case !d.Bound && ok:
			return nil, bgerr.New(bgerr.StageRuntime, bgerr.KindInvalidConfig).
				Subject(d.Key).
				Detail("invoker given for an unbound function").
				Build()
		case ok:
			b.With(d.Ordinal, inv)
			used++
		}
	}
	if used != len(targets) {
		for key := range targets {
			if _, ok := e.ByKey(key); !ok {
				return nil, bgerr.New(bgerr.StageRuntime, bgerr.KindOrdinalNotFound).
					Subject(key).
					Detail("no ordinal is assigned to this key").
					Build()
			}
		}
	}
	return b.Build(), nil
}

// Len is the number of ordinals, bound or not.
func (t *Table) Len() int {
	return len(t.invokers)
}

// Has reports whether an ordinal has an invoker.
func (t *Table) Has(ordinal uint32) bool {
	return int(ordinal) < len(t.invokers) && t.invokers[ordinal] != nil
}

// Invoke calls the function registered for ordinal with the encoded
// argument tuple. An ordinal without an invoker yields Found false and no
// bytes. Arguments that do not decode, or a result that does not encode,
// panic: both sides are generated from one schema, so a mismatch is a
// programming error.
func (t *Table) Invoke(buf *ReturnBuffer, ordinal uint32, args []byte) Result {
	if !t.Has(ordinal) {
		return Result{}
	}
	inv := t.invokers[ordinal]

	buf.s.Reset()
	d := wire.NewDeserializer(args)
	if err := inv.thunk(inv.data, d, &buf.s); err != nil {
		panic(fmt.Sprintf("dispatch: ordinal %d: %v", ordinal, err))
	}
	if err := d.Finish(); err != nil {
		panic(fmt.Sprintf("dispatch: ordinal %d: %v", ordinal, err))
	}
	return Result{Found: true, Ret: buf.s.Bytes()}
}

// Call is Invoke with a private buffer; the result does not alias anything.
func (t *Table) Call(ordinal uint32, args []byte) Result {
	var buf ReturnBuffer
	r := t.Invoke(&buf, ordinal, args)
	if r.Found {
		r.Ret = append([]byte{}, r.Ret...)
	}
	return r
}
