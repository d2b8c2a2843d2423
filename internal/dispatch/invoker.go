// Package dispatch is the runtime side of the function registry: an
// immutable table mapping ordinals to type-erased invokers, and the invoke
// entry point that decodes arguments, calls the target and encodes the
// result into a caller-owned return buffer.
package dispatch

import (
	"fmt"
	"unsafe"

	"github.com/jcdickinson/eguinet/internal/wire"
)

// thunk decodes the argument tuple, calls the function stored in data and
// encodes the result.
type thunk func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error

// Invoker is a type-erased {data, thunk} pair. data holds the target
// function; the thunk knows its concrete signature.
type Invoker struct {
	data  unsafe.Pointer
	thunk thunk
}

// newInvoker stores fn behind a pointer-sized slot. Every constructor goes
// through here so the size assertion covers all signatures.
func newInvoker[F any](fn F, th thunk) Invoker {
	if unsafe.Sizeof(fn) != unsafe.Sizeof(uintptr(0)) {
		panic(fmt.Sprintf("dispatch: target of type %T does not fit a pointer-sized slot", fn))
	}
	p := new(F)
	*p = fn
	return Invoker{data: unsafe.Pointer(p), thunk: th}
}

func target[F any](data unsafe.Pointer) F {
	return *(*F)(data)
}

// Func0 binds a nullary function.
func Func0[R any](fn func() R, rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, _ *wire.Deserializer, s *wire.Serializer) error {
		return rc.Encode(s, target[func() R](data)())
	})
}

// Func1 binds a function of one argument.
func Func1[A, R any](fn func(A) R, ac wire.Codec[A], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		a, err := ac.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(A) R](data)(a))
	})
}

// Func2 binds a function of two arguments.
func Func2[A, B, R any](fn func(A, B) R, ac wire.Codec[A], bc wire.Codec[B], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		a, err := ac.Decode(d)
		if err != nil {
			return err
		}
		b, err := bc.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(A, B) R](data)(a, b))
	})
}

// Func3 binds a function of three arguments.
func Func3[A, B, C, R any](fn func(A, B, C) R, ac wire.Codec[A], bc wire.Codec[B], cc wire.Codec[C], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		a, err := ac.Decode(d)
		if err != nil {
			return err
		}
		b, err := bc.Decode(d)
		if err != nil {
			return err
		}
		c, err := cc.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(A, B, C) R](data)(a, b, c))
	})
}

// Method0 binds a method taking its receiver by shared reference. The
// receiver travels by value and is borrowed for the call.
func Method0[S, R any](fn func(*S) R, sc wire.Codec[S], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		self, err := sc.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(*S) R](data)(&self))
	})
}

// Method1 binds a shared-reference method of one argument.
func Method1[S, A, R any](fn func(*S, A) R, sc wire.Codec[S], ac wire.Codec[A], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		self, err := sc.Decode(d)
		if err != nil {
			return err
		}
		a, err := ac.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(*S, A) R](data)(&self, a))
	})
}

// Method2 binds a shared-reference method of two arguments.
func Method2[S, A, B, R any](fn func(*S, A, B) R, sc wire.Codec[S], ac wire.Codec[A], bc wire.Codec[B], rc wire.Codec[R]) Invoker {
	return newInvoker(fn, func(data unsafe.Pointer, d *wire.Deserializer, s *wire.Serializer) error {
		self, err := sc.Decode(d)
		if err != nil {
			return err
		}
		a, err := ac.Decode(d)
		if err != nil {
			return err
		}
		b, err := bc.Decode(d)
		if err != nil {
			return err
		}
		return rc.Encode(s, target[func(*S, A, B) R](data)(&self, a, b))
	})
}
