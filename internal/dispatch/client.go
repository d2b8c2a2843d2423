package dispatch

import (
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/enumerate"
	"github.com/jcdickinson/eguinet/internal/wire"
)

// Client calls through a Table the way the managed marshaller does: it
// encodes arguments, invokes, copies the returned bytes out of its buffer
// and decodes them. A Client is not safe for concurrent use.
type Client struct {
	table *Table
	fns   *enumerate.Enumeration
	buf   ReturnBuffer
}

// NewClient returns a client for table. fns, when not nil, names ordinals
// in errors.
func NewClient(table *Table, fns *enumerate.Enumeration) *Client {
	return &Client{table: table, fns: fns}
}

// Call invokes ordinal with encoded arguments and returns a copy of the
// result. A missing invoker is a BindingMissing error naming the ordinal.
func (c *Client) Call(ordinal uint32, args []byte) ([]byte, error) {
	r := c.table.Invoke(&c.buf, ordinal, args)
	if !r.Found {
		key := ""
		if c.fns != nil {
			if d, err := c.fns.Lookup(ordinal); err == nil {
				key = d.Key
			}
		}
		return nil, bgerr.BindingMissing(ordinal, key)
	}
	return append([]byte{}, r.Ret...), nil
}

func call[R any](c *Client, ordinal uint32, rc wire.Codec[R], s *wire.Serializer) (R, error) {
	ret, err := c.Call(ordinal, s.Bytes())
	if err != nil {
		var zero R
		return zero, err
	}
	return wire.Decode(rc, ret)
}

// Call0 calls a nullary function.
func Call0[R any](c *Client, ordinal uint32, rc wire.Codec[R]) (R, error) {
	return call(c, ordinal, rc, wire.NewSerializer(nil))
}

// Call1 calls a function of one argument. Methods pass their receiver
// first.
func Call1[A, R any](c *Client, ordinal uint32, ac wire.Codec[A], a A, rc wire.Codec[R]) (R, error) {
	s := wire.NewSerializer(nil)
	if err := ac.Encode(s, a); err != nil {
		var zero R
		return zero, err
	}
	return call(c, ordinal, rc, s)
}

// Call2 calls a function of two arguments.
func Call2[A, B, R any](c *Client, ordinal uint32, ac wire.Codec[A], a A, bc wire.Codec[B], b B, rc wire.Codec[R]) (R, error) {
	s := wire.NewSerializer(nil)
	if err := ac.Encode(s, a); err != nil {
		var zero R
		return zero, err
	}
	if err := bc.Encode(s, b); err != nil {
		var zero R
		return zero, err
	}
	return call(c, ordinal, rc, s)
}
