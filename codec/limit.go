package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size in both
// directions. If Max <= 0, size limiting is disabled.
//
// Typical use: keep a single oversized value from being generated into a
// shared cache (the server enforces its own cap too), and protect against
// oversized inputs coming back from one.
type Limit[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec[V]

	// Max is the maximum permitted payload length in bytes. Encode fails
	// after the inner encode when the output exceeds Max; Decode fails
	// before the inner decode runs.
	Max int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, fmt.Errorf("payload too large: %d > %d", len(b), c.Max)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
