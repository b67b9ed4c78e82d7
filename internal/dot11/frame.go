// Package dot11 decodes IEEE 802.11 MAC frames: the frame control word, the
// dispatch from (type, subtype, protected) to a body layout, and the lazily
// parsed information elements carried by management bodies.
package dot11

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen covers the frame control word and the duration field.
const HeaderLen = 4

// Frame is one decoded 802.11 frame.
type Frame struct {
	Control  FrameControl
	Duration uint16
	Body     Body
}

// Key returns the dispatch key of the frame, if its type has one.
func (f *Frame) Key() (DispatchKey, bool) {
	return KeyOfControl(f.Control)
}

// Recognized reports whether a body layout was found for the frame.
func (f *Frame) Recognized() bool {
	return f.Body.Kind != KindUnknown
}

// Bytes mirrors the decoded frame back into wire form.
func (f *Frame) Bytes() []byte {
	out := make([]byte, HeaderLen, HeaderLen+len(f.Body.Payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(f.Control))
	binary.BigEndian.PutUint16(out[2:4], f.Duration)
	return append(out, f.Body.Bytes()...)
}

// Option adjusts a Decoder.
type Option func(*Decoder)

// WithStrictElements makes Decode parse information elements eagerly and fail
// the whole frame when the sequence is truncated.
func WithStrictElements() Option {
	return func(d *Decoder) { d.strict = true }
}

// Decoder turns byte buffers into frames. A Decoder holds no per-frame state
// and may be shared between goroutines.
type Decoder struct {
	registry *Registry
	strict   bool
}

// NewDecoder builds a decoder over reg, or over DefaultRegistry when reg is nil.
func NewDecoder(reg *Registry, opts ...Option) *Decoder {
	if reg == nil {
		reg = DefaultRegistry()
	}
	d := &Decoder{registry: reg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry used for dispatch.
func (d *Decoder) Registry() *Registry {
	return d.registry
}

// Decode decodes buf. Frames whose (type, subtype, protected) has no layout
// decode successfully with a KindUnknown body carrying the remaining bytes.
// The returned frame aliases buf.
func (d *Decoder) Decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderLen {
		return nil, fmt.Errorf("%w: frame needs %d bytes, have %d", ErrTruncatedHeader, HeaderLen, len(buf))
	}
	f := &Frame{
		Control:  FrameControl(binary.BigEndian.Uint16(buf[0:2])),
		Duration: binary.BigEndian.Uint16(buf[2:4]),
	}
	kind, ok := d.registry.Lookup(f.Control)
	if !ok {
		kind = KindUnknown
	}
	body, err := decodeBody(kind, buf[HeaderLen:])
	if err != nil {
		return nil, err
	}
	f.Body = body
	if d.strict && body.Elements != nil {
		if err := body.Elements.Err(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Decode decodes buf with the default registry.
func Decode(buf []byte) (*Frame, error) {
	return NewDecoder(nil).Decode(buf)
}
