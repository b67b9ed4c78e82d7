package dot11

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Field is one decoded fixed-width field. Raw aliases the frame buffer.
type Field struct {
	FieldSpec
	Raw []byte
}

// Uint returns the field as a big-endian unsigned integer.
func (f Field) Uint() uint64 {
	switch len(f.Raw) {
	case 1:
		return uint64(f.Raw[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(f.Raw))
	case 4:
		return uint64(binary.BigEndian.Uint32(f.Raw))
	case 8:
		return binary.BigEndian.Uint64(f.Raw)
	}
	var v uint64
	for _, b := range f.Raw {
		v = v<<8 | uint64(b)
	}
	return v
}

// MAC returns the field as a hardware address.
func (f Field) MAC() net.HardwareAddr {
	return net.HardwareAddr(f.Raw)
}

// String renders the field according to its format.
func (f Field) String() string {
	if f.Format == FormatMAC {
		return f.MAC().String()
	}
	return fmt.Sprintf("%d", f.Uint())
}

// decodeFields splits buf according to specs. It returns the decoded fields
// and the bytes following them, or false if buf is too short.
func decodeFields(specs []FieldSpec, buf []byte) ([]Field, []byte, bool) {
	out := make([]Field, 0, len(specs))
	off := 0
	for _, spec := range specs {
		if off+spec.Width > len(buf) {
			return nil, nil, false
		}
		out = append(out, Field{FieldSpec: spec, Raw: buf[off : off+spec.Width]})
		off += spec.Width
	}
	return out, buf[off:], true
}

func findField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Body is a decoded frame body. Unknown bodies carry only Payload.
type Body struct {
	Kind     BodyKind
	Fields   []Field
	Elements *Elements
	Payload  []byte
}

// Field returns the named fixed field.
func (b *Body) Field(name string) (Field, bool) {
	if b == nil {
		return Field{}, false
	}
	return findField(b.Fields, name)
}

// Uint returns the named field as an integer.
func (b *Body) Uint(name string) (uint64, bool) {
	f, ok := b.Field(name)
	if !ok {
		return 0, false
	}
	return f.Uint(), true
}

// MAC returns the named address field.
func (b *Body) MAC(name string) (net.HardwareAddr, bool) {
	f, ok := b.Field(name)
	if !ok || f.Format != FormatMAC {
		return nil, false
	}
	return f.MAC(), true
}

// Addresses returns the MAC address fields in layout order.
func (b *Body) Addresses() []Field {
	if b == nil {
		return nil
	}
	var out []Field
	for _, f := range b.Fields {
		if f.Format == FormatMAC {
			out = append(out, f)
		}
	}
	return out
}

// Bytes mirrors the decoded layout back into wire form.
func (b *Body) Bytes() []byte {
	if b == nil {
		return nil
	}
	var out []byte
	for _, f := range b.Fields {
		out = append(out, f.Raw...)
	}
	if b.Elements != nil {
		out = append(out, b.Elements.Raw()...)
	}
	return append(out, b.Payload...)
}

func decodeBody(kind BodyKind, buf []byte) (Body, error) {
	layout := LayoutOf(kind)
	if kind == KindUnknown {
		return Body{Kind: KindUnknown, Payload: buf}, nil
	}
	fields, rest, ok := decodeFields(layout.Fields, buf)
	if !ok {
		return Body{}, fmt.Errorf("%w: %s body needs %d bytes, have %d",
			ErrTruncatedHeader, kind, layout.FixedLen(), len(buf))
	}
	body := Body{Kind: kind, Fields: fields}
	if layout.Elements {
		body.Elements = NewElements(rest)
	} else if len(rest) > 0 {
		body.Payload = rest
	}
	return body, nil
}
