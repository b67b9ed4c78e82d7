package dot11

import (
	"fmt"
	"sync"
)

// ElementID is the tag byte of an information element.
type ElementID uint8

const (
	ElementSSID           ElementID = 0
	ElementRates          ElementID = 1
	ElementFH             ElementID = 2
	ElementDS             ElementID = 3
	ElementCF             ElementID = 4
	ElementTIM            ElementID = 5
	ElementIBSS           ElementID = 6
	ElementHTCapabilities ElementID = 45
	ElementExtendedRates  ElementID = 50
	ElementHTInfo         ElementID = 61
)

// elementHeaderLen covers the id and length bytes.
const elementHeaderLen = 2

type elementLayout struct {
	name   string
	fields []FieldSpec
}

var elementLayouts = map[ElementID]elementLayout{
	ElementSSID:           {name: "SSID"},
	ElementRates:          {name: "Supported Rates"},
	ElementFH:             {name: "FH Parameter Set", fields: []FieldSpec{u16("tu"), u8("hopset"), u8("hoppattern"), u8("hopindex")}},
	ElementDS:             {name: "DS Parameter Set", fields: []FieldSpec{u8("ch")}},
	ElementCF:             {name: "CF Parameter Set", fields: []FieldSpec{u8("count"), u8("period"), u16("max"), u16("dur")}},
	ElementTIM:            {name: "TIM", fields: []FieldSpec{u8("count"), u8("period"), u16("ctrl")}},
	ElementIBSS:           {name: "IBSS Parameter Set", fields: []FieldSpec{u16("atim")}},
	ElementHTCapabilities: {name: "HT Capabilities"},
	ElementExtendedRates:  {name: "Extended Supported Rates"},
	ElementHTInfo:         {name: "HT Information"},
}

// Name returns a display name for the element id.
func (id ElementID) Name() string {
	if l, ok := elementLayouts[id]; ok {
		return l.name
	}
	return fmt.Sprintf("Element %d", uint8(id))
}

// Known reports whether id has a dedicated layout.
func (id ElementID) Known() bool {
	_, ok := elementLayouts[id]
	return ok
}

// Element is one decoded information element.
type Element struct {
	ID      ElementID
	Length  uint8
	Payload []byte
	Fields  []Field
	short   bool
}

// Known reports whether the element id has a dedicated layout. Unknown ids
// decode with the generic id+length layout.
func (e Element) Known() bool { return e.ID.Known() }

// Name returns the display name of the element id.
func (e Element) Name() string { return e.ID.Name() }

// Short reports whether the payload was too small for the id's layout. Such
// elements keep their payload but carry no fields.
func (e Element) Short() bool { return e.short }

// Field returns the named decoded field.
func (e Element) Field(name string) (Field, bool) {
	return findField(e.Fields, name)
}

// Bytes mirrors the element back into wire form.
func (e Element) Bytes() []byte {
	out := make([]byte, 0, elementHeaderLen+len(e.Payload))
	out = append(out, byte(e.ID), e.Length)
	return append(out, e.Payload...)
}

// SSID returns the network name carried by an SSID element.
func (e Element) SSID() (string, bool) {
	if e.ID != ElementSSID {
		return "", false
	}
	return string(e.Payload), true
}

// Rate is one supported rate entry in units of 500 kb/s.
type Rate struct {
	Units uint8
	Basic bool
}

// Mbps converts the rate to megabits per second.
func (r Rate) Mbps() float64 {
	return float64(r.Units) / 2
}

// Rates decodes supported or extended supported rates.
func (e Element) Rates() ([]Rate, bool) {
	if e.ID != ElementRates && e.ID != ElementExtendedRates {
		return nil, false
	}
	out := make([]Rate, 0, len(e.Payload))
	for _, b := range e.Payload {
		out = append(out, Rate{Units: b & 0x7f, Basic: b&0x80 != 0})
	}
	return out, true
}

// Channel returns the current channel of a DS parameter set.
func (e Element) Channel() (uint8, bool) {
	if e.ID != ElementDS {
		return 0, false
	}
	f, ok := e.Field("ch")
	if !ok {
		return 0, false
	}
	return uint8(f.Uint()), true
}

func decodeElement(record []byte) Element {
	el := Element{
		ID:      ElementID(record[0]),
		Length:  record[1],
		Payload: record[elementHeaderLen:],
	}
	layout, ok := elementLayouts[el.ID]
	if !ok || len(layout.fields) == 0 {
		return el
	}
	fields, _, ok := decodeFields(layout.fields, el.Payload)
	if !ok {
		el.short = true
		return el
	}
	el.Fields = fields
	return el
}

// ParseElements decodes back-to-back information elements spanning buf. On a
// truncated record it returns the elements decoded before it together with a
// *TruncatedElementError; it never reads past the end of buf.
func ParseElements(buf []byte) ([]Element, error) {
	var out []Element
	off := 0
	for off < len(buf) {
		if off+1 >= len(buf) {
			return out, &TruncatedElementError{
				Offset:    off,
				ID:        ElementID(buf[off]),
				Declared:  -1,
				Remaining: len(buf) - off - 1,
			}
		}
		declared := int(buf[off+1])
		end := off + elementHeaderLen + declared
		if end > len(buf) {
			return out, &TruncatedElementError{
				Offset:    off,
				ID:        ElementID(buf[off]),
				Declared:  declared,
				Remaining: len(buf) - off - elementHeaderLen,
			}
		}
		out = append(out, decodeElement(buf[off:end]))
		off = end
	}
	return out, nil
}

type elementsState uint8

const (
	elementsUnparsed elementsState = iota
	elementsParsed
)

// Elements is a lazily decoded element sequence. The byte range is captured
// at construction; the first accessor call decodes it and later calls replay
// the cached result. It is safe for concurrent use.
type Elements struct {
	mu    sync.Mutex
	state elementsState
	raw   []byte
	items []Element
	err   error
}

// NewElements captures raw without decoding it.
func NewElements(raw []byte) *Elements {
	return &Elements{raw: raw}
}

func (e *Elements) materialize() ([]Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == elementsUnparsed {
		e.items, e.err = ParseElements(e.raw)
		e.state = elementsParsed
	}
	return e.items, e.err
}

// Parsed reports whether the sequence has been decoded.
func (e *Elements) Parsed() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == elementsParsed
}

// Raw returns the captured bytes.
func (e *Elements) Raw() []byte {
	if e == nil {
		return nil
	}
	return e.raw
}

// All returns every element decoded before any truncation along with the
// truncation error, if any. The returned slice must not be modified.
func (e *Elements) All() ([]Element, error) {
	if e == nil {
		return nil, nil
	}
	return e.materialize()
}

// Err returns the truncation error of the sequence, decoding it if needed.
func (e *Elements) Err() error {
	_, err := e.All()
	return err
}

// Len returns the number of cleanly decoded elements.
func (e *Elements) Len() int {
	items, _ := e.All()
	return len(items)
}

// At returns the i-th element.
func (e *Elements) At(i int) (Element, bool) {
	items, _ := e.All()
	if i < 0 || i >= len(items) {
		return Element{}, false
	}
	return items[i], true
}

// Find returns the first element with the given id.
func (e *Elements) Find(id ElementID) (Element, bool) {
	items, _ := e.All()
	for _, el := range items {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}
