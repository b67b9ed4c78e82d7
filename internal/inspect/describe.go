package inspect

import (
	"encoding/hex"
	"fmt"
	"math/bits"

	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/dot11"
)

// FrameView is the JSON rendering of a decoded frame.
type FrameView struct {
	Control      string        `json:"control"`
	Type         string        `json:"type"`
	Subtype      uint8         `json:"subtype"`
	SubtypeName  string        `json:"subtypeName"`
	Flags        string        `json:"flags,omitempty"`
	Duration     uint16        `json:"duration"`
	Key          *int          `json:"key"`
	Kind         string        `json:"kind"`
	Fields       []FieldView   `json:"fields,omitempty"`
	Elements     []ElementView `json:"elements,omitempty"`
	ElementError string        `json:"elementError,omitempty"`
	Payload      string        `json:"payload,omitempty"`
	PayloadLen   int           `json:"payloadLen"`
}

type FieldView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

type ElementView struct {
	ID      uint8       `json:"id"`
	Name    string      `json:"name"`
	Length  uint8       `json:"length"`
	Value   string      `json:"value,omitempty"`
	Fields  []FieldView `json:"fields,omitempty"`
	Short   bool        `json:"short,omitempty"`
	Generic bool        `json:"generic,omitempty"`
}

// Describe renders f for display. Station names from stations label address
// fields; stations may be nil. Describe materializes the frame's elements.
func Describe(f *dot11.Frame, stations *dict.Store) FrameView {
	fc := f.Control
	v := FrameView{
		Control:     fmt.Sprintf("0x%04X", uint16(fc)),
		Type:        fc.Type().String(),
		Subtype:     fc.Subtype(),
		SubtypeName: dot11.SubtypeName(fc.Type(), fc.Subtype()),
		Flags:       fc.Flags(),
		Duration:    f.Duration,
		Kind:        f.Body.Kind.String(),
		PayloadLen:  len(f.Body.Payload),
	}
	if key, ok := f.Key(); ok {
		k := int(key)
		v.Key = &k
	}
	for _, field := range f.Body.Fields {
		v.Fields = append(v.Fields, describeField(field, stations))
	}
	if len(f.Body.Payload) > 0 {
		v.Payload = hex.EncodeToString(f.Body.Payload)
	}
	if f.Body.Elements != nil {
		items, err := f.Body.Elements.All()
		for _, el := range items {
			v.Elements = append(v.Elements, describeElement(el))
		}
		if err != nil {
			v.ElementError = err.Error()
		}
	}
	return v
}

func describeField(f dot11.Field, stations *dict.Store) FieldView {
	fv := FieldView{Name: f.Name, Value: f.String()}
	switch {
	case f.Format == dot11.FormatMAC:
		if entry, ok := stations.LookupStation(f.MAC()); ok {
			fv.Label = entry.Name
		}
	case f.Name == "reason":
		fv.Label = dot11.ReasonString(wireUint16(f))
	case f.Name == "status":
		fv.Label = dot11.StatusString(wireUint16(f))
	case f.Name == "frag_seq":
		n := wireUint16(f)
		fv.Label = fmt.Sprintf("seq %d frag %d", n>>4, n&0x0f)
	}
	return fv
}

// wireUint16 returns a two-byte field in on-air (little-endian) order. Field
// values are read big-endian, so labels swap them back first.
func wireUint16(f dot11.Field) uint16 {
	return bits.ReverseBytes16(uint16(f.Uint()))
}

func describeElement(el dot11.Element) ElementView {
	ev := ElementView{
		ID:      uint8(el.ID),
		Name:    el.Name(),
		Length:  el.Length,
		Short:   el.Short(),
		Generic: !el.Known(),
	}
	if ssid, ok := el.SSID(); ok {
		ev.Value = fmt.Sprintf("%q", ssid)
	} else if rates, ok := el.Rates(); ok {
		s := ""
		for i, r := range rates {
			if i > 0 {
				s += " "
			}
			s += fmt.Sprintf("%g", r.Mbps())
			if r.Basic {
				s += "*"
			}
		}
		ev.Value = s
	} else if len(el.Fields) == 0 {
		ev.Value = hex.EncodeToString(el.Payload)
	}
	for _, f := range el.Fields {
		ev.Fields = append(ev.Fields, FieldView{Name: f.Name, Value: f.String()})
	}
	return ev
}
