package dot11

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

var (
	testBSSID   = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	testStation = []byte{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
	broadcast   = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func header(fc FrameControl, duration uint16) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(fc))
	binary.BigEndian.PutUint16(buf[2:4], duration)
	return buf
}

func buildBeacon(elements []byte) []byte {
	buf := header(0x8000, 0)
	buf = append(buf, broadcast...)
	buf = append(buf, testBSSID...)
	buf = append(buf, testBSSID...)
	buf = append(buf, 0x00, 0x10)                    // frag_seq
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0x12, 0x34) // ts
	buf = append(buf, 0x00, 0x64)                    // interval
	buf = append(buf, 0x04, 0x31)                    // capa
	return append(buf, elements...)
}

func TestDecodeBeacon(t *testing.T) {
	ies := []byte{0x00, 0x03, 0x41, 0x42, 0x43, 0x01, 0x02, 0x82, 0x84}
	f, err := Decode(buildBeacon(ies))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Body.Kind != KindBeacon {
		t.Fatalf("kind = %s, want Beacon", f.Body.Kind)
	}
	if key, _ := f.Key(); key != 24 {
		t.Fatalf("key = %d, want 24", key)
	}
	dst, ok := f.Body.MAC("dst")
	if !ok || dst.String() != "ff:ff:ff:ff:ff:ff" {
		t.Fatalf("dst = %v, %v", dst, ok)
	}
	if src, _ := f.Body.MAC("src1"); !bytes.Equal(src, testBSSID) {
		t.Fatalf("src1 = %v", src)
	}
	if ts, _ := f.Body.Uint("ts"); ts != 0x1234 {
		t.Fatalf("ts = %d", ts)
	}
	if interval, _ := f.Body.Uint("interval"); interval != 100 {
		t.Fatalf("interval = %d", interval)
	}
	if len(f.Body.Addresses()) != 3 {
		t.Fatalf("addresses = %d, want 3", len(f.Body.Addresses()))
	}
	els := f.Body.Elements
	if els == nil {
		t.Fatal("beacon has no element sequence")
	}
	if els.Parsed() {
		t.Fatal("elements parsed eagerly")
	}
	if !bytes.Equal(els.Raw(), ies) {
		t.Fatalf("raw elements = % x", els.Raw())
	}
	if els.Len() != 2 {
		t.Fatalf("elements = %d, want 2", els.Len())
	}
	ssid, _ := els.Find(ElementSSID)
	if name, _ := ssid.SSID(); name != "ABC" {
		t.Fatalf("ssid = %q", name)
	}
}

func TestDecodeLayoutsFixedOffsets(t *testing.T) {
	tests := []struct {
		kind   BodyKind
		offset int
	}{
		{KindBeacon, 32},
		{KindProbeResp, 32},
		{KindProbeReq, 20},
		{KindAssocReq, 24},
		{KindAssocResp, 26},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			l := LayoutOf(tc.kind)
			if !l.Elements {
				t.Fatal("layout has no elements")
			}
			if l.FixedLen() != tc.offset {
				t.Fatalf("FixedLen = %d, want %d", l.FixedLen(), tc.offset)
			}
		})
	}
}

func TestDecodeProtectedQoSData(t *testing.T) {
	buf := header(0xc840, 0x002c)
	buf = append(buf, testBSSID...)
	buf = append(buf, testStation...)
	buf = append(buf, testBSSID...)
	buf = append(buf, 0x00, 0x20)                                     // frag_seq
	buf = append(buf, 0x00, 0x07)                                     // qos_ctrl
	buf = append(buf, 0x01, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00) // sec_param
	buf = append(buf, 0xde, 0xad)
	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Body.Kind != KindDataQoSSecured {
		t.Fatalf("kind = %s", f.Body.Kind)
	}
	if f.Duration != 0x2c {
		t.Fatalf("duration = %d", f.Duration)
	}
	if qos, _ := f.Body.Uint("qos_ctrl"); qos != 7 {
		t.Fatalf("qos_ctrl = %d", qos)
	}
	if f.Body.Elements != nil {
		t.Fatal("data frame has element sequence")
	}
	if !bytes.Equal(f.Body.Payload, []byte{0xde, 0xad}) {
		t.Fatalf("payload = % x", f.Body.Payload)
	}
	if !bytes.Equal(f.Bytes(), buf) {
		t.Fatalf("Bytes() = % x, want % x", f.Bytes(), buf)
	}
}

func TestDecodeControlFrames(t *testing.T) {
	rts := append(header(0xb400, 100), testStation...)
	rts = append(rts, testBSSID...)
	f, err := Decode(rts)
	if err != nil {
		t.Fatalf("Decode RTS: %v", err)
	}
	if f.Body.Kind != KindRTS {
		t.Fatalf("kind = %s", f.Body.Kind)
	}
	if src, _ := f.Body.MAC("src"); !bytes.Equal(src, testBSSID) {
		t.Fatalf("src = %v", src)
	}
	ack := append(header(0xd400, 0), testStation...)
	f, err = Decode(ack)
	if err != nil {
		t.Fatalf("Decode ACK: %v", err)
	}
	if f.Body.Kind != KindACK || len(f.Body.Payload) != 0 {
		t.Fatalf("ack = %+v", f.Body)
	}
}

func TestDecodeUnknownSubtype(t *testing.T) {
	tests := []struct {
		name string
		word FrameControl
	}{
		{name: "atim", word: 0x9000},
		{name: "protected beacon", word: 0x8040},
		{name: "ps-poll", word: 0xa400},
		{name: "reserved type", word: 0x0c00},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := append(header(tc.word, 0), 0x01, 0x02, 0x03)
			f, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if f.Recognized() || f.Body.Kind != KindUnknown {
				t.Fatalf("kind = %s, want Unknown", f.Body.Kind)
			}
			if !bytes.Equal(f.Body.Payload, []byte{0x01, 0x02, 0x03}) {
				t.Fatalf("payload = % x", f.Body.Payload)
			}
		})
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x80}, {0x80, 0x00, 0x00}} {
		if _, err := Decode(buf); !errors.Is(err, ErrTruncatedHeader) {
			t.Fatalf("Decode(% x) err = %v", buf, err)
		}
	}
	short := append(header(0x8000, 0), broadcast...)
	if _, err := Decode(short); !errors.Is(err, ErrTruncatedHeader) {
		t.Fatalf("short beacon err = %v", err)
	}
}

func TestDecodeTruncatedElements(t *testing.T) {
	buf := buildBeacon([]byte{0x00, 0x03, 0x41, 0x42, 0x43, 0x01, 0x08, 0x82})
	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("lenient Decode: %v", err)
	}
	items, err := f.Body.Elements.All()
	if !errors.Is(err, ErrTruncatedElement) {
		t.Fatalf("elements err = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("elements = %d, want 1", len(items))
	}
	strict := NewDecoder(nil, WithStrictElements())
	if _, err := strict.Decode(buf); !errors.Is(err, ErrTruncatedElement) {
		t.Fatalf("strict Decode err = %v", err)
	}
}

func TestDecodeCustomRegistry(t *testing.T) {
	reg := BuildRegistry(SubtypeTable{MgmtATIM: KindDisassoc}, nil, nil)
	dec := NewDecoder(reg)
	if dec.Registry() != reg {
		t.Fatal("decoder ignored registry")
	}
	buf := append(header(0x9000, 0), broadcast...)
	buf = append(buf, testBSSID...)
	buf = append(buf, testBSSID...)
	buf = append(buf, 0x00, 0x00, 0x00, 0x03)
	f, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if reason, _ := f.Body.Uint("reason"); f.Body.Kind != KindDisassoc || reason != 3 {
		t.Fatalf("kind=%s reason=%d", f.Body.Kind, reason)
	}
	if _, err := dec.Decode(buildBeacon(nil)); err != nil {
		t.Fatalf("Decode beacon: %v", err)
	}
}

func TestFrameBytesMirrorsInput(t *testing.T) {
	buf := buildBeacon([]byte{0x00, 0x00, 0x03, 0x01, 0x0b})
	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Bytes(), buf) {
		t.Fatalf("Bytes() = % x\nwant      % x", f.Bytes(), buf)
	}
}
