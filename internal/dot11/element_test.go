package dot11

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type elementView struct {
	ID      ElementID
	Length  uint8
	Payload []byte
}

func viewElements(items []Element) []elementView {
	out := make([]elementView, 0, len(items))
	for _, el := range items {
		out = append(out, elementView{ID: el.ID, Length: el.Length, Payload: el.Payload})
	}
	return out
}

func TestParseElementsSSIDAndRates(t *testing.T) {
	buf := []byte{0x00, 0x03, 0x41, 0x42, 0x43, 0x01, 0x02, 0x82, 0x84}
	items, err := ParseElements(buf)
	if err != nil {
		t.Fatalf("ParseElements: %v", err)
	}
	want := []elementView{
		{ID: ElementSSID, Length: 3, Payload: []byte("ABC")},
		{ID: ElementRates, Length: 2, Payload: []byte{0x82, 0x84}},
	}
	if diff := cmp.Diff(want, viewElements(items)); diff != "" {
		t.Fatalf("elements mismatch (-want +got):\n%s", diff)
	}
	ssid, ok := items[0].SSID()
	if !ok || ssid != "ABC" {
		t.Fatalf("SSID = %q, %v", ssid, ok)
	}
	rates, ok := items[1].Rates()
	if !ok {
		t.Fatal("Rates not ok")
	}
	wantRates := []Rate{{Units: 2, Basic: true}, {Units: 4, Basic: true}}
	if diff := cmp.Diff(wantRates, rates); diff != "" {
		t.Fatalf("rates mismatch (-want +got):\n%s", diff)
	}
	if rates[1].Mbps() != 2 {
		t.Fatalf("Mbps = %v, want 2", rates[1].Mbps())
	}
}

func TestParseElementsConsumesExactly(t *testing.T) {
	var buf []byte
	const n = 12
	for i := 0; i < n; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, i)
		buf = append(buf, byte(200+i), byte(len(payload)))
		buf = append(buf, payload...)
	}
	items, err := ParseElements(buf)
	if err != nil {
		t.Fatalf("ParseElements: %v", err)
	}
	if len(items) != n {
		t.Fatalf("got %d elements, want %d", len(items), n)
	}
	consumed := 0
	for _, el := range items {
		consumed += len(el.Bytes())
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d of %d bytes", consumed, len(buf))
	}
}

func TestParseElementsEmpty(t *testing.T) {
	items, err := ParseElements(nil)
	if err != nil || len(items) != 0 {
		t.Fatalf("ParseElements(nil) = %v, %v", items, err)
	}
}

func TestParseElementsTruncation(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		wantItems int
		declared  int
		offset    int
	}{
		{name: "payload overruns", buf: []byte{0x00, 0x01, 0x41, 0x01, 0x04, 0x82}, wantItems: 1, declared: 4, offset: 3},
		{name: "missing length byte", buf: []byte{0x00, 0x01, 0x41, 0x03}, wantItems: 1, declared: -1, offset: 3},
		{name: "first element overruns", buf: []byte{0x00, 0x20, 0x41}, wantItems: 0, declared: 0x20, offset: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items, err := ParseElements(tc.buf)
			if !errors.Is(err, ErrTruncatedElement) {
				t.Fatalf("err = %v, want ErrTruncatedElement", err)
			}
			var te *TruncatedElementError
			if !errors.As(err, &te) {
				t.Fatalf("err %T is not *TruncatedElementError", err)
			}
			if te.Declared != tc.declared || te.Offset != tc.offset {
				t.Fatalf("declared=%d offset=%d, want %d/%d", te.Declared, te.Offset, tc.declared, tc.offset)
			}
			if len(items) != tc.wantItems {
				t.Fatalf("got %d elements, want %d", len(items), tc.wantItems)
			}
			for _, el := range items {
				if int(el.Length) != len(el.Payload) {
					t.Fatalf("partial element returned: %+v", el)
				}
			}
		})
	}
}

func TestParseElementsTypedLayouts(t *testing.T) {
	buf := []byte{
		0x03, 0x01, 0x06, // DS channel 6
		0x05, 0x04, 0x00, 0x01, 0x00, 0x00, // TIM
		0x02, 0x05, 0x00, 0x64, 0x01, 0x02, 0x03, // FH
		0x04, 0x06, 0x01, 0x02, 0x00, 0x10, 0x00, 0x20, // CF
		0x06, 0x02, 0x00, 0x0a, // IBSS
		0xdd, 0x03, 0x00, 0x50, 0xf2, // vendor specific, generic
	}
	items, err := ParseElements(buf)
	if err != nil {
		t.Fatalf("ParseElements: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("got %d elements, want 6", len(items))
	}
	if ch, ok := items[0].Channel(); !ok || ch != 6 {
		t.Fatalf("Channel = %d, %v", ch, ok)
	}
	checks := []struct {
		idx   int
		field string
		want  uint64
	}{
		{1, "period", 1},
		{1, "ctrl", 0},
		{2, "tu", 100},
		{2, "hopindex", 3},
		{3, "max", 16},
		{3, "dur", 32},
		{4, "atim", 10},
	}
	for _, c := range checks {
		f, ok := items[c.idx].Field(c.field)
		if !ok {
			t.Fatalf("element %d: missing field %s", c.idx, c.field)
		}
		if f.Uint() != c.want {
			t.Fatalf("element %d %s = %d, want %d", c.idx, c.field, f.Uint(), c.want)
		}
	}
	vendor := items[5]
	if vendor.Known() || len(vendor.Fields) != 0 {
		t.Fatalf("vendor element decoded with layout: %+v", vendor)
	}
	if !bytes.Equal(vendor.Payload, []byte{0x00, 0x50, 0xf2}) {
		t.Fatalf("vendor payload = % x", vendor.Payload)
	}
	if vendor.Name() != "Element 221" {
		t.Fatalf("Name = %q", vendor.Name())
	}
}

func TestParseElementsShortLayout(t *testing.T) {
	items, err := ParseElements([]byte{0x04, 0x02, 0x01, 0x02})
	if err != nil {
		t.Fatalf("ParseElements: %v", err)
	}
	if !items[0].Short() || len(items[0].Fields) != 0 {
		t.Fatalf("short CF element decoded fields: %+v", items[0])
	}
	if len(items[0].Payload) != 2 {
		t.Fatalf("payload len = %d, want 2", len(items[0].Payload))
	}
}

func TestElementsLazy(t *testing.T) {
	buf := []byte{0x00, 0x03, 0x41, 0x42, 0x43, 0x01, 0x02, 0x82, 0x84}
	els := NewElements(buf)
	if els.Parsed() {
		t.Fatal("parsed before first access")
	}
	first, err := els.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if !els.Parsed() {
		t.Fatal("not parsed after All")
	}
	second, _ := els.All()
	if len(first) == 0 || &first[0] != &second[0] {
		t.Fatal("second access re-parsed instead of replaying the cache")
	}
	fresh, _ := NewElements(buf).All()
	if diff := cmp.Diff(viewElements(first), viewElements(fresh)); diff != "" {
		t.Fatalf("materialization not idempotent (-first +fresh):\n%s", diff)
	}
	if els.Len() != 2 {
		t.Fatalf("Len = %d", els.Len())
	}
	if el, ok := els.Find(ElementRates); !ok || el.Length != 2 {
		t.Fatalf("Find rates = %+v, %v", el, ok)
	}
	if _, ok := els.At(2); ok {
		t.Fatal("At(2) out of range returned ok")
	}
}

func TestElementsConcurrentMaterialize(t *testing.T) {
	buf := []byte{0x00, 0x03, 0x41, 0x42, 0x43, 0x01, 0x02, 0x82}
	els := NewElements(buf)
	var wg sync.WaitGroup
	results := make([][]Element, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = els.All()
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(viewElements(results[0]), viewElements(results[i]), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("goroutine %d saw different elements:\n%s", i, diff)
		}
	}
	if !errors.Is(els.Err(), ErrTruncatedElement) {
		t.Fatalf("Err = %v", els.Err())
	}
	if els.Len() != 1 {
		t.Fatalf("Len = %d, want 1", els.Len())
	}
}
