package dot11

import "testing"

func fieldMax(f ControlField) uint8 {
	spec := controlFields[f]
	return uint8(spec.mask >> spec.shift)
}

func TestControlMasksDisjointAndExhaustive(t *testing.T) {
	var seen uint16
	for f := ControlField(0); f < numControlFields; f++ {
		m := f.Mask()
		if m == 0 {
			t.Fatalf("%s: empty mask", f)
		}
		if seen&m != 0 {
			t.Fatalf("%s: mask 0x%04X overlaps 0x%04X", f, m, seen)
		}
		seen |= m
	}
	if seen != 0xffff {
		t.Fatalf("masks cover 0x%04X, want 0xFFFF", seen)
	}
}

func TestControlRoundTripAllWords(t *testing.T) {
	for w := 0; w <= 0xffff; w++ {
		orig := FrameControl(w)
		for f := ControlField(0); f < numControlFields; f++ {
			fc := orig
			fc.Set(f, fc.Get(f))
			if fc != orig {
				t.Fatalf("word 0x%04X field %s: set(get) = 0x%04X", w, f, uint16(fc))
			}
		}
	}
}

func TestControlSetIsolation(t *testing.T) {
	words := []FrameControl{0x0000, 0xffff, 0x8000, 0xc840, 0x5a5a, 0xa5a5, 0x0841}
	for _, orig := range words {
		for f := ControlField(0); f < numControlFields; f++ {
			for v := 0; v <= int(fieldMax(f)); v++ {
				fc := orig
				fc.Set(f, uint8(v))
				if got := fc.Get(f); got != uint8(v) {
					t.Fatalf("word 0x%04X: %s = %d after set %d", uint16(orig), f, got, v)
				}
				for other := ControlField(0); other < numControlFields; other++ {
					if other == f {
						continue
					}
					if fc.Get(other) != orig.Get(other) {
						t.Fatalf("word 0x%04X: setting %s=%d changed %s", uint16(orig), f, v, other)
					}
				}
			}
		}
	}
}

func TestControlSetMasksWideValues(t *testing.T) {
	var fc FrameControl
	fc.Set(FieldType, 0xff)
	if fc.Type() != TypeReserved {
		t.Fatalf("type = %d, want 3", fc.Type())
	}
	if uint16(fc)&^typeMask != 0 {
		t.Fatalf("wide value leaked outside type bits: 0x%04X", uint16(fc))
	}
}

func TestControlNamedAccessors(t *testing.T) {
	tests := []struct {
		name      string
		word      FrameControl
		typ       FrameType
		subtype   uint8
		protected bool
		toDS      bool
		retry     bool
	}{
		{name: "beacon", word: 0x8000, typ: TypeMgmt, subtype: MgmtBeacon},
		{name: "protected qos null", word: 0xc840, typ: TypeData, subtype: DataQoSNull, protected: true},
		{name: "data to ds retry", word: 0x0809, typ: TypeData, subtype: DataNormal, toDS: true, retry: true},
		{name: "rts", word: 0xb400, typ: TypeCtrl, subtype: CtrlRTS},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := tc.word
			if fc.Type() != tc.typ {
				t.Fatalf("Type = %s, want %s", fc.Type(), tc.typ)
			}
			if fc.Subtype() != tc.subtype {
				t.Fatalf("Subtype = %d, want %d", fc.Subtype(), tc.subtype)
			}
			if fc.Protected() != tc.protected {
				t.Fatalf("Protected = %v, want %v", fc.Protected(), tc.protected)
			}
			if fc.ToDS() != tc.toDS {
				t.Fatalf("ToDS = %v, want %v", fc.ToDS(), tc.toDS)
			}
			if fc.Retry() != tc.retry {
				t.Fatalf("Retry = %v, want %v", fc.Retry(), tc.retry)
			}
			if fc.Version() != 0 {
				t.Fatalf("Version = %d, want 0", fc.Version())
			}
		})
	}
}

func TestControlBuildFromSetters(t *testing.T) {
	var fc FrameControl
	fc.SetType(TypeData)
	fc.SetSubtype(DataQoSNull)
	fc.SetProtected(true)
	if fc != 0xc840 {
		t.Fatalf("control = 0x%04X, want 0xC840", uint16(fc))
	}
	fc.SetProtected(false)
	fc.SetToDS(true)
	fc.SetFromDS(true)
	fc.SetOrder(true)
	if fc != 0xc883 {
		t.Fatalf("control = 0x%04X, want 0xC883", uint16(fc))
	}
	if got := fc.Flags(); got != "TO-DS,FROM-DS,Order" {
		t.Fatalf("Flags = %q", got)
	}
}
