package dot11

import (
	"sync"
	"testing"
)

func TestKeyOfUnique(t *testing.T) {
	seen := make(map[DispatchKey]string)
	for typ := TypeMgmt; typ <= TypeData; typ++ {
		for sub := uint8(0); sub < 16; sub++ {
			for _, prot := range []bool{false, true} {
				key, ok := KeyOf(typ, sub, prot)
				if !ok {
					t.Fatalf("KeyOf(%s, %d, %v) not ok", typ, sub, prot)
				}
				id := SubtypeName(typ, sub)
				if prev, dup := seen[key]; dup {
					t.Fatalf("key %d collides: %s and %s", key, prev, id)
				}
				seen[key] = id
				gt, gs, gp := key.Split()
				if gt != typ || gs != sub || gp != prot {
					t.Fatalf("Split(%d) = %s %d %v", key, gt, gs, gp)
				}
			}
		}
	}
	if len(seen) != 96 {
		t.Fatalf("got %d keys, want 96", len(seen))
	}
}

func TestKeyOfReservedType(t *testing.T) {
	if _, ok := KeyOf(TypeReserved, 0, false); ok {
		t.Fatal("reserved type produced a key")
	}
	var fc FrameControl
	fc.SetType(TypeReserved)
	if kind, ok := DefaultRegistry().Lookup(fc); ok || kind != KindUnknown {
		t.Fatalf("Lookup reserved = %s, %v", kind, ok)
	}
}

func TestRegistryMatchesSourceTables(t *testing.T) {
	mgmt, ctrl, data := DefaultTables()
	reg := BuildRegistry(mgmt, ctrl, data)
	tables := map[FrameType]SubtypeTable{TypeMgmt: mgmt, TypeCtrl: ctrl, TypeData: data}
	for typ, table := range tables {
		for sub := uint8(0); sub < 16; sub++ {
			var fc FrameControl
			fc.SetType(typ)
			fc.SetSubtype(sub)
			want, inTable := table[sub]
			got, ok := reg.Lookup(fc)
			if ok != inTable {
				t.Fatalf("%s/%d: found=%v, in table=%v", typ, sub, ok, inTable)
			}
			if ok && got != want {
				t.Fatalf("%s/%d: kind %s, want %s", typ, sub, got, want)
			}
		}
	}
	if want := len(mgmt) + len(ctrl) + 2*len(data); reg.Len() != want {
		t.Fatalf("Len = %d, want %d", reg.Len(), want)
	}
}

func TestRegistryProtectedVariants(t *testing.T) {
	reg := DefaultRegistry()
	for sub := uint8(0); sub < 16; sub++ {
		var fc FrameControl
		fc.SetType(TypeData)
		fc.SetSubtype(sub)
		base, ok := reg.Lookup(fc)
		fc.SetProtected(true)
		secured, securedOK := reg.Lookup(fc)
		if !ok {
			if securedOK {
				t.Fatalf("data/%d: protected variant without base entry", sub)
			}
			continue
		}
		switch base {
		case KindData:
			if secured != KindDataSecured {
				t.Fatalf("data/%d protected = %s, want DataframeSecured", sub, secured)
			}
		case KindDataQoS:
			if secured != KindDataQoSSecured {
				t.Fatalf("data/%d protected = %s, want DataframeQosSecured", sub, secured)
			}
		}
		if secured == base {
			t.Fatalf("data/%d protected resolved to base kind %s", sub, base)
		}
	}
	for _, typ := range []FrameType{TypeMgmt, TypeCtrl} {
		for sub := uint8(0); sub < 16; sub++ {
			var fc FrameControl
			fc.SetType(typ)
			fc.SetSubtype(sub)
			fc.SetProtected(true)
			if kind, ok := reg.Lookup(fc); ok {
				t.Fatalf("%s/%d protected unexpectedly resolved to %s", typ, sub, kind)
			}
		}
	}
}

func TestRegistryScenarios(t *testing.T) {
	tests := []struct {
		name string
		word FrameControl
		key  DispatchKey
		kind BodyKind
	}{
		{name: "beacon", word: 0x8000, key: 24, kind: KindBeacon},
		{name: "protected qos null", word: 0xc840, key: 204, kind: KindDataQoSSecured},
		{name: "rts", word: 0xb400, key: 43, kind: KindRTS},
		{name: "protected data", word: 0x0840, key: 192, kind: KindDataSecured},
	}
	reg := DefaultRegistry()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := KeyOfControl(tc.word)
			if !ok || key != tc.key {
				t.Fatalf("key = %d (%v), want %d", key, ok, tc.key)
			}
			kind, ok := reg.Lookup(tc.word)
			if !ok || kind != tc.kind {
				t.Fatalf("kind = %s (%v), want %s", kind, ok, tc.kind)
			}
		})
	}
}

func TestRegistryIgnoresOutOfRangeSubtypes(t *testing.T) {
	reg := BuildRegistry(SubtypeTable{0x1f: KindBeacon}, nil, nil)
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}
}

func TestRegistryKeysSorted(t *testing.T) {
	keys := DefaultRegistry().Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not ascending at %d: %v", i, keys)
		}
	}
}

func TestDefaultRegistryConcurrentLookup(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := 0; w <= 0xffff; w += 0x40 {
				DefaultRegistry().Lookup(FrameControl(w))
			}
		}()
	}
	wg.Wait()
}
