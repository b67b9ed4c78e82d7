package dot11

import (
	"sort"
	"sync"
)

// Management subtypes.
const (
	MgmtAssocReq    uint8 = 0
	MgmtAssocResp   uint8 = 1
	MgmtReassocReq  uint8 = 2
	MgmtReassocResp uint8 = 3
	MgmtProbeReq    uint8 = 4
	MgmtProbeResp   uint8 = 5
	MgmtBeacon      uint8 = 8
	MgmtATIM        uint8 = 9
	MgmtDisassoc    uint8 = 10
	MgmtAuth        uint8 = 11
	MgmtDeauth      uint8 = 12
)

// Control subtypes.
const (
	CtrlBlockAckReq uint8 = 8
	CtrlBlockAck    uint8 = 9
	CtrlPSPoll      uint8 = 10
	CtrlRTS         uint8 = 11
	CtrlCTS         uint8 = 12
	CtrlACK         uint8 = 13
	CtrlCFEnd       uint8 = 14
	CtrlCFEndAck    uint8 = 15
)

// Data subtypes.
const (
	DataNormal          uint8 = 0
	DataCFAck           uint8 = 1
	DataCFPoll          uint8 = 2
	DataCFAckPoll       uint8 = 3
	DataNull            uint8 = 4
	DataCFAckNoData     uint8 = 5
	DataCFPollNoData    uint8 = 6
	DataCFAckPollNoData uint8 = 7
	DataQoSData         uint8 = 8
	DataQoSCFAck        uint8 = 9
	DataQoSCFPoll       uint8 = 10
	DataQoSCFAckPoll    uint8 = 11
	DataQoSNull         uint8 = 12
	DataQoSCFPollEmpty  uint8 = 14
)

// DispatchKey uniquely identifies a (type, subtype, protected) triple.
type DispatchKey uint16

// ProtectedFactor is added to the key of frames with the protected bit set.
// It exceeds the largest unprotected key (64+15) so the ranges never overlap.
const ProtectedFactor DispatchKey = 128

// typeFactors are spaced 16 apart, one more than the largest subtype.
var typeFactors = [...]DispatchKey{TypeMgmt: 16, TypeCtrl: 32, TypeData: 64}

// KeyOf computes the dispatch key. Reserved frame types have no key.
func KeyOf(t FrameType, subtype uint8, protected bool) (DispatchKey, bool) {
	if int(t) >= len(typeFactors) {
		return 0, false
	}
	key := typeFactors[t] + DispatchKey(subtype&0x0f)
	if protected {
		key += ProtectedFactor
	}
	return key, true
}

// Split inverts KeyOf.
func (k DispatchKey) Split() (t FrameType, subtype uint8, protected bool) {
	if k >= ProtectedFactor {
		protected = true
		k -= ProtectedFactor
	}
	subtype = uint8(k % 16)
	switch k - DispatchKey(subtype) {
	case typeFactors[TypeMgmt]:
		t = TypeMgmt
	case typeFactors[TypeCtrl]:
		t = TypeCtrl
	case typeFactors[TypeData]:
		t = TypeData
	default:
		t = TypeReserved
	}
	return t, subtype, protected
}

// KeyOfControl computes the dispatch key for a frame control word.
func KeyOfControl(fc FrameControl) (DispatchKey, bool) {
	return KeyOf(fc.Type(), fc.Subtype(), fc.Protected())
}

// SubtypeTable maps the subtypes of one frame type to body kinds.
type SubtypeTable map[uint8]BodyKind

// DefaultTables returns fresh copies of the management, control and data
// subtype tables.
func DefaultTables() (mgmt, ctrl, data SubtypeTable) {
	mgmt = SubtypeTable{
		MgmtBeacon:      KindBeacon,
		MgmtAssocReq:    KindAssocReq,
		MgmtAssocResp:   KindAssocResp,
		MgmtDisassoc:    KindDisassoc,
		MgmtReassocReq:  KindReassocReq,
		MgmtReassocResp: KindAssocResp,
		MgmtAuth:        KindAuth,
		MgmtProbeReq:    KindProbeReq,
		MgmtProbeResp:   KindProbeResp,
		MgmtDeauth:      KindDeauth,
	}
	ctrl = SubtypeTable{
		CtrlRTS:         KindRTS,
		CtrlCTS:         KindCTS,
		CtrlACK:         KindACK,
		CtrlBlockAckReq: KindBlockAckReq,
		CtrlBlockAck:    KindBlockAck,
	}
	data = SubtypeTable{
		DataNormal:          KindData,
		DataCFAck:           KindData,
		DataCFPoll:          KindData,
		DataCFAckPoll:       KindData,
		DataNull:            KindData,
		DataCFAckNoData:     KindData,
		DataCFPollNoData:    KindData,
		DataCFAckPollNoData: KindData,
		DataQoSData:         KindDataQoS,
		DataQoSCFAck:        KindDataQoS,
		DataQoSCFPoll:       KindDataQoS,
		DataQoSCFAckPoll:    KindDataQoS,
		DataQoSNull:         KindDataQoS,
		DataQoSCFPollEmpty:  KindDataQoS,
	}
	return mgmt, ctrl, data
}

// Registry maps dispatch keys to body kinds. It is immutable once built and
// safe for concurrent use.
type Registry struct {
	entries map[DispatchKey]BodyKind
}

// BuildRegistry combines the three per-type tables into one registry. Data
// entries for plain and QoS data also get a protected twin pointing at the
// secured layouts; no other kind gets one.
func BuildRegistry(mgmt, ctrl, data SubtypeTable) *Registry {
	r := &Registry{entries: make(map[DispatchKey]BodyKind, len(mgmt)+len(ctrl)+2*len(data))}
	tables := [...]struct {
		typ   FrameType
		table SubtypeTable
	}{
		{TypeMgmt, mgmt},
		{TypeCtrl, ctrl},
		{TypeData, data},
	}
	for _, t := range tables {
		for subtype, kind := range t.table {
			if subtype > 0x0f {
				continue
			}
			key, _ := KeyOf(t.typ, subtype, false)
			r.entries[key] = kind
			if t.typ != TypeData {
				continue
			}
			switch kind {
			case KindData:
				r.entries[key+ProtectedFactor] = KindDataSecured
			case KindDataQoS:
				r.entries[key+ProtectedFactor] = KindDataQoSSecured
			}
		}
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return BuildRegistry(DefaultTables())
})

// DefaultRegistry returns the registry built from DefaultTables. It is built
// on first use and shared afterwards.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// LookupKey returns the kind registered for key.
func (r *Registry) LookupKey(key DispatchKey) (BodyKind, bool) {
	if r == nil {
		return KindUnknown, false
	}
	kind, ok := r.entries[key]
	return kind, ok
}

// Lookup resolves the body kind for a frame control word. A false result is
// the normal outcome for reserved or unmapped subtypes.
func (r *Registry) Lookup(fc FrameControl) (BodyKind, bool) {
	key, ok := KeyOfControl(fc)
	if !ok {
		return KindUnknown, false
	}
	return r.LookupKey(key)
}

// Len reports the number of registered keys.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Keys returns the registered keys in ascending order.
func (r *Registry) Keys() []DispatchKey {
	if r == nil {
		return nil
	}
	keys := make([]DispatchKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
