package dot11

import "strings"

// FrameType is the 2-bit type sub-field of the frame control word.
type FrameType uint8

const (
	TypeMgmt     FrameType = 0
	TypeCtrl     FrameType = 1
	TypeData     FrameType = 2
	TypeReserved FrameType = 3
)

func (t FrameType) String() string {
	switch t {
	case TypeMgmt:
		return "mgmt"
	case TypeCtrl:
		return "ctrl"
	case TypeData:
		return "data"
	default:
		return "reserved"
	}
}

// ControlField names one sub-field of the frame control word.
type ControlField uint8

const (
	FieldVersion ControlField = iota
	FieldType
	FieldSubtype
	FieldToDS
	FieldFromDS
	FieldMoreFrag
	FieldRetry
	FieldPwrMgt
	FieldMoreData
	FieldProtected
	FieldOrder

	numControlFields
)

// The control word is read big-endian, so the on-air first byte
// (subtype/type/version) lands in the high byte and the flags in the low byte.
const (
	versionMask   uint16 = 0x0300
	typeMask      uint16 = 0x0c00
	subtypeMask   uint16 = 0xf000
	toDSMask      uint16 = 0x0001
	fromDSMask    uint16 = 0x0002
	moreFragMask  uint16 = 0x0004
	retryMask     uint16 = 0x0008
	pwrMgtMask    uint16 = 0x0010
	moreDataMask  uint16 = 0x0020
	protectedMask uint16 = 0x0040
	orderMask     uint16 = 0x0080
)

var controlFields = [numControlFields]struct {
	name  string
	mask  uint16
	shift uint
}{
	FieldVersion:   {"version", versionMask, 8},
	FieldType:      {"type", typeMask, 10},
	FieldSubtype:   {"subtype", subtypeMask, 12},
	FieldToDS:      {"to_ds", toDSMask, 0},
	FieldFromDS:    {"from_ds", fromDSMask, 1},
	FieldMoreFrag:  {"more_frag", moreFragMask, 2},
	FieldRetry:     {"retry", retryMask, 3},
	FieldPwrMgt:    {"pwr_mgt", pwrMgtMask, 4},
	FieldMoreData:  {"more_data", moreDataMask, 5},
	FieldProtected: {"protected", protectedMask, 6},
	FieldOrder:     {"order", orderMask, 7},
}

func (f ControlField) String() string {
	if f >= numControlFields {
		return "unknown"
	}
	return controlFields[f].name
}

// Mask returns the bits of the control word occupied by f.
func (f ControlField) Mask() uint16 {
	if f >= numControlFields {
		return 0
	}
	return controlFields[f].mask
}

// FrameControl is the 16-bit frame control word. Sub-fields are derived on
// access and never stored separately.
type FrameControl uint16

// Get extracts field f.
func (fc FrameControl) Get(f ControlField) uint8 {
	if f >= numControlFields {
		return 0
	}
	spec := controlFields[f]
	return uint8((uint16(fc) & spec.mask) >> spec.shift)
}

// Set replaces field f with v, leaving every other field untouched. Bits of v
// wider than the field are dropped.
func (fc *FrameControl) Set(f ControlField, v uint8) {
	if f >= numControlFields {
		return
	}
	spec := controlFields[f]
	*fc = FrameControl(((uint16(v) << spec.shift) & spec.mask) | (uint16(*fc) &^ spec.mask))
}

func (fc FrameControl) Version() uint8 { return fc.Get(FieldVersion) }
func (fc FrameControl) Type() FrameType { return FrameType(fc.Get(FieldType)) }
func (fc FrameControl) Subtype() uint8 { return fc.Get(FieldSubtype) }
func (fc FrameControl) ToDS() bool { return fc.Get(FieldToDS) == 1 }
func (fc FrameControl) FromDS() bool { return fc.Get(FieldFromDS) == 1 }
func (fc FrameControl) MoreFrag() bool { return fc.Get(FieldMoreFrag) == 1 }
func (fc FrameControl) Retry() bool { return fc.Get(FieldRetry) == 1 }
func (fc FrameControl) PwrMgt() bool { return fc.Get(FieldPwrMgt) == 1 }
func (fc FrameControl) MoreData() bool { return fc.Get(FieldMoreData) == 1 }
func (fc FrameControl) Protected() bool { return fc.Get(FieldProtected) == 1 }
func (fc FrameControl) Order() bool { return fc.Get(FieldOrder) == 1 }

func (fc *FrameControl) SetVersion(v uint8) { fc.Set(FieldVersion, v) }
func (fc *FrameControl) SetType(t FrameType) { fc.Set(FieldType, uint8(t)) }
func (fc *FrameControl) SetSubtype(v uint8) { fc.Set(FieldSubtype, v) }
func (fc *FrameControl) SetToDS(on bool) { fc.Set(FieldToDS, bit(on)) }
func (fc *FrameControl) SetFromDS(on bool) { fc.Set(FieldFromDS, bit(on)) }
func (fc *FrameControl) SetMoreFrag(on bool) { fc.Set(FieldMoreFrag, bit(on)) }
func (fc *FrameControl) SetRetry(on bool) { fc.Set(FieldRetry, bit(on)) }
func (fc *FrameControl) SetPwrMgt(on bool) { fc.Set(FieldPwrMgt, bit(on)) }
func (fc *FrameControl) SetMoreData(on bool) { fc.Set(FieldMoreData, bit(on)) }
func (fc *FrameControl) SetProtected(on bool) { fc.Set(FieldProtected, bit(on)) }
func (fc *FrameControl) SetOrder(on bool) { fc.Set(FieldOrder, bit(on)) }

func bit(on bool) uint8 {
	if on {
		return 1
	}
	return 0
}

// Flags renders the set single-bit flags as a comma separated list.
func (fc FrameControl) Flags() string {
	var out strings.Builder
	flags := []struct {
		on   bool
		name string
	}{
		{fc.ToDS(), "TO-DS"},
		{fc.FromDS(), "FROM-DS"},
		{fc.MoreFrag(), "MF"},
		{fc.Retry(), "Retry"},
		{fc.PwrMgt(), "PowerManagement"},
		{fc.MoreData(), "MD"},
		{fc.Protected(), "Protected"},
		{fc.Order(), "Order"},
	}
	for _, f := range flags {
		if !f.on {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte(',')
		}
		out.WriteString(f.name)
	}
	return out.String()
}
