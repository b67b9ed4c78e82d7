package dot11

// BodyKind identifies the fixed layout used to decode a frame body.
type BodyKind uint8

const (
	KindUnknown BodyKind = iota
	KindBeacon
	KindProbeReq
	KindProbeResp
	KindAssocReq
	KindAssocResp
	KindReassocReq
	KindDisassoc
	KindAuth
	KindDeauth
	KindRTS
	KindCTS
	KindACK
	KindBlockAckReq
	KindBlockAck
	KindData
	KindDataQoS
	KindDataSecured
	KindDataQoSSecured

	numBodyKinds
)

var bodyKindNames = [numBodyKinds]string{
	KindUnknown:        "Unknown",
	KindBeacon:         "Beacon",
	KindProbeReq:       "ProbeReq",
	KindProbeResp:      "ProbeResp",
	KindAssocReq:       "AssocReq",
	KindAssocResp:      "AssocResp",
	KindReassocReq:     "ReassocReq",
	KindDisassoc:       "Disassoc",
	KindAuth:           "Auth",
	KindDeauth:         "Deauth",
	KindRTS:            "RTS",
	KindCTS:            "CTS",
	KindACK:            "ACK",
	KindBlockAckReq:    "BlockAckReq",
	KindBlockAck:       "BlockAck",
	KindData:           "Dataframe",
	KindDataQoS:        "DataframeQos",
	KindDataSecured:    "DataframeSecured",
	KindDataQoSSecured: "DataframeQosSecured",
}

func (k BodyKind) String() string {
	if k >= numBodyKinds {
		return bodyKindNames[KindUnknown]
	}
	return bodyKindNames[k]
}

// FieldFormat tells consumers how to render a fixed-width field.
type FieldFormat uint8

const (
	FormatUint FieldFormat = iota
	FormatMAC
)

// FieldSpec declares one fixed-width field of a layout.
type FieldSpec struct {
	Name   string
	Width  int
	Format FieldFormat
}

// Layout is the declarative shape of a frame body or information element.
type Layout struct {
	Kind     BodyKind
	Fields   []FieldSpec
	Elements bool
}

// FixedLen is the number of bytes consumed by the fixed fields.
func (l Layout) FixedLen() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Width
	}
	return n
}

func mac(name string) FieldSpec {
	return FieldSpec{Name: name, Width: 6, Format: FormatMAC}
}

func u8(name string) FieldSpec { return FieldSpec{Name: name, Width: 1} }
func u16(name string) FieldSpec { return FieldSpec{Name: name, Width: 2} }
func u64(name string) FieldSpec { return FieldSpec{Name: name, Width: 8} }

func fields(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var (
	mgmtHeader = []FieldSpec{mac("dst"), mac("src1"), mac("src2"), u16("frag_seq")}
	dataHeader = mgmtHeader
	beaconBody = fields(mgmtHeader, []FieldSpec{u64("ts"), u16("interval"), u16("capa")})
	dataQoS    = fields(dataHeader, []FieldSpec{u16("qos_ctrl")})
)

var layouts = [numBodyKinds]Layout{
	KindUnknown:     {Kind: KindUnknown},
	KindBeacon:      {Kind: KindBeacon, Fields: beaconBody, Elements: true},
	KindProbeResp:   {Kind: KindProbeResp, Fields: beaconBody, Elements: true},
	KindProbeReq:    {Kind: KindProbeReq, Fields: mgmtHeader, Elements: true},
	KindAssocReq:    {Kind: KindAssocReq, Fields: fields(mgmtHeader, []FieldSpec{u16("capa"), u16("interval")}), Elements: true},
	KindAssocResp:   {Kind: KindAssocResp, Fields: fields(mgmtHeader, []FieldSpec{u16("capa"), u16("status"), u16("aid")}), Elements: true},
	KindReassocReq:  {Kind: KindReassocReq, Fields: fields(mgmtHeader, []FieldSpec{u16("capa"), u16("interval"), mac("current_ap")})},
	KindDisassoc:    {Kind: KindDisassoc, Fields: fields(mgmtHeader, []FieldSpec{u16("reason")})},
	KindAuth:        {Kind: KindAuth, Fields: fields(mgmtHeader, []FieldSpec{u16("algo"), u16("auth_seq")})},
	KindDeauth:      {Kind: KindDeauth, Fields: fields(mgmtHeader, []FieldSpec{u16("reason")})},
	KindRTS:         {Kind: KindRTS, Fields: []FieldSpec{mac("dst"), mac("src")}},
	KindCTS:         {Kind: KindCTS, Fields: []FieldSpec{mac("dst")}},
	KindACK:         {Kind: KindACK, Fields: []FieldSpec{mac("dst")}},
	KindBlockAckReq: {Kind: KindBlockAckReq, Fields: []FieldSpec{mac("dst"), mac("src"), u16("reqctrl"), u16("seq")}},
	KindBlockAck:    {Kind: KindBlockAck, Fields: []FieldSpec{mac("dst"), mac("src"), u16("reqctrl"), u16("seq"), u64("bitmap")}},
	KindData:        {Kind: KindData, Fields: dataHeader},
	KindDataQoS:     {Kind: KindDataQoS, Fields: dataQoS},
	KindDataSecured: {Kind: KindDataSecured, Fields: fields(dataHeader, []FieldSpec{u64("sec_param")})},
	KindDataQoSSecured: {
		Kind:   KindDataQoSSecured,
		Fields: fields(dataQoS, []FieldSpec{u64("sec_param")}),
	},
}

// LayoutOf returns the body layout for kind. Unknown kinds have no fields.
func LayoutOf(kind BodyKind) Layout {
	if kind >= numBodyKinds {
		return layouts[KindUnknown]
	}
	return layouts[kind]
}
