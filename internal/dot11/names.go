package dot11

import "fmt"

var subtypeNames = [3][16]string{
	TypeMgmt: {
		MgmtAssocReq:    "association-request",
		MgmtAssocResp:   "association-response",
		MgmtReassocReq:  "reassociation-request",
		MgmtReassocResp: "reassociation-response",
		MgmtProbeReq:    "probe-request",
		MgmtProbeResp:   "probe-response",
		MgmtBeacon:      "beacon",
		MgmtATIM:        "atim",
		MgmtDisassoc:    "disassociation",
		MgmtAuth:        "authentication",
		MgmtDeauth:      "deauthentication",
		13:              "action",
		14:              "action-no-ack",
	},
	TypeCtrl: {
		CtrlBlockAckReq: "block-ack-request",
		CtrlBlockAck:    "block-ack",
		CtrlPSPoll:      "ps-poll",
		CtrlRTS:         "rts",
		CtrlCTS:         "cts",
		CtrlACK:         "ack",
		CtrlCFEnd:       "cf-end",
		CtrlCFEndAck:    "cf-end-ack",
	},
	TypeData: {
		DataNormal:          "data",
		DataCFAck:           "data-cf-ack",
		DataCFPoll:          "data-cf-poll",
		DataCFAckPoll:       "data-cf-ack-poll",
		DataNull:            "null",
		DataCFAckNoData:     "cf-ack",
		DataCFPollNoData:    "cf-poll",
		DataCFAckPollNoData: "cf-ack-poll",
		DataQoSData:         "qos-data",
		DataQoSCFAck:        "qos-data-cf-ack",
		DataQoSCFPoll:       "qos-data-cf-poll",
		DataQoSCFAckPoll:    "qos-data-cf-ack-poll",
		DataQoSNull:         "qos-null",
		DataQoSCFPollEmpty:  "qos-cf-poll",
	},
}

// SubtypeName returns a display name for a type/subtype pair.
func SubtypeName(t FrameType, subtype uint8) string {
	if int(t) < len(subtypeNames) && subtype < 16 {
		if name := subtypeNames[t][subtype]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("%s-reserved-%d", t, subtype)
}

// ReasonString names a disassociation or deauthentication reason code.
func ReasonString(code uint16) string {
	switch code {
	case 1:
		return "unspecified"
	case 2:
		return "previous authentication no longer valid"
	case 3:
		return "station leaving (deauth)"
	case 4:
		return "inactivity"
	case 5:
		return "ap unable to handle all stations"
	case 6:
		return "class 2 frame from non-authenticated station"
	case 7:
		return "class 3 frame from non-associated station"
	case 8:
		return "station leaving (disassoc)"
	case 9:
		return "station not authenticated"
	default:
		return fmt.Sprintf("reason %d", code)
	}
}

// StatusString names an association or authentication status code.
func StatusString(code uint16) string {
	switch code {
	case 0:
		return "success"
	case 1:
		return "failure"
	case 10:
		return "cannot support all capabilities"
	case 11:
		return "reassociation denied"
	case 12:
		return "association denied"
	case 13:
		return "algorithm unsupported"
	case 14:
		return "out of expected sequence"
	case 15:
		return "challenge failure"
	case 16:
		return "timeout"
	case 17:
		return "ap unable to handle"
	case 18:
		return "rate unsupported"
	default:
		return fmt.Sprintf("status %d", code)
	}
}
