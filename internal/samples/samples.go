// Package samples builds deterministic 802.11 captures for tests, demos and
// the dot11ctl samples command.
package samples

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/dot11gate/internal/capture"
	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/dot11"
)

const (
	CleanFileName    = "clean.pcap"
	FaultyFileName   = "faulty.pcap"
	StationsFileName = "stations.yaml"

	SSID    = "dot11gate-lab"
	Channel = 6

	frameSpacing = 1024 * time.Microsecond
)

var (
	// BaseTime stamps the first frame of every sample capture.
	BaseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	APMAC      = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	StationMAC = net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0x01}
	Broadcast  = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

var basicRates = []byte{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24}

// frameBuilder appends fields after a frame header. The frame control word is
// written big-endian so its first byte carries subtype and type; every other
// multi-byte field goes out little-endian as transmitted.
type frameBuilder struct {
	buf bytes.Buffer
	seq uint16
}

func (b *frameBuilder) start(t dot11.FrameType, subtype uint8, flags ...dot11.ControlField) {
	b.buf.Reset()
	var fc dot11.FrameControl
	fc.SetType(t)
	fc.SetSubtype(subtype)
	for _, f := range flags {
		fc.Set(f, 1)
	}
	b.u16(uint16(fc))
	b.wire16(0x013a)
}

func (b *frameBuilder) u16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *frameBuilder) wire16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *frameBuilder) wire64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *frameBuilder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *frameBuilder) mac(addrs ...net.HardwareAddr) {
	for _, a := range addrs {
		b.buf.Write(a)
	}
}

// mgmtHeader writes dst, src, bssid and the next sequence number.
func (b *frameBuilder) mgmtHeader(dst, src, bssid net.HardwareAddr) {
	b.mac(dst, src, bssid)
	b.wire16(b.seq << 4)
	b.seq++
}

func (b *frameBuilder) element(id dot11.ElementID, payload []byte) {
	b.buf.WriteByte(byte(id))
	b.buf.WriteByte(byte(len(payload)))
	b.buf.Write(payload)
}

func (b *frameBuilder) raw(p []byte) {
	b.buf.Write(p)
}

func (b *frameBuilder) bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

func (b *frameBuilder) beacon(tsf uint64, extra func()) []byte {
	b.start(dot11.TypeMgmt, dot11.MgmtBeacon)
	b.mgmtHeader(Broadcast, APMAC, APMAC)
	b.wire64(tsf)
	b.wire16(100)
	b.wire16(0x0431)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.element(dot11.ElementRates, basicRates)
	b.element(dot11.ElementDS, []byte{Channel})
	if extra != nil {
		extra()
	}
	return b.bytes()
}

// BuildClean returns one association exchange, every frame well formed and
// recognized.
func BuildClean() [][]byte {
	var b frameBuilder
	var frames [][]byte

	frames = append(frames, b.beacon(0x1000, func() {
		b.element(dot11.ElementTIM, []byte{0x00, 0x01, 0x00, 0x00})
	}))

	b.start(dot11.TypeMgmt, dot11.MgmtProbeReq)
	b.mgmtHeader(Broadcast, StationMAC, Broadcast)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.element(dot11.ElementRates, basicRates)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeMgmt, dot11.MgmtProbeResp)
	b.mgmtHeader(StationMAC, APMAC, APMAC)
	b.wire64(0x1400)
	b.wire16(100)
	b.wire16(0x0431)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.element(dot11.ElementRates, basicRates)
	b.element(dot11.ElementDS, []byte{Channel})
	frames = append(frames, b.bytes())

	for seq, pair := range [][2]net.HardwareAddr{{APMAC, StationMAC}, {StationMAC, APMAC}} {
		b.start(dot11.TypeMgmt, dot11.MgmtAuth)
		b.mgmtHeader(pair[0], pair[1], APMAC)
		b.wire16(0)
		b.wire16(uint16(seq + 1))
		frames = append(frames, b.bytes())
	}

	b.start(dot11.TypeMgmt, dot11.MgmtAssocReq)
	b.mgmtHeader(APMAC, StationMAC, APMAC)
	b.wire16(0x0431)
	b.wire16(10)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.element(dot11.ElementRates, basicRates)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeMgmt, dot11.MgmtAssocResp)
	b.mgmtHeader(StationMAC, APMAC, APMAC)
	b.wire16(0x0431)
	b.wire16(0)
	b.wire16(0xc001)
	b.element(dot11.ElementRates, basicRates)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeCtrl, dot11.CtrlRTS)
	b.mac(APMAC, StationMAC)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeCtrl, dot11.CtrlCTS)
	b.mac(StationMAC)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeData, dot11.DataQoSData, dot11.FieldToDS)
	b.mgmtHeader(APMAC, StationMAC, Broadcast)
	b.wire16(0x0000)
	b.raw([]byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00, 0x08, 0x06})
	frames = append(frames, b.bytes())

	b.start(dot11.TypeCtrl, dot11.CtrlACK)
	b.mac(StationMAC)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeData, dot11.DataQoSData, dot11.FieldToDS, dot11.FieldProtected)
	b.mgmtHeader(APMAC, StationMAC, Broadcast)
	b.wire16(0x0000)
	b.u64(0x0100_0020_0000_0000)
	b.raw([]byte{0x5c, 0x13, 0xe7, 0x02, 0x9a, 0x44, 0x10, 0xfe})
	frames = append(frames, b.bytes())

	b.start(dot11.TypeCtrl, dot11.CtrlACK)
	b.mac(StationMAC)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeMgmt, dot11.MgmtDeauth)
	b.mgmtHeader(StationMAC, APMAC, APMAC)
	b.wire16(3)
	frames = append(frames, b.bytes())

	frames = append(frames, b.beacon(0x2000, nil))
	return frames
}

// Fault names one malformed frame appended by BuildFaulty, together with the
// rule id the default rule pack reports for it.
type Fault struct {
	Name   string
	RuleId string
}

// Faults lists the frames BuildFaulty appends, in order.
var Faults = []Fault{
	{Name: "header cut after 3 bytes", RuleId: "TRUNCATED_HEADER"},
	{Name: "beacon fixed fields cut", RuleId: "TRUNCATED_HEADER"},
	{Name: "beacon rates element overruns frame", RuleId: "TRUNCATED_ELEMENT"},
	{Name: "beacon with vendor element", RuleId: "UNRECOGNIZED_ELEMENT"},
	{Name: "beacon with empty DS element", RuleId: "SHORT_ELEMENT"},
	{Name: "action frame", RuleId: "UNRECOGNIZED_SUBTYPE"},
	{Name: "protected beacon", RuleId: "UNRECOGNIZED_SUBTYPE"},
}

// BuildFaulty returns BuildClean followed by one frame per entry of Faults.
func BuildFaulty() [][]byte {
	frames := BuildClean()
	var b frameBuilder
	b.seq = 100

	frames = append(frames, []byte{0x80, 0x00, 0x01})

	b.start(dot11.TypeMgmt, dot11.MgmtBeacon)
	b.mgmtHeader(Broadcast, APMAC, APMAC)
	b.wire64(0x3000)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeMgmt, dot11.MgmtBeacon)
	b.mgmtHeader(Broadcast, APMAC, APMAC)
	b.wire64(0x3400)
	b.wire16(100)
	b.wire16(0x0431)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.raw([]byte{byte(dot11.ElementRates), 0x08, 0x82, 0x84})
	frames = append(frames, b.bytes())

	frames = append(frames, b.beacon(0x3800, func() {
		b.element(221, []byte{0x00, 0x50, 0xf2, 0x02, 0x01, 0x01})
	}))

	b.start(dot11.TypeMgmt, dot11.MgmtBeacon)
	b.mgmtHeader(Broadcast, APMAC, APMAC)
	b.wire64(0x3c00)
	b.wire16(100)
	b.wire16(0x0431)
	b.element(dot11.ElementSSID, []byte(SSID))
	b.element(dot11.ElementDS, nil)
	frames = append(frames, b.bytes())

	b.start(dot11.TypeMgmt, 13)
	b.mgmtHeader(StationMAC, APMAC, APMAC)
	b.raw([]byte{0x03, 0x00, 0x01, 0x02})
	frames = append(frames, b.bytes())

	frames = append(frames, protect(b.beacon(0x4000, nil)))
	return frames
}

func protect(frame []byte) []byte {
	fc := dot11.FrameControl(binary.BigEndian.Uint16(frame))
	fc.SetProtected(true)
	binary.BigEndian.PutUint16(frame, uint16(fc))
	return frame
}

// EncodeCapture writes frames as a pcap with link type IEEE 802.11, spacing
// timestamps from BaseTime.
func EncodeCapture(frames [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	for i, f := range frames {
		if err := w.WriteFrame(BaseTime.Add(time.Duration(i)*frameSpacing), f); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// StationsFile names the sample access point, station and network.
func StationsFile() dict.File {
	return dict.File{
		Stations: []dict.FileStation{
			{MAC: APMAC.String(), Name: "lab-ap", Role: "ap"},
			{MAC: StationMAC.String(), Name: "lab-laptop", Role: "sta"},
		},
		Networks: []dict.FileNetwork{
			{SSID: SSID, Name: "Lab network", Owner: "dot11gate"},
		},
	}
}

// WriteFiles materializes the sample captures and station dictionary under
// dir. Files whose content is unchanged are left alone.
func WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	clean, err := EncodeCapture(BuildClean())
	if err != nil {
		return fmt.Errorf("clean capture: %w", err)
	}
	faulty, err := EncodeCapture(BuildFaulty())
	if err != nil {
		return fmt.Errorf("faulty capture: %w", err)
	}
	stations, err := yaml.Marshal(StationsFile())
	if err != nil {
		return fmt.Errorf("stations: %w", err)
	}
	for name, data := range map[string][]byte{
		CleanFileName:    clean,
		FaultyFileName:   faulty,
		StationsFileName: stations,
	} {
		if err := writeFileIfChanged(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
