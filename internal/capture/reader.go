// Package capture reads and writes 802.11 frame captures in pcap and pcapng
// format.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"example.com/dot11gate/internal/common"
)

var (
	ErrUnsupportedLinkType = errors.New("capture: unsupported link type")
	ErrRadiotap            = errors.New("capture: malformed radiotap header")
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Format names the container format of a capture file.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNG Format = "pcapng"
)

// Record is one captured frame with the link-layer framing removed.
type Record struct {
	Index     int
	Timestamp time.Time
	Length    int
	Data      []byte
	Radiotap  bool
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader yields 802.11 frames from a capture stream in file order.
type Reader struct {
	src     packetSource
	closer  io.Closer
	format  Format
	link    layers.LinkType
	next    int
	size    int64
	metrics *common.Metrics
}

// Open opens the capture at path. The container format is detected from the
// file magic.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	if st, err := f.Stat(); err == nil {
		r.size = st.Size()
	}
	return r, nil
}

// NewReader wraps an already opened capture stream.
func NewReader(rd io.Reader) (*Reader, error) {
	br := bufio.NewReader(rd)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture magic: %w", err)
	}
	r := &Reader{}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		r.src, r.format = ng, FormatPcapNG
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, err
		}
		r.src, r.format = pr, FormatPcap
	}
	r.link = r.src.LinkType()
	switch r.link {
	case layers.LinkTypeIEEE802_11, layers.LinkTypeIEEE80211Radio:
	default:
		return nil, fmt.Errorf("%w: %s (%d)", ErrUnsupportedLinkType, r.link, int(r.link))
	}
	return r, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// SetMetrics attaches a metrics collector. Each record read is counted.
func (r *Reader) SetMetrics(m *common.Metrics) {
	r.metrics = m
	if m != nil && r.size > 0 {
		m.SetTotalBytes(r.size)
	}
}

func (r *Reader) Format() Format { return r.format }

func (r *Reader) LinkType() layers.LinkType { return r.link }

// Next returns the next frame. It returns io.EOF after the last record.
func (r *Reader) Next() (Record, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Index:     r.next,
		Timestamp: ci.Timestamp,
		Length:    ci.Length,
		Data:      data,
	}
	r.next++
	if r.metrics != nil {
		r.metrics.AddPacket(int64(len(data)))
	}
	// Radiotap is only removed, along with a trailing FCS when flagged. PHY
	// fields are discarded and never reach the decoder.
	if r.link == layers.LinkTypeIEEE80211Radio {
		payload, err := stripRadiotap(data)
		if err != nil {
			return rec, fmt.Errorf("record %d: %w", rec.Index, err)
		}
		rec.Data = payload
		rec.Radiotap = true
	}
	return rec, nil
}

func stripRadiotap(data []byte) ([]byte, error) {
	var rt layers.RadioTap
	if err := rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRadiotap, err)
	}
	if int(rt.Length) > len(data) {
		return nil, fmt.Errorf("%w: length %d exceeds record (%d)", ErrRadiotap, rt.Length, len(data))
	}
	payload := data[rt.Length:]
	if rt.Flags.FCS() && len(payload) >= 4 {
		payload = payload[:len(payload)-4]
	}
	return payload, nil
}

// ReadAll drains the capture at path into memory.
func ReadAll(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
