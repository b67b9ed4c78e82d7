package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const DefaultSnapLen = 65535

// Writer emits raw 802.11 frames as a pcap stream.
type Writer struct {
	w      *pcapgo.Writer
	closer io.Closer
	count  int
}

// NewWriter writes the pcap file header for link type IEEE802_11 to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(DefaultSnapLen, layers.LinkTypeIEEE802_11); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{w: pw}, nil
}

// Create truncates path and returns a writer for it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func (w *Writer) WriteFrame(ts time.Time, frame []byte) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("write frame %d: %w", w.count, err)
	}
	w.count++
	return nil
}

func (w *Writer) Count() int { return w.count }

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
