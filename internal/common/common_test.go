package common

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.SetTotalBytes(100)
	m.AddPacket(40)
	m.AddPacket(10)
	m.AddPacket(0)
	m.IncMalformed()
	m.IncUnknown()
	m.IncUnknown()
	m.Stop()
	snap := m.Snapshot()
	if snap.Frames != 2 || snap.Bytes != 50 {
		t.Fatalf("frames=%d bytes=%d", snap.Frames, snap.Bytes)
	}
	if snap.Malformed != 1 || snap.Unknown != 2 {
		t.Fatalf("malformed=%d unknown=%d", snap.Malformed, snap.Unknown)
	}
	if got := snap.Completion(); got != 0.5 {
		t.Fatalf("Completion = %v, want 0.5", got)
	}
	if !strings.Contains(formatProgressLine(snap), "2 frames, 1 malformed") {
		t.Fatalf("progress line = %q", formatProgressLine(snap))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{3 * 1024 * 1024, "3.00 MiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressPrinterStops(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	m.Start()
	m.AddPacket(10)
	stop := StartProgressPrinter(&buf, m, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()
	if !strings.Contains(buf.String(), "Processed:") {
		t.Fatalf("progress output = %q", buf.String())
	}
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want || size != 3 {
		t.Fatalf("sum=%s size=%d", sum, size)
	}
	if Sha256Hex([]byte("abc")) != want {
		t.Fatal("Sha256Hex mismatch")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := WriteFileAtomic(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "{}" {
		t.Fatalf("read back %q, %v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
}

func TestSetupLoggingWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	prevOut, prevFlags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		SetLogOutput(os.Stderr)
	})
	closer, err := SetupLogging(LogConfig{Directory: dir, FileName: "test.log", MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("SetupLogging: %v", err)
	}
	Logf("decoded %d frames", 7)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[dot11gate] ") || !strings.Contains(string(data), "decoded 7 frames") {
		t.Fatalf("log file = %q", data)
	}
}
