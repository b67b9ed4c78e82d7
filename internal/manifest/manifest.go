// Package manifest records sha256 digests of captures and inspection
// artifacts so a result set can be checked and signed as a unit.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/dot11gate/internal/common"
)

// Item types assigned by Build.
const (
	TypeCapture     = "capture"
	TypeDiagnostics = "ndjson"
	TypeJSON        = "json"
	TypePDF         = "pdf"
	TypeYAML        = "yaml"
	TypeOther       = "other"
)

var ErrEmpty = errors.New("manifest: no inputs")

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	ShaAlgo   string     `json:"shaAlgo"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

// Signature describes the detached JWS stored next to the manifest.
type Signature struct {
	Type          string `json:"type"`
	Algorithm     string `json:"alg"`
	KeyID         string `json:"kid,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
}

// Mismatch is reported by Check for an item whose file changed or vanished.
type Mismatch struct {
	Path   string `json:"path"`
	Want   string `json:"want"`
	Got    string `json:"got,omitempty"`
	Reason string `json:"reason"`
}

// Build hashes every path. Paths are recorded as given.
func Build(paths []string) (Manifest, error) {
	return BuildAt(paths, time.Now().UTC())
}

func BuildAt(paths []string, now time.Time) (Manifest, error) {
	m := Manifest{CreatedAt: now.UTC(), ShaAlgo: "sha256"}
	if len(paths) == 0 {
		return m, ErrEmpty
	}
	for _, p := range paths {
		sum, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, fmt.Errorf("hash %s: %w", p, err)
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: sum, Type: Classify(p)})
	}
	return m, nil
}

// Classify maps a file name to an item type by extension.
func Classify(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		return TypeCapture
	case ".ndjson":
		return TypeDiagnostics
	case ".json":
		return TypeJSON
	case ".pdf":
		return TypePDF
	case ".yaml", ".yml":
		return TypeYAML
	}
	return TypeOther
}

func Marshal(m Manifest) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func Save(m Manifest, out string) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, b, 0o644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Check re-hashes every item and returns the ones that no longer match.
// Relative item paths are resolved against baseDir when it is not empty.
func Check(m Manifest, baseDir string) []Mismatch {
	var out []Mismatch
	for _, it := range m.Items {
		p := it.Path
		if baseDir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		sum, sz, err := common.Sha256OfFile(p)
		switch {
		case err != nil:
			out = append(out, Mismatch{Path: it.Path, Want: it.Sha256, Reason: "missing"})
		case sum != it.Sha256:
			out = append(out, Mismatch{Path: it.Path, Want: it.Sha256, Got: sum, Reason: "digest"})
		case sz != it.Size:
			out = append(out, Mismatch{Path: it.Path, Want: it.Sha256, Got: sum, Reason: "size"})
		}
	}
	return out
}
