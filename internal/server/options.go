package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/inspect"
	"example.com/dot11gate/internal/report"
)

// DefaultRulePackID names the built-in rule pack, always available.
const DefaultRulePackID = "default"

// RulePackFile binds an id to a rule pack file on disk.
type RulePackFile struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
}

// Options configures server creation.
type Options struct {
	StorageDir     string
	Concurrency    int
	StrictElements bool
	Stations       *dict.Store
	RulePacks      []RulePackFile
	Lang           report.Language
	MaxUploadBytes int64
	// SigningKeyPEM, when set, signs manifests built by /manifest.
	SigningKeyPEM []byte
}

// buildRulePackMap loads and validates every configured pack. The built-in
// pack is registered under DefaultRulePackID and cannot be replaced.
func buildRulePackMap(files []RulePackFile) (map[string]inspect.RulePack, []string, error) {
	packs := map[string]inspect.RulePack{DefaultRulePackID: inspect.DefaultRulePack()}
	for _, f := range files {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			return nil, nil, errors.New("rule pack missing id")
		}
		if _, exists := packs[id]; exists {
			return nil, nil, fmt.Errorf("duplicate rule pack %s configured", id)
		}
		if strings.TrimSpace(f.Path) == "" {
			return nil, nil, fmt.Errorf("rule pack %s missing path", id)
		}
		rp, err := inspect.LoadRulePack(f.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("rule pack %s: %w", id, err)
		}
		packs[id] = rp
	}
	ids := make([]string, 0, len(packs))
	for id := range packs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return packs, ids, nil
}
