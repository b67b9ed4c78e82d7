package dict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a station dictionary. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return FromFile(file)
}

func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty dictionary path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dictionary path %s is a directory", path)
	}
	return Load(path)
}

// ResolvePath interprets dictPath relative to the directory of the file that
// referenced it.
func ResolvePath(referrer, dictPath string) string {
	if dictPath == "" {
		return ""
	}
	if filepath.IsAbs(dictPath) {
		return dictPath
	}
	base := filepath.Dir(referrer)
	if base == "" {
		return dictPath
	}
	return filepath.Join(base, dictPath)
}
