// Package config loads the dot11d daemon configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/dot11gate/internal/common"
)

const (
	DefaultPort    = 8080
	DefaultLang    = "en_US.UTF-8"
	defaultMaxSize = 25
	defaultMaxAge  = 7
	defaultBackups = 5
)

// RulePackRef names a rule pack file the daemon offers besides the built-in
// default.
type RulePackRef struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

type Config struct {
	Port           int              `yaml:"port"`
	StorageDir     string           `yaml:"storageDir"`
	Concurrency    int              `yaml:"concurrency"`
	StrictElements bool             `yaml:"strictElements"`
	Stations       string           `yaml:"stations"`
	RulePacks      []RulePackRef    `yaml:"rulePacks"`
	Lang           string           `yaml:"lang"`
	MaxUploadMB    int64            `yaml:"maxUploadMB"`
	SigningKey     string           `yaml:"signingKey"`
	Logs           common.LogConfig `yaml:"logs"`
}

// Load reads the YAML file at path. Unknown keys are rejected. Relative paths
// are resolved against the directory holding the file when they exist there.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 512
	}
	cfg.Stations = resolvePath(cfg.Stations)
	cfg.SigningKey = resolvePath(cfg.SigningKey)
	seen := make(map[string]struct{}, len(cfg.RulePacks))
	for i := range cfg.RulePacks {
		ref := &cfg.RulePacks[i]
		ref.ID = strings.TrimSpace(ref.ID)
		if ref.ID == "" {
			return cfg, errors.New("rule pack entry missing id")
		}
		if _, dup := seen[ref.ID]; dup {
			return cfg, fmt.Errorf("duplicate rule pack %s configured", ref.ID)
		}
		seen[ref.ID] = struct{}{}
		ref.Path = resolvePath(ref.Path)
		if ref.Path == "" {
			return cfg, fmt.Errorf("rule pack %s missing path", ref.ID)
		}
	}
	if cfg.Lang == "" {
		cfg.Lang = DefaultLang
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "dot11d.log"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = defaultMaxSize
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = defaultMaxAge
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = defaultBackups
	}
	return cfg, nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
