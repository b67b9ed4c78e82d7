package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.ListenAddr() != ":8080" {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Concurrency != runtime.NumCPU() {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Lang != DefaultLang || cfg.MaxUploadMB != 512 {
		t.Fatalf("lang=%q maxUpload=%d", cfg.Lang, cfg.MaxUploadMB)
	}
	if cfg.Logs.Directory != filepath.Join("data", "logs") || cfg.Logs.FileName != "dot11d.log" {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
	if cfg.Logs.MaxSizeMB != 25 || cfg.Logs.MaxAgeDays != 7 || cfg.Logs.MaxBackups != 5 {
		t.Fatalf("log rotation = %+v", cfg.Logs)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stations.yaml"), []byte("stations: []\n"), 0o644); err != nil {
		t.Fatalf("write stations: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "strict.yaml"), []byte("rules: []\n"), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	path := writeConfig(t, dir, strings.Join([]string{
		"port: 9090",
		"storageDir: /var/lib/dot11d",
		"concurrency: 3",
		"strictElements: true",
		"stations: stations.yaml",
		"rulePacks:",
		"  - id: strict",
		"    path: strict.yaml",
		"lang: tr_TR.UTF-8",
		"signingKey: keys/none.pem",
		"logs:",
		"  compress: true",
		"",
	}, "\n"))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Concurrency != 3 || !cfg.StrictElements {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Stations != filepath.Join(dir, "stations.yaml") {
		t.Fatalf("stations = %q", cfg.Stations)
	}
	if cfg.SigningKey != filepath.Join("keys", "none.pem") {
		t.Fatalf("signing key = %q", cfg.SigningKey)
	}
	if len(cfg.RulePacks) != 1 || cfg.RulePacks[0].Path != filepath.Join(dir, "strict.yaml") {
		t.Fatalf("rule packs = %+v", cfg.RulePacks)
	}
	if cfg.Logs.Directory != filepath.Join("/var/lib/dot11d", "logs") || !cfg.Logs.Compress {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown key", body: "prot: 80\n", want: "field prot not found"},
		{name: "port range", body: "port: 70000\n", want: "out of range"},
		{name: "pack without id", body: "rulePacks:\n  - path: a.yaml\n", want: "missing id"},
		{name: "pack without path", body: "rulePacks:\n  - id: a\n", want: "missing path"},
		{name: "duplicate pack", body: "rulePacks:\n  - {id: a, path: a.yaml}\n  - {id: a, path: b.yaml}\n", want: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load err = %v, want %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file err = %v", err)
	}
}
