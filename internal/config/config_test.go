package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
server:
  port: 8080
database:
  driver: mysql
  host: localhost
  port: 3306
  user: triage
  password: secret
  name: evidence
crawler:
  timeoutSeconds: 20
  keywords:
    - slot gacor
    - judi online
ingest:
  batchConcurrency: 4
  backoffMs: 100
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if got := cfg.MySQLDSN(); got != "triage:secret@tcp(localhost:3306)/evidence?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("MySQLDSN() = %s", got)
	}
	if len(cfg.Crawler.Keywords) != 2 {
		t.Errorf("keywords = %v", cfg.Crawler.Keywords)
	}
	if got := cfg.CrawlTimeout(); got != 20*time.Second {
		t.Errorf("CrawlTimeout() = %s", got)
	}
	if got := cfg.IngestBackoff(); got != 100*time.Millisecond {
		t.Errorf("IngestBackoff() = %s", got)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.CrawlTimeout(); got != 15*time.Second {
		t.Errorf("default CrawlTimeout() = %s", got)
	}
	if got := cfg.IngestBackoff(); got != 200*time.Millisecond {
		t.Errorf("default IngestBackoff() = %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
