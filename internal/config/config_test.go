package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileYAMLOverlaysEnvDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	dir := t.TempDir()
	path := filepath.Join(dir, "alertcore.yaml")
	content := `
server:
  bind_addr: ":18080"
notice:
  language: en
  markdown_notice_ways: ["wxwork-bot"]
strategy:
  facet_workers: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.BindAddr != ":18080" {
		t.Fatalf("bind addr = %q", cfg.Server.BindAddr)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("env default lost: %q", cfg.Database.Host)
	}
	if cfg.Notice.Language != "en" || len(cfg.Notice.MarkdownNoticeWays) != 1 {
		t.Fatalf("notice not overlaid: %+v", cfg.Notice)
	}
	if cfg.Strategy.FacetWorkers != 4 {
		t.Fatalf("facet workers = %d", cfg.Strategy.FacetWorkers)
	}
	if cfg.Elasticsearch.BucketLimit != 10000 {
		t.Fatalf("bucket limit default = %d", cfg.Elasticsearch.BucketLimit)
	}
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alertcore.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"warn"},"kafka":{"enabled":true,"brokers":["k1:9092"]}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Logging.Level != "warn" || !cfg.Kafka.Enabled || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Fatalf("unexpected config: %+v %+v", cfg.Logging, cfg.Kafka)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateReportsTimeoutAboveMax(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg.Notice.ActionTimeout = "2m"
	cfg.Notice.MaxActionTimeout = "1m"
	diags := cfg.Validate()
	if len(diags) != 1 {
		t.Fatalf("diags = %v", diags)
	}

	cfg.Notice.ActionTimeout = "30s"
	if diags := cfg.Validate(); len(diags) != 0 {
		t.Fatalf("unexpected diags %v", diags)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"", time.Second, time.Second},
		{"5m", time.Second, 5 * time.Minute},
		{"bogus", time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, tt.def); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
