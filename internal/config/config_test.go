package config

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/autocrop/internal/batch"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTOCROP_CONFIG", "")
	for _, b := range envBindings {
		t.Setenv(b.name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Server.MaxUploadFiles != 50 || cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Jobs.TTL != time.Hour || cfg.Jobs.DownloadCleanupDelay != 30*time.Second {
		t.Errorf("jobs = %+v", cfg.Jobs)
	}
	cc, err := cfg.CropperConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.Background != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) || cc.Tolerance != 20 || cc.FallbackThreshold != 250 {
		t.Errorf("crop = %+v", cc)
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled by default")
	}
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "autocrop.yaml")
	err := os.WriteFile(yamlPath, []byte(`
server:
  port: 8080
  work_dir: /srv/autocrop
crop:
  background: "#000000"
  tolerance: 5
batch:
  workers: 4
  compression: zstd
jobs:
  ttl: 2h
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("AUTOCROP_TOLERANCE=9\nAUTOCROP_S3_BUCKET=crops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTOCROP_PORT", "9090")

	// godotenv only fills unset variables, so drop the empty ones clearEnv made.
	os.Unsetenv("AUTOCROP_TOLERANCE")
	os.Unsetenv("AUTOCROP_S3_BUCKET")
	t.Cleanup(func() {
		os.Unsetenv("AUTOCROP_TOLERANCE")
		os.Unsetenv("AUTOCROP_S3_BUCKET")
	})

	cfg, err := Load(LoadOptions{DotEnv: envPath, File: yamlPath})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Server.WorkDir != "/srv/autocrop" {
		t.Errorf("work dir = %q, want YAML value", cfg.Server.WorkDir)
	}
	if cfg.Crop.Tolerance != 9 {
		t.Errorf("tolerance = %d, want .env value 9", cfg.Crop.Tolerance)
	}
	if cfg.Crop.Background != "#000000" || cfg.Jobs.TTL != 2*time.Hour {
		t.Errorf("crop = %+v jobs = %+v", cfg.Crop, cfg.Jobs)
	}
	if cfg.Server.MaxUploadFiles != 50 {
		t.Errorf("max upload files = %d, want default", cfg.Server.MaxUploadFiles)
	}
	if !cfg.S3.Enabled() || cfg.S3.Bucket != "crops" {
		t.Errorf("s3 = %+v", cfg.S3)
	}

	bc := cfg.BatchConfig()
	if bc.Workers != 4 || bc.Compression != batch.CompressionZstd || bc.WorkDir != "/srv/autocrop" {
		t.Errorf("batch config = %+v", bc)
	}
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	clearEnv(t)
	if _, err := Load(LoadOptions{DotEnv: filepath.Join(t.TempDir(), ".env")}); err != nil {
		t.Errorf("Load() with missing .env error = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "unknown yaml field", yaml: "server:\n  prot: 1\n", want: "prot"},
		{name: "bad env int", env: map[string]string{"AUTOCROP_WORKERS": "many"}, want: "AUTOCROP_WORKERS"},
		{name: "bad duration", env: map[string]string{"AUTOCROP_JOB_TTL": "forever"}, want: "AUTOCROP_JOB_TTL"},
		{name: "bad color", env: map[string]string{"AUTOCROP_BACKGROUND": "#12"}, want: "crop.background"},
		{name: "bad compression", env: map[string]string{"AUTOCROP_ARCHIVE_COMPRESSION": "rar"}, want: "rar"},
		{name: "zero workers", env: map[string]string{"AUTOCROP_WORKERS": "0"}, want: "batch.workers"},
		{name: "threshold range", env: map[string]string{"AUTOCROP_FALLBACK_THRESHOLD": "300"}, want: "fallback_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			opts := LoadOptions{}
			if tt.yaml != "" {
				p := filepath.Join(t.TempDir(), "c.yaml")
				if err := os.WriteFile(p, []byte(tt.yaml), 0o644); err != nil {
					t.Fatal(err)
				}
				opts.File = p
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 3001
	if got := cfg.Addr(); got != "127.0.0.1:3001" {
		t.Errorf("Addr() = %q", got)
	}
}
