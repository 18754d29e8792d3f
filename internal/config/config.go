// Package config loads service settings. Sources are applied in order, each
// overriding the last: built-in defaults, an optional .env file, an optional
// YAML file, then AUTOCROP_* environment variables. Command-line flags are
// applied on top by the binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/cropper"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Crop    CropConfig    `yaml:"crop"`
	Batch   BatchConfig   `yaml:"batch"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Fetch   FetchConfig   `yaml:"fetch"`
	S3      S3Config      `yaml:"s3"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	UploadDir       string        `yaml:"upload_dir"`
	WorkDir         string        `yaml:"work_dir"`
	MaxUploadFiles  int           `yaml:"max_upload_files"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CropConfig struct {
	Background        string `yaml:"background"`
	Tolerance         int    `yaml:"tolerance"`
	FallbackThreshold int    `yaml:"fallback_threshold"`
	MaxPixels         int64  `yaml:"max_pixels"`
}

type BatchConfig struct {
	Workers     int    `yaml:"workers"`
	Compression string `yaml:"compression"`
}

type JobsConfig struct {
	TTL                  time.Duration `yaml:"ttl"`
	DownloadCleanupDelay time.Duration `yaml:"download_cleanup_delay"`
	FlushOnShutdown      bool          `yaml:"flush_on_shutdown"`
}

type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

type S3Config struct {
	// Sources enables s3://bucket/key crop sources.
	Sources bool `yaml:"sources"`
	// Bucket, when set, receives async job archives.
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`
	PathStyle     bool          `yaml:"path_style"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// Enabled reports whether an S3 client is needed at all.
func (c S3Config) Enabled() bool {
	return c.Sources || c.Bucket != ""
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			UploadDir:       "uploads",
			WorkDir:         "processed",
			MaxUploadFiles:  50,
			MaxUploadBytes:  10 * 1024 * 1024,
			ReadTimeout:     2 * time.Minute,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Crop: CropConfig{
			Background:        "#ffffff",
			Tolerance:         cropper.DefaultTolerance,
			FallbackThreshold: 250,
			MaxPixels:         cropper.DefaultMaxPixels,
		},
		Batch: BatchConfig{
			Workers:     1,
			Compression: string(batch.CompressionDeflate),
		},
		Jobs: JobsConfig{
			TTL:                  time.Hour,
			DownloadCleanupDelay: 30 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:  60 * time.Second,
			MaxBytes: 10 * 1024 * 1024,
		},
		S3: S3Config{
			PresignExpiry: time.Hour,
		},
		Metrics: MetricsConfig{
			Namespace: "AutoCrop",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadOptions selects the optional files Load reads.
type LoadOptions struct {
	// DotEnv is a .env file to load into the environment. A missing file is
	// not an error.
	DotEnv string
	// File is a YAML config file. Empty falls back to $AUTOCROP_CONFIG.
	File string
}

// Load builds the configuration from defaults, files and environment.
func Load(opts LoadOptions) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", opts.DotEnv, err)
			}
			log.Debug().Str("path", opts.DotEnv).Msg("No .env file, using process environment")
		}
	}

	cfg := Default()

	file := opts.File
	if file == "" {
		file = os.Getenv("AUTOCROP_CONFIG")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks ranges and converts the crop settings once to surface
// errors at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.WorkDir == "" {
		errs = append(errs, errors.New("server.work_dir is required"))
	}
	if c.Server.MaxUploadFiles < 1 {
		errs = append(errs, errors.New("server.max_upload_files must be at least 1"))
	}
	if c.Server.MaxUploadBytes < 1 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, errors.New("batch.workers must be at least 1"))
	}
	if _, err := batch.ParseCompression(c.Batch.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Jobs.TTL <= 0 {
		errs = append(errs, errors.New("jobs.ttl must be positive"))
	}
	if c.Jobs.DownloadCleanupDelay < 0 {
		errs = append(errs, errors.New("jobs.download_cleanup_delay must not be negative"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if _, err := c.CropperConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CropperConfig converts the crop section for the engine.
func (c *Config) CropperConfig() (cropper.Config, error) {
	bg, err := cropper.ParseHexColor(c.Crop.Background)
	if err != nil {
		return cropper.Config{}, fmt.Errorf("crop.background: %w", err)
	}
	if c.Crop.FallbackThreshold < 0 || c.Crop.FallbackThreshold > 255 {
		return cropper.Config{}, fmt.Errorf("crop.fallback_threshold %d out of range 0-255", c.Crop.FallbackThreshold)
	}
	cc := cropper.Config{
		Background:        bg,
		Tolerance:         c.Crop.Tolerance,
		FallbackThreshold: uint8(c.Crop.FallbackThreshold),
		MaxPixels:         c.Crop.MaxPixels,
	}
	if err := cc.Validate(); err != nil {
		return cropper.Config{}, err
	}
	return cc, nil
}

// BatchConfig converts the batch section for the coordinator.
func (c *Config) BatchConfig() batch.Config {
	comp, _ := batch.ParseCompression(c.Batch.Compression)
	return batch.Config{
		WorkDir:     c.Server.WorkDir,
		Workers:     c.Batch.Workers,
		Compression: comp,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"AUTOCROP_HOST", stringVar(func(c *Config) *string { return &c.Server.Host })},
	{"AUTOCROP_PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"AUTOCROP_UPLOAD_DIR", stringVar(func(c *Config) *string { return &c.Server.UploadDir })},
	{"AUTOCROP_WORK_DIR", stringVar(func(c *Config) *string { return &c.Server.WorkDir })},
	{"AUTOCROP_MAX_UPLOAD_FILES", intVar(func(c *Config) *int { return &c.Server.MaxUploadFiles })},
	{"AUTOCROP_MAX_UPLOAD_BYTES", int64Var(func(c *Config) *int64 { return &c.Server.MaxUploadBytes })},
	{"AUTOCROP_SHUTDOWN_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"AUTOCROP_BACKGROUND", stringVar(func(c *Config) *string { return &c.Crop.Background })},
	{"AUTOCROP_TOLERANCE", intVar(func(c *Config) *int { return &c.Crop.Tolerance })},
	{"AUTOCROP_FALLBACK_THRESHOLD", intVar(func(c *Config) *int { return &c.Crop.FallbackThreshold })},
	{"AUTOCROP_MAX_PIXELS", int64Var(func(c *Config) *int64 { return &c.Crop.MaxPixels })},
	{"AUTOCROP_WORKERS", intVar(func(c *Config) *int { return &c.Batch.Workers })},
	{"AUTOCROP_ARCHIVE_COMPRESSION", stringVar(func(c *Config) *string { return &c.Batch.Compression })},
	{"AUTOCROP_JOB_TTL", durationVar(func(c *Config) *time.Duration { return &c.Jobs.TTL })},
	{"AUTOCROP_DOWNLOAD_CLEANUP_DELAY", durationVar(func(c *Config) *time.Duration { return &c.Jobs.DownloadCleanupDelay })},
	{"AUTOCROP_FLUSH_ON_SHUTDOWN", boolVar(func(c *Config) *bool { return &c.Jobs.FlushOnShutdown })},
	{"AUTOCROP_FETCH_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Fetch.Timeout })},
	{"AUTOCROP_FETCH_MAX_BYTES", int64Var(func(c *Config) *int64 { return &c.Fetch.MaxBytes })},
	{"AUTOCROP_S3_SOURCES", boolVar(func(c *Config) *bool { return &c.S3.Sources })},
	{"AUTOCROP_S3_BUCKET", stringVar(func(c *Config) *string { return &c.S3.Bucket })},
	{"AUTOCROP_S3_PREFIX", stringVar(func(c *Config) *string { return &c.S3.Prefix })},
	{"AUTOCROP_S3_REGION", stringVar(func(c *Config) *string { return &c.S3.Region })},
	{"AUTOCROP_S3_ENDPOINT", stringVar(func(c *Config) *string { return &c.S3.Endpoint })},
	{"AUTOCROP_S3_PATH_STYLE", boolVar(func(c *Config) *bool { return &c.S3.PathStyle })},
	{"AUTOCROP_S3_PRESIGN_EXPIRY", durationVar(func(c *Config) *time.Duration { return &c.S3.PresignExpiry })},
	{"AUTOCROP_METRICS", boolVar(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"AUTOCROP_METRICS_NAMESPACE", stringVar(func(c *Config) *string { return &c.Metrics.Namespace })},
	{"AUTOCROP_LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"AUTOCROP_LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Log.Format })},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func int64Var(field func(*Config) *int64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
