package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/autocrop/internal/awsboot"
	"github.com/fpang/autocrop/internal/config"
	"github.com/fpang/autocrop/internal/fetch"
	"github.com/fpang/autocrop/internal/logging"
	"github.com/fpang/autocrop/internal/metrics"
)

// CLI flags
var (
	configFlag  string
	envFileFlag string
	portFlag    int
	workersFlag int
	workDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "autocrop-web",
	Short: "HTTP service that trims white borders from images",
	Long: `AutoCrop Web serves an upload page and a JSON API that remove uniform white
borders from images. Uploaded batches are returned as a zip archive; URL
batches can also run as background jobs polled by automation tools.

Configuration is read from defaults, a .env file, an optional YAML file and
AUTOCROP_* environment variables, in that order. Flags override all of them.

Examples:
  autocrop-web
  autocrop-web --port 8080 --workers 4
  autocrop-web --config /etc/autocrop.yaml`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "YAML config file (default $AUTOCROP_CONFIG)")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "Environment file loaded before reading config")
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 3000, "Port to listen on")
	rootCmd.Flags().IntVarP(&workersFlag, "workers", "w", 1, "Images processed concurrently per batch")
	rootCmd.Flags().StringVar(&workDirFlag, "work-dir", "processed", "Directory for batch output and archives")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load(config.LoadOptions{DotEnv: envFileFlag, File: configFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create directory")
		}
	}

	ctx := context.Background()
	var d deps
	var objects fetch.ObjectReader
	if cfg.S3.Enabled() {
		bucket, err := awsboot.InitS3(ctx, awsboot.S3Options{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.PathStyle,
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Expiry:       cfg.S3.PresignExpiry,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3")
		}
		if cfg.S3.Sources {
			objects = bucket
		}
		if cfg.S3.Bucket != "" {
			d.publisher = bucket
		}
	}
	d.fetcher = fetch.New(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, objects)
	if cfg.Metrics.Enabled {
		d.metrics = metrics.NewEmitter(cfg.Metrics.Namespace, "autocrop-web", os.Stdout)
	}

	s, err := newServer(cfg, d)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build server")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("autocrop-web").
		Version(version).
		CommitHash(commitHash).
		Dir("upload", cfg.Server.UploadDir).
		Dir("work", cfg.Server.WorkDir).
		Storage("s3Bucket", cfg.S3.Bucket).
		Feature("s3Sources", cfg.S3.Sources).
		Feature("metrics", cfg.Metrics.Enabled).
		Feature("flushOnShutdown", cfg.Jobs.FlushOnShutdown).
		Config("addr", cfg.Addr()).
		Config("background", cfg.Crop.Background).
		Config("tolerance", strconv.Itoa(cfg.Crop.Tolerance)).
		Config("fallbackThreshold", strconv.Itoa(cfg.Crop.FallbackThreshold)).
		Config("workers", strconv.Itoa(cfg.Batch.Workers)).
		Config("compression", cfg.Batch.Compression).
		Config("jobTTL", cfg.Jobs.TTL.String()).
		InitDuration(time.Since(initStart)).
		Log()

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		s.shutdown(cfg.Jobs.FlushOnShutdown)
	}()

	log.Info().Str("addr", cfg.Addr()).Msg("Starting web server")
	fmt.Printf("\n  AutoCrop: http://localhost:%d\n\n", cfg.Server.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-done
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = portFlag
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = workersFlag
	}
	if flags.Changed("work-dir") {
		cfg.Server.WorkDir = workDirFlag
	}
}
