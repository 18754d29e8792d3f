package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/autocrop/internal/batch"
	"github.com/fpang/autocrop/internal/cli"
	"github.com/fpang/autocrop/internal/config"
	"github.com/fpang/autocrop/internal/cropper"
	"github.com/fpang/autocrop/internal/filehandler"
	"github.com/fpang/autocrop/internal/logging"
)

// CLI flags
var (
	directoryFlag   string
	outputFlag      string
	configFlag      string
	maxDepthFlag    int
	limitFlag       int
	workersFlag     int
	toleranceFlag   int
	backgroundFlag  string
	compressionFlag string
	pngFlag         bool
	noZipFlag       bool
)

// rootCmd is the main Cobra command for the autocrop CLI.
var rootCmd = &cobra.Command{
	Use:   "autocrop [paths...]",
	Short: "Trim uniform white borders from images",
	Long: `AutoCrop removes the white (or configured background colour) border around
images. Pass image files and directories as arguments; directories are
scanned recursively for supported images (jpg, png, gif, webp, bmp, tiff).

Cropped images are written to a new batch directory under the output
directory and bundled into a zip archive unless --no-zip is given.

Examples:
  autocrop ./scans
  autocrop -o ./out --workers 4 photo1.jpg photo2.png
  autocrop -d ./scans --max-depth 1 --png --no-zip
  autocrop  # Interactive mode - prompts for directory`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&directoryFlag, "directory", "d", "", "Directory containing images to crop")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "cropped", "Directory batch output is written under")
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "YAML config file (default $AUTOCROP_CONFIG)")
	rootCmd.Flags().IntVar(&maxDepthFlag, "max-depth", 0, "Maximum recursion depth (0 = unlimited)")
	rootCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum images to process (0 = unlimited)")
	rootCmd.Flags().IntVarP(&workersFlag, "workers", "w", 1, "Images processed concurrently")
	rootCmd.Flags().IntVar(&toleranceFlag, "tolerance", cropper.DefaultTolerance, "Per-channel distance from the background still treated as border")
	rootCmd.Flags().StringVar(&backgroundFlag, "background", "#ffffff", "Border colour as #rrggbb")
	rootCmd.Flags().StringVar(&compressionFlag, "compression", string(batch.CompressionDeflate), "Archive compression: deflate or zstd")
	rootCmd.Flags().BoolVar(&pngFlag, "png", false, "Write every output as PNG instead of keeping the source format")
	rootCmd.Flags().BoolVar(&noZipFlag, "no-zip", false, "Skip the zip archive")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := config.Load(config.LoadOptions{DotEnv: ".env", File: configFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	inputs := args
	if directoryFlag != "" {
		inputs = append(inputs, directoryFlag)
	}
	if len(inputs) == 0 {
		inputs = []string{cli.PromptForDirectory()}
	}

	sources, err := cli.ResolveInputs(inputs, filehandler.ScanOptions{MaxDepth: maxDepthFlag, Limit: limitFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve inputs")
	}
	if len(sources) == 0 {
		log.Fatal().Strs("inputs", inputs).Msg("No supported images found")
	}

	outDir, err := cli.ValidateOutputDirectory(cfg.Server.WorkDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output directory")
	}
	cfg.Server.WorkDir = outDir

	if code := runCrop(cfg, sources); code != 0 {
		os.Exit(code)
	}
}

// runCrop processes sources and prints the report. It returns the process
// exit code: 0 when at least one image succeeded, 1 otherwise.
func runCrop(cfg *config.Config, sources []batch.Source) int {
	cc, err := cfg.CropperConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid crop settings")
	}
	coord := batch.NewCoordinator(cropper.NewEngine(cc, nil), nil, cfg.BatchConfig())

	policy := cropper.PreserveFormat
	if pngFlag {
		policy = cropper.Lossless
	}

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("AutoCrop")
	fmt.Println("============================================")
	fmt.Printf("Images:    %d\n", len(sources))
	fmt.Printf("Output:    %s\n", cfg.Server.WorkDir)
	fmt.Printf("Workers:   %d\n", cfg.Batch.Workers)
	fmt.Printf("Border:    %s (tolerance %d)\n", cfg.Crop.Background, cfg.Crop.Tolerance)
	fmt.Println("--------------------------------------------")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := coord.Run(ctx, sources, batch.Options{
		Policy:    policy,
		NoArchive: noZipFlag,
		Progress: func(i int, stage batch.Stage) {
			if stage == batch.StageDone {
				log.Debug().Int("item", i+1).Int("total", len(sources)).Msg("Image done")
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}

	cli.PrintReport(os.Stdout, res, time.Since(start))
	if res.SuccessCount == 0 {
		return 1
	}
	return 0
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") || cfg.Server.WorkDir == config.Default().Server.WorkDir {
		cfg.Server.WorkDir = outputFlag
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = workersFlag
	}
	if flags.Changed("tolerance") {
		cfg.Crop.Tolerance = toleranceFlag
	}
	if flags.Changed("background") {
		cfg.Crop.Background = backgroundFlag
	}
	if flags.Changed("compression") {
		cfg.Batch.Compression = compressionFlag
	}
}
