package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xquality/internal/imageio"
	"xquality/pkg/config"
	"xquality/pkg/quality"
	"xquality/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "xquality.yaml", "Configuration file path")
	algorithm := flag.String("algorithm", "", "Quality metric: gmlog or blocksvd (default from config)")
	modelPath := flag.String("model", "", "Trained model YAML file")
	rangePath := flag.String("range", "", "Feature range YAML file")
	refPath := flag.String("ref", "", "Reference image for blocksvd comparison")
	blockSize := flag.String("block-size", "", "BlockSVD block size as WxH, e.g. 8x8")
	mapPath := flag.String("map", "", "Output PNG path for the quality map")
	fullResMap := flag.Bool("full-res-map", false, "Upsample the quality map to source resolution")
	workers := flag.Int("workers", 0, "Number of images to score concurrently (default from config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// Load configuration and apply flag overrides
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *algorithm != "" {
		cfg.Quality.Algorithm = *algorithm
	}
	if *modelPath != "" {
		cfg.Quality.ModelFile = *modelPath
	}
	if *rangePath != "" {
		cfg.Quality.RangeFile = *rangePath
	}
	if *blockSize != "" {
		var w, h int
		if _, err := fmt.Sscanf(*blockSize, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			fmt.Fprintf(os.Stderr, "Invalid block size %q, expected WxH\n", *blockSize)
			os.Exit(1)
		}
		cfg.BlockSVD.BlockWidth = w
		cfg.BlockSVD.BlockHeight = h
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *mapPath != "" {
		cfg.Output.QualityMapFile = *mapPath
	}
	if *fullResMap {
		cfg.Output.FullResolutionMap = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	// Configure logging
	level := zerolog.InfoLevel
	if cfg.Output.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "No input images given")
		flag.Usage()
		os.Exit(1)
	}

	start := time.Now()
	failed := run(cfg, *refPath, inputs)
	log.Info().
		Int("images", len(inputs)).
		Dur("elapsed", time.Since(start)).
		Msg("Scoring finished")

	if failed {
		os.Exit(1)
	}
}

// run dispatches to the selected metric and reports whether any input
// failed to score.
func run(cfg *config.Config, refPath string, inputs []string) bool {
	switch strings.ToLower(cfg.Quality.Algorithm) {
	case "gmlog":
		return runGMLOG(cfg, inputs)
	case "blocksvd":
		return runBlockSVD(cfg, refPath, inputs)
	default:
		log.Error().Str("algorithm", cfg.Quality.Algorithm).Msg("Unknown algorithm")
		return true
	}
}

func runGMLOG(cfg *config.Config, inputs []string) bool {
	if cfg.Quality.ModelFile == "" || cfg.Quality.RangeFile == "" {
		log.Error().Msg("gmlog requires -model and -range")
		return true
	}

	metric, err := quality.NewGMLOGFromFiles(cfg.Quality.ModelFile, cfg.Quality.RangeFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load gmlog model")
		return true
	}

	return scoreAll(cfg, inputs, func(path string) error {
		img, err := imageio.Load(path)
		if err != nil {
			return err
		}
		score, err := metric.Compute(img)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", path, metric.DefaultName(), score)
		return nil
	})
}

func runBlockSVD(cfg *config.Config, refPath string, inputs []string) bool {
	blockW := cfg.BlockSVD.BlockWidth
	blockH := cfg.BlockSVD.BlockHeight

	// Model-bound scoring works like gmlog: one score per input
	if cfg.Quality.ModelFile != "" && cfg.Quality.RangeFile != "" {
		metric, err := quality.NewBlockSVDFromFiles(cfg.Quality.ModelFile, cfg.Quality.RangeFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load blocksvd model")
			return true
		}
		if err := metric.SetBlockSize(blockW, blockH); err != nil {
			log.Error().Err(err).Msg("Invalid block size")
			return true
		}
		return scoreAll(cfg, inputs, func(path string) error {
			img, err := imageio.Load(path)
			if err != nil {
				return err
			}
			score, err := metric.Compute(img)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", path, metric.DefaultName(), score)
			return nil
		})
	}

	if refPath == "" {
		log.Error().Msg("blocksvd requires -ref, or -model and -range")
		return true
	}

	ref, err := imageio.Load(refPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load reference image")
		return true
	}

	metric := quality.NewBlockSVD()
	if err := metric.SetBlockSize(blockW, blockH); err != nil {
		log.Error().Err(err).Msg("Invalid block size")
		return true
	}

	return scoreAll(cfg, inputs, func(path string) error {
		img, err := imageio.Load(path)
		if err != nil {
			return err
		}
		score, qmap, err := metric.ComputeMap(ref, img)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", path, metric.DefaultName(), score)

		if cfg.Output.QualityMapFile != "" {
			out := mapOutputPath(cfg.Output.QualityMapFile, path, len(inputs) > 1)
			if err := visualization.SaveMapPNG(qmap, out, cfg.Output.FullResolutionMap); err != nil {
				return err
			}
			log.Info().Str("path", out).Msg("Saved quality map")
		}
		return nil
	})
}

// mapOutputPath keeps the configured map path for single inputs and
// derives per-input names in batch mode.
func mapOutputPath(base, input string, batch bool) string {
	if !batch {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return stem + "_" + name + ext
}

// scoreAll runs the scoring function over all inputs with a bounded
// worker pool and reports whether any input failed.
func scoreAll(cfg *config.Config, inputs []string, score func(path string) error) bool {
	numWorkers := cfg.Processing.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(inputs) {
		numWorkers = len(inputs)
	}

	jobs := make(chan string)
	errs := make(chan error, len(inputs))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if err := score(path); err != nil {
					log.Error().Err(err).Str("image", path).Msg("Scoring failed")
					errs <- err
				}
			}
		}()
	}

	for _, path := range inputs {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	close(errs)

	return len(errs) > 0
}
