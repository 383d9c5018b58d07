// Package config provides configuration loading and management for xquality.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Quality metric selection and trained resources
	Quality struct {
		// Algorithm selects the scoring metric: "gmlog" or "blocksvd"
		Algorithm string `yaml:"algorithm"`

		// ModelFile is the path to a trained regression model in YAML format
		ModelFile string `yaml:"modelFile"`

		// RangeFile is the path to the matching feature range table
		RangeFile string `yaml:"rangeFile"`
	} `yaml:"quality"`

	// BlockSVD parameters
	BlockSVD struct {
		// BlockWidth is the block width used to partition images
		BlockWidth int `yaml:"blockWidth"`

		// BlockHeight is the block height used to partition images
		BlockHeight int `yaml:"blockHeight"`
	} `yaml:"blocksvd"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many images to score concurrently in batch mode
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// QualityMapFile is the path for the quality map PNG, empty to skip
		QualityMapFile string `yaml:"qualityMapFile"`

		// FullResolutionMap upsamples the quality map to source resolution
		FullResolutionMap bool `yaml:"fullResolutionMap"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Quality.Algorithm = "gmlog"
	cfg.Quality.ModelFile = ""
	cfg.Quality.RangeFile = ""

	cfg.BlockSVD.BlockWidth = 8
	cfg.BlockSVD.BlockHeight = 8

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.QualityMapFile = ""
	cfg.Output.FullResolutionMap = false
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
