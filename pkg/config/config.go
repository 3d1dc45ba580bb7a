// Package config provides configuration loading and management for
// multiatlas3d. It handles loading configuration from YAML files, provides
// default values and maps the file schema onto dataset options.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"multiatlas3d/pkg/dataset"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Data locates the volume files and controls pairing.
	Data struct {
		TargetPattern string `yaml:"targetPattern"`
		AtlasPattern  string `yaml:"atlasPattern"`
		ImageSuffix   string `yaml:"imageSuffix"`
		LabelSuffix   string `yaml:"labelSuffix"`
		WeightSuffix  string `yaml:"weightSuffix"`
		Format        string `yaml:"format"`
		NAtlas        int    `yaml:"nAtlas"`
		Stage         string `yaml:"stage"`
		Train         bool   `yaml:"train"`

		// NameIndexBegin/End slice the target basename for multi-stage
		// atlas correlation.
		NameIndexBegin int `yaml:"nameIndexBegin"`
		NameIndexEnd   int `yaml:"nameIndexEnd"`
	} `yaml:"data"`

	// Crop selects and parameterizes the crop mode.
	Crop struct {
		Patch       bool  `yaml:"patch"`
		Random      bool  `yaml:"random"`
		ROI         bool  `yaml:"roi"`
		PatchSize   []int `yaml:"patchSize"`
		PatchCenter []int `yaml:"patchCenter"`

		// MarginRate expands the ROI bounding box.
		MarginRate float64 `yaml:"marginRate"`

		// NumBlocks is the block grid, one int or three.
		NumBlocks []int `yaml:"numBlocks"`
	} `yaml:"crop"`

	// Image controls intensity processing.
	Image struct {
		Channels            int      `yaml:"channels"`
		TargetModality      string   `yaml:"targetModality"`
		AtlasModality       string   `yaml:"atlasModality"`
		Normalization       bool     `yaml:"normalization"`
		NormalizationMethod string   `yaml:"normalizationMethod"`
		Augmentation        bool     `yaml:"augmentation"`
		AMin                *float64 `yaml:"aMin"`
		AMax                *float64 `yaml:"aMax"`
		Scale               int      `yaml:"scale"`
	} `yaml:"image"`

	// Label defines the one-hot encoding and subtype counts.
	Label struct {
		NClass    int       `yaml:"nClass"`
		Intensity []float64 `yaml:"intensity"`
		NSubtypes []int     `yaml:"nSubtypes"`
	} `yaml:"label"`

	// Output controls logging and slice dumps.
	Output struct {
		Verbose bool   `yaml:"verbose"`
		DumpDir string `yaml:"dumpDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	opts := dataset.DefaultOptions()

	cfg.Data.ImageSuffix = opts.ImageSuffix
	cfg.Data.LabelSuffix = opts.LabelSuffix
	cfg.Data.Format = opts.Format
	cfg.Data.NAtlas = opts.NAtlas
	cfg.Data.Stage = opts.Stage
	cfg.Data.Train = opts.Train
	cfg.Data.NameIndexBegin = opts.NameIndexBegin
	cfg.Data.NameIndexEnd = opts.NameIndexEnd

	cfg.Crop.PatchSize = []int{opts.PatchSize[0], opts.PatchSize[1], opts.PatchSize[2]}
	cfg.Crop.MarginRate = opts.ROIMarginRate
	cfg.Crop.NumBlocks = []int{1}

	cfg.Image.Channels = opts.Channels
	cfg.Image.TargetModality = opts.TargetModality
	cfg.Image.AtlasModality = opts.AtlasModality
	cfg.Image.Normalization = opts.ImageNormalization
	cfg.Image.NormalizationMethod = opts.NormalizationMethod

	cfg.Label.NClass = opts.NClass
	cfg.Label.Intensity = append([]float64(nil), opts.LabelIntensity...)
	cfg.Label.NSubtypes = append([]int(nil), opts.NSubtypes...)

	cfg.Output.Verbose = true
	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Options maps the file schema onto an immutable dataset.Options value.
// Validation of enums and counts happens in dataset.New.
func (cfg *Config) Options() (dataset.Options, error) {
	opts := dataset.DefaultOptions()

	opts.TargetPattern = cfg.Data.TargetPattern
	opts.AtlasPattern = cfg.Data.AtlasPattern
	opts.ImageSuffix = cfg.Data.ImageSuffix
	opts.LabelSuffix = cfg.Data.LabelSuffix
	opts.WeightSuffix = cfg.Data.WeightSuffix
	opts.Format = cfg.Data.Format
	opts.NAtlas = cfg.Data.NAtlas
	opts.Stage = cfg.Data.Stage
	opts.Train = cfg.Data.Train
	opts.NameIndexBegin = cfg.Data.NameIndexBegin
	opts.NameIndexEnd = cfg.Data.NameIndexEnd

	opts.CropPatch = cfg.Crop.Patch
	opts.RandomCrop = cfg.Crop.Random
	opts.CropROI = cfg.Crop.ROI
	opts.ROIMarginRate = cfg.Crop.MarginRate

	size, err := triple(cfg.Crop.PatchSize, "crop.patchSize")
	if err != nil {
		return opts, err
	}
	opts.PatchSize = size

	if len(cfg.Crop.PatchCenter) > 0 {
		center, err := triple(cfg.Crop.PatchCenter, "crop.patchCenter")
		if err != nil {
			return opts, err
		}
		opts.PatchCenter = &center
	}

	blocks, err := triple(cfg.Crop.NumBlocks, "crop.numBlocks")
	if err != nil {
		return opts, err
	}
	opts.NumBlocks = blocks

	opts.Channels = cfg.Image.Channels
	opts.TargetModality = cfg.Image.TargetModality
	opts.AtlasModality = cfg.Image.AtlasModality
	opts.ImageNormalization = cfg.Image.Normalization
	opts.NormalizationMethod = cfg.Image.NormalizationMethod
	opts.ImageAugmentation = cfg.Image.Augmentation
	opts.Scale = cfg.Image.Scale

	opts.AMin = math.Inf(-1)
	opts.AMax = math.Inf(1)
	if cfg.Image.AMin != nil {
		opts.AMin = *cfg.Image.AMin
	}
	if cfg.Image.AMax != nil {
		opts.AMax = *cfg.Image.AMax
	}

	opts.NClass = cfg.Label.NClass
	opts.LabelIntensity = append([]float64(nil), cfg.Label.Intensity...)
	opts.NSubtypes = append([]int(nil), cfg.Label.NSubtypes...)

	return opts, nil
}

// triple accepts a single value (broadcast to all axes) or exactly three.
func triple(values []int, field string) ([3]int, error) {
	switch len(values) {
	case 1:
		return [3]int{values[0], values[0], values[0]}, nil
	case 3:
		return [3]int{values[0], values[1], values[2]}, nil
	default:
		return [3]int{}, fmt.Errorf("%s needs 1 or 3 values, got %d", field, len(values))
	}
}
