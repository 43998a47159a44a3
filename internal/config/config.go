package config

import (
	"fmt"
	"os"
	"strings"

	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/processing/filters"

	"gopkg.in/yaml.v3"
)

var supportedFormats = map[string]bool{"png": true, "jpeg": true, "tiff": true, "bmp": true}

type Output struct {
	Dir     string
	Format  string
	Montage bool
}

type Config struct {
	Parameters watershed.Parameters
	Preprocess filters.Options
	LogLevel   logger.LogLevel
	Output     Output
}

// file mirrors the YAML layout; pointer fields distinguish "absent" from zero.
type file struct {
	Parameters struct {
		Thresh           *float64 `yaml:"thresh"`
		Kernel           *string  `yaml:"kernel"`
		KernelShape      *string  `yaml:"kernel_shape"`
		ThreshPre        *float64 `yaml:"thresh_pre"`
		DilateIterations *int     `yaml:"dilate_iterations"`
	} `yaml:"parameters"`
	Preprocess struct {
		BlurSigma      *float64 `yaml:"blur_sigma"`
		CLAHE          *bool    `yaml:"clahe"`
		CLAHEClipLimit *float64 `yaml:"clahe_clip_limit"`
		CLAHETileSize  *int     `yaml:"clahe_tile_size"`
	} `yaml:"preprocess"`
	LogLevel *string `yaml:"log_level"`
	Output   struct {
		Dir     *string `yaml:"dir"`
		Format  *string `yaml:"format"`
		Montage *bool   `yaml:"montage"`
	} `yaml:"output"`
}

func Default() *Config {
	return &Config{
		Parameters: watershed.DefaultParameters(),
		Preprocess: filters.DefaultOptions(),
		LogLevel:   logger.InfoLevel,
		Output: Output{
			Dir:     "watershed-out",
			Format:  "png",
			Montage: true,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.apply(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	p := &c.Parameters
	if f.Parameters.Thresh != nil {
		p.Thresh = *f.Parameters.Thresh
	}
	if f.Parameters.Kernel != nil {
		k, err := watershed.ParseKernel(*f.Parameters.Kernel)
		if err != nil {
			return err
		}
		p.Kernel = k
	}
	if f.Parameters.KernelShape != nil {
		p.KernelShape = watershed.KernelShape(strings.ToLower(*f.Parameters.KernelShape))
	}
	if f.Parameters.ThreshPre != nil {
		p.ThreshPre = *f.Parameters.ThreshPre
	}
	if f.Parameters.DilateIterations != nil {
		p.DilateIterations = *f.Parameters.DilateIterations
	}

	pre := &c.Preprocess
	if f.Preprocess.BlurSigma != nil {
		pre.BlurSigma = *f.Preprocess.BlurSigma
	}
	if f.Preprocess.CLAHE != nil {
		pre.CLAHE = *f.Preprocess.CLAHE
	}
	if f.Preprocess.CLAHEClipLimit != nil {
		pre.CLAHEClipLimit = *f.Preprocess.CLAHEClipLimit
	}
	if f.Preprocess.CLAHETileSize != nil {
		pre.CLAHETileSize = *f.Preprocess.CLAHETileSize
	}

	if f.LogLevel != nil {
		level, err := logger.ParseLevel(*f.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}

	if f.Output.Dir != nil {
		c.Output.Dir = *f.Output.Dir
	}
	if f.Output.Format != nil {
		c.Output.Format = NormalizeFormat(*f.Output.Format)
	}
	if f.Output.Montage != nil {
		c.Output.Montage = *f.Output.Montage
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	switch {
	case getenv("LOG_LEVEL") != "":
		level, err := logger.ParseLevel(getenv("LOG_LEVEL"))
		if err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
		c.LogLevel = level
	case getenv("DEBUG") == "1":
		c.LogLevel = logger.DebugLevel
	}

	if dir := getenv("WATERSHED_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}
	if format := getenv("WATERSHED_OUTPUT_FORMAT"); format != "" {
		c.Output.Format = NormalizeFormat(format)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Parameters.Validate(); err != nil {
		return err
	}
	if err := c.Preprocess.Validate(); err != nil {
		return err
	}
	if !supportedFormats[c.Output.Format] {
		return fmt.Errorf("unsupported output format %q", c.Output.Format)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

// NormalizeFormat lowercases and maps aliases such as "jpg" and "tif".
func NormalizeFormat(format string) string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	switch f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return f
}
