package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Source    SourceConfig    `yaml:"source"`
	Detection DetectionConfig `yaml:"detection"`
	Output    OutputConfig    `yaml:"output"`
	Store     StoreConfig     `yaml:"store"`
}

// SessionConfig holds crop editor limits
type SessionConfig struct {
	MaxScale float64 `yaml:"max_scale"`
}

// SourceConfig holds photo loading rules
type SourceConfig struct {
	SupportedFormats []string      `yaml:"supported_formats"`
	MinImageSize     int           `yaml:"min_image_size"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

// DetectionConfig selects how crop suggestions locate the pet
type DetectionConfig struct {
	Backend     string  `yaml:"backend"`
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	Padding     float64 `yaml:"padding"`
	SendFormat  string  `yaml:"send_format"`
	SendSize    int     `yaml:"send_size"`
	SendQuality int     `yaml:"send_quality"`
}

// OutputConfig holds configuration for rendered crops
type OutputConfig struct {
	Format   string `yaml:"format"`
	Quality  int    `yaml:"quality"`
	Lossless bool   `yaml:"lossless"`
	Dir      string `yaml:"dir"`
	Prefix   string `yaml:"prefix"`
	Suffix   string `yaml:"suffix"`
	Sizes    []int  `yaml:"sizes"`
	Upscale  bool   `yaml:"upscale"`
}

// StoreConfig locates the crop database
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Backends lists the accepted detection backends
var Backends = []string{"saliency", "ollama", "llamacpp"}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxScale: 5.0,
		},
		Source: SourceConfig{
			SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
			MinImageSize:     64,
			FetchTimeout:     30 * time.Second,
		},
		Detection: DetectionConfig{
			Backend:     "saliency",
			Model:       "openbmb/minicpm-v4.5",
			Padding:     0.15,
			SendFormat:  "jpg",
			SendSize:    1536,
			SendQuality: 85,
		},
		Output: OutputConfig{
			Format:  "jpg",
			Quality: 90,
			Dir:     "./out",
			Suffix:  "_crop",
			Sizes:   []int{1024, 512, 128},
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
	}
}

// DefaultURL returns the conventional server URL for a backend
func DefaultURL(backend string) string {
	switch backend {
	case "ollama":
		return "http://localhost:11435/api/chat"
	case "llamacpp":
		return "http://localhost:8080"
	}
	return ""
}

// LoadFromFile loads configuration from a YAML (or JSON) file. Missing
// fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Session.MaxScale < 1 {
		return fmt.Errorf("session.max_scale must be at least 1")
	}

	if c.Source.MinImageSize < 1 {
		return fmt.Errorf("source.min_image_size must be positive")
	}
	if len(c.Source.SupportedFormats) == 0 {
		return fmt.Errorf("source.supported_formats cannot be empty")
	}

	if !slices.Contains(Backends, c.Detection.Backend) {
		return fmt.Errorf("detection.backend must be one of %v", Backends)
	}
	if c.Detection.Padding < 0 || c.Detection.Padding > 1 {
		return fmt.Errorf("detection.padding must be between 0 and 1")
	}
	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("detection.send_quality must be between 1 and 100")
	}

	switch c.Output.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if len(c.Output.Sizes) == 0 {
		return fmt.Errorf("output.sizes cannot be empty")
	}
	for _, size := range c.Output.Sizes {
		if size <= 0 {
			return fmt.Errorf("output.sizes must be positive, got %d", size)
		}
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "pawcrop", "config.yaml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./pawcrop.db"
	}
	return filepath.Join(home, ".local", "share", "pawcrop", "crops.db")
}
