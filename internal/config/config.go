package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	ListenAddress  string `yaml:"listenAddress"`
	MetricsAddress string `yaml:"metricsAddress"`
	PublicBaseURL  string `yaml:"publicBaseUrl"`
	MaxUploadMB    int64  `yaml:"maxUploadMb"`
	Development    bool   `yaml:"development"`
}

type StorageConfig struct {
	BaseDir string `yaml:"baseDir"`
}

type DatabaseConfig struct {
	MongoURI string `yaml:"mongoUri"`
	Database string `yaml:"database"`
}

type TranscodeConfig struct {
	Workers int    `yaml:"workers"`
	Timeout string `yaml:"timeout"`
}

type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Storage   StorageConfig     `yaml:"storage"`
	Database  DatabaseConfig    `yaml:"database"`
	Transcode TranscodeConfig   `yaml:"transcode"`
	APIKeys   map[string]string `yaml:"apiKeys"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  ":8080",
			MetricsAddress: ":9090",
			PublicBaseURL:  "http://localhost:8080",
			MaxUploadMB:    512,
		},
		Storage:  StorageConfig{BaseDir: "./data/media"},
		Database: DatabaseConfig{MongoURI: "mongodb://localhost:27017", Database: "mediavault"},
		Transcode: TranscodeConfig{
			Workers: 2,
			Timeout: "30m",
		},
	}
}

// Load reads the YAML file at path when it exists, then applies
// MEDIAVAULT_* environment overrides on top. A missing file is not an
// error; the defaults plus environment are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if _, err := cfg.TranscodeTimeout(); err != nil {
		return nil, err
	}
	if cfg.Transcode.Workers < 1 {
		return nil, fmt.Errorf("transcode.workers must be at least 1, got %d", cfg.Transcode.Workers)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfPresent("MEDIAVAULT_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setIfPresent("MEDIAVAULT_METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	setIfPresent("MEDIAVAULT_PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL)
	setIfPresent("MEDIAVAULT_STORAGE_DIR", &cfg.Storage.BaseDir)
	setIfPresent("MEDIAVAULT_MONGO_URI", &cfg.Database.MongoURI)
	setIfPresent("MEDIAVAULT_MONGO_DATABASE", &cfg.Database.Database)
	setIfPresent("MEDIAVAULT_TRANSCODE_TIMEOUT", &cfg.Transcode.Timeout)

	// MEDIAVAULT_API_KEY grants a single key for the owner named by
	// MEDIAVAULT_API_OWNER, which is enough for local runs without a file.
	if key := os.Getenv("MEDIAVAULT_API_KEY"); key != "" {
		owner := os.Getenv("MEDIAVAULT_API_OWNER")
		if owner == "" {
			owner = "local"
		}
		if cfg.APIKeys == nil {
			cfg.APIKeys = make(map[string]string)
		}
		cfg.APIKeys[key] = owner
	}
}

func setIfPresent(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func (c *Config) TranscodeTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Transcode.Timeout)
	if err != nil {
		return 0, fmt.Errorf("transcode.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("transcode.timeout must be positive, got %s", c.Transcode.Timeout)
	}
	return d, nil
}

func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
