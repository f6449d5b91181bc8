package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// Config represents the client configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Backend struct {
		BaseURL        string `yaml:"base_url"`
		UploadPath     string `yaml:"upload_path"`
		StartPath      string `yaml:"start_path"`
		StatusPath     string `yaml:"status_path"`
		CancelPath     string `yaml:"cancel_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"backend"`

	Polling struct {
		IntervalMillis int  `yaml:"interval_ms"`
		LegacyReset    bool `yaml:"legacy_reset"`
	} `yaml:"polling"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
		Download  bool   `yaml:"download_results"`
	} `yaml:"storage"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Cleanup struct {
		IntervalMinutes    int `yaml:"interval_minutes"`
		MaxAgeHours        int `yaml:"max_age_hours"`
		ResultsMaxAgeHours int `yaml:"results_max_age_hours"` // 0 keeps results forever
	} `yaml:"cleanup"`

	GoogleDrive struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Models       []types.ModelOption `yaml:"models"`
	DefaultModel string              `yaml:"default_model"`
}

// Load reads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	file, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("Config file %s not found - using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr returns the companion server listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PollInterval returns the status polling period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMillis) * time.Millisecond
}

// Timeout returns the per-request backend timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:3000"
	}
	if cfg.Backend.UploadPath == "" {
		cfg.Backend.UploadPath = "/api/upload"
	}
	if cfg.Backend.StartPath == "" {
		cfg.Backend.StartPath = "/api/enhance"
	}
	if cfg.Backend.StatusPath == "" {
		cfg.Backend.StatusPath = "/api/status"
	}
	if cfg.Backend.CancelPath == "" {
		cfg.Backend.CancelPath = "/api/job"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 300
	}
	if cfg.Polling.IntervalMillis == 0 {
		cfg.Polling.IntervalMillis = 1200
	}
	if cfg.Storage.TempDir == "" {
		cfg.Storage.TempDir = "temp"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "outputs"
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = "enhancer.db"
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = 1
	}
	if cfg.Cleanup.IntervalMinutes == 0 {
		cfg.Cleanup.IntervalMinutes = 30
	}
	if cfg.Cleanup.MaxAgeHours == 0 {
		cfg.Cleanup.MaxAgeHours = 24
	}
	if cfg.GoogleDrive.FolderName == "" {
		cfg.GoogleDrive.FolderName = "Enhanced Videos"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = types.DefaultModels
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0].Value
	}
}

func validate(cfg *Config) error {
	if cfg.Polling.IntervalMillis < 100 {
		return fmt.Errorf("polling.interval_ms must be at least 100, got %d", cfg.Polling.IntervalMillis)
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must not be negative")
	}
	if cfg.Cleanup.ResultsMaxAgeHours < 0 {
		return fmt.Errorf("cleanup.results_max_age_hours must not be negative")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	found := false
	for _, m := range cfg.Models {
		if m.Value == cfg.DefaultModel {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default_model %q is not in the model list", cfg.DefaultModel)
	}
	return nil
}
