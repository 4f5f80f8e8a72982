// Package config loads service settings from the environment, optionally
// overlaid on a YAML file named by CONFIG_FILE. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            int
	DataDir         string
	DatabaseURL     string
	BehindProxy     bool
	MaxUploadSizeMB int
	UploadsPerHour  int

	SegmentSeconds      int
	MaxParallelSegments int

	TranscriberURL     string
	TranscriberAPIKey  string
	TranscriberModel   string
	TranscriberTimeout time.Duration
	TranscriberRPS     float64

	SweepSchedule   string
	WorkspaceMaxAge time.Duration

	Debug bool
}

// fileConfig mirrors the YAML layout. Durations are Go duration strings.
type fileConfig struct {
	Server struct {
		Port            int    `yaml:"port"`
		DataDir         string `yaml:"data_dir"`
		BehindProxy     *bool  `yaml:"behind_proxy"`
		MaxUploadSizeMB int    `yaml:"max_upload_size_mb"`
		UploadsPerHour  *int   `yaml:"uploads_per_hour"`
	} `yaml:"server"`

	Storage struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"storage"`

	Pipeline struct {
		SegmentSeconds      int  `yaml:"segment_seconds"`
		MaxParallelSegments *int `yaml:"max_parallel_segments"`
	} `yaml:"pipeline"`

	Transcriber struct {
		URL               string   `yaml:"url"`
		APIKey            string   `yaml:"api_key"`
		Model             string   `yaml:"model"`
		Timeout           string   `yaml:"timeout"`
		RequestsPerSecond *float64 `yaml:"requests_per_second"`
	} `yaml:"transcriber"`

	Cleanup struct {
		Schedule        string `yaml:"schedule"`
		WorkspaceMaxAge string `yaml:"workspace_max_age"`
	} `yaml:"cleanup"`

	Log struct {
		Debug *bool `yaml:"debug"`
	} `yaml:"log"`
}

// values flattens the file onto the environment variable names it stands in
// for. Unset entries are left out.
func (f *fileConfig) values() map[string]string {
	v := make(map[string]string)
	setInt := func(key string, n int) {
		if n != 0 {
			v[key] = strconv.Itoa(n)
		}
	}
	setStr := func(key, s string) {
		if s != "" {
			v[key] = s
		}
	}

	setInt("PORT", f.Server.Port)
	setStr("DATA_DIR", f.Server.DataDir)
	if f.Server.BehindProxy != nil {
		v["BEHIND_PROXY"] = strconv.FormatBool(*f.Server.BehindProxy)
	}
	setInt("MAX_UPLOAD_SIZE_MB", f.Server.MaxUploadSizeMB)
	if f.Server.UploadsPerHour != nil {
		v["UPLOADS_PER_HOUR"] = strconv.Itoa(*f.Server.UploadsPerHour)
	}
	setStr("DATABASE_URL", f.Storage.DatabaseURL)
	setInt("SEGMENT_SECONDS", f.Pipeline.SegmentSeconds)
	if f.Pipeline.MaxParallelSegments != nil {
		v["MAX_PARALLEL_SEGMENTS"] = strconv.Itoa(*f.Pipeline.MaxParallelSegments)
	}
	setStr("TRANSCRIBER_URL", f.Transcriber.URL)
	setStr("TRANSCRIBER_API_KEY", f.Transcriber.APIKey)
	setStr("TRANSCRIBER_MODEL", f.Transcriber.Model)
	setStr("TRANSCRIBER_TIMEOUT", f.Transcriber.Timeout)
	if f.Transcriber.RequestsPerSecond != nil {
		v["TRANSCRIBER_RPS"] = strconv.FormatFloat(*f.Transcriber.RequestsPerSecond, 'f', -1, 64)
	}
	setStr("SWEEP_SCHEDULE", f.Cleanup.Schedule)
	setStr("WORKSPACE_MAX_AGE", f.Cleanup.WorkspaceMaxAge)
	if f.Log.Debug != nil {
		v["LOG_DEBUG"] = strconv.FormatBool(*f.Log.Debug)
	}
	return v
}

func Load() (*Config, error) {
	file := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		file = fc.values()
	}

	get := func(key, defaultValue string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return getEnvFrom(file, key, defaultValue)
	}

	var errs []error
	atoi := func(key, def string) int {
		n, err := strconv.Atoi(get(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return n
	}
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(get(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return d
	}
	boolean := func(key, def string) bool {
		b, err := strconv.ParseBool(get(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return b
	}

	cfg := &Config{
		Port:                atoi("PORT", "7890"),
		DataDir:             get("DATA_DIR", "/data"),
		DatabaseURL:         get("DATABASE_URL", ""),
		BehindProxy:         boolean("BEHIND_PROXY", "false"),
		MaxUploadSizeMB:     atoi("MAX_UPLOAD_SIZE_MB", "500"),
		UploadsPerHour:      atoi("UPLOADS_PER_HOUR", "30"),
		SegmentSeconds:      atoi("SEGMENT_SECONDS", "300"),
		MaxParallelSegments: atoi("MAX_PARALLEL_SEGMENTS", "0"),
		TranscriberURL:      get("TRANSCRIBER_URL", "https://api.openai.com/v1"),
		TranscriberAPIKey:   get("TRANSCRIBER_API_KEY", ""),
		TranscriberModel:    get("TRANSCRIBER_MODEL", "whisper-1"),
		TranscriberTimeout:  duration("TRANSCRIBER_TIMEOUT", "2m"),
		SweepSchedule:       get("SWEEP_SCHEDULE", "@every 1h"),
		WorkspaceMaxAge:     duration("WORKSPACE_MAX_AGE", "6h"),
		Debug:               boolean("LOG_DEBUG", "false"),
	}

	rps, err := strconv.ParseFloat(get("TRANSCRIBER_RPS", "0"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid TRANSCRIBER_RPS: %w", err))
	}
	cfg.TranscriberRPS = rps

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.TranscriberAPIKey == "":
		return fmt.Errorf("TRANSCRIBER_API_KEY is required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("PORT out of range: %d", c.Port)
	case c.SegmentSeconds <= 0:
		return fmt.Errorf("SEGMENT_SECONDS must be positive, got %d", c.SegmentSeconds)
	case c.MaxParallelSegments < 0:
		return fmt.Errorf("MAX_PARALLEL_SEGMENTS must not be negative, got %d", c.MaxParallelSegments)
	case c.MaxUploadSizeMB <= 0:
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive, got %d", c.MaxUploadSizeMB)
	case c.UploadsPerHour < 0:
		return fmt.Errorf("UPLOADS_PER_HOUR must not be negative, got %d", c.UploadsPerHour)
	case c.TranscriberTimeout <= 0:
		return fmt.Errorf("TRANSCRIBER_TIMEOUT must be positive, got %s", c.TranscriberTimeout)
	case c.TranscriberRPS < 0:
		return fmt.Errorf("TRANSCRIBER_RPS must not be negative, got %g", c.TranscriberRPS)
	case c.WorkspaceMaxAge <= 0:
		return fmt.Errorf("WORKSPACE_MAX_AGE must be positive, got %s", c.WorkspaceMaxAge)
	}
	return nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func getEnvFrom(values map[string]string, key, defaultValue string) string {
	if value, ok := values[key]; ok && value != "" {
		return value
	}
	return defaultValue
}
