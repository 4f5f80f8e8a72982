package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "PORT", "DATA_DIR", "DATABASE_URL", "BEHIND_PROXY", "MAX_UPLOAD_SIZE_MB",
	"UPLOADS_PER_HOUR", "SEGMENT_SECONDS", "MAX_PARALLEL_SEGMENTS", "TRANSCRIBER_URL",
	"TRANSCRIBER_API_KEY", "TRANSCRIBER_MODEL", "TRANSCRIBER_TIMEOUT", "TRANSCRIBER_RPS",
	"SWEEP_SCHEDULE", "WORKSPACE_MAX_AGE", "LOG_DEBUG",
}

// clearEnv blanks every key so values from the host do not leak in. Load
// treats an empty variable as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_API_KEY", "sk-test")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 7890, cfg.Port)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.BehindProxy)
	assert.Equal(t, 500, cfg.MaxUploadSizeMB)
	assert.Equal(t, 30, cfg.UploadsPerHour)
	assert.Equal(t, 300, cfg.SegmentSeconds)
	assert.Zero(t, cfg.MaxParallelSegments)
	assert.Equal(t, "https://api.openai.com/v1", cfg.TranscriberURL)
	assert.Equal(t, "whisper-1", cfg.TranscriberModel)
	assert.Equal(t, 2*time.Minute, cfg.TranscriberTimeout)
	assert.Zero(t, cfg.TranscriberRPS)
	assert.Equal(t, "@every 1h", cfg.SweepSchedule)
	assert.Equal(t, 6*time.Hour, cfg.WorkspaceMaxAge)
	assert.False(t, cfg.Debug)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_API_KEY", "sk-test")
	t.Setenv("PORT", "8080")
	t.Setenv("SEGMENT_SECONDS", "120")
	t.Setenv("MAX_PARALLEL_SEGMENTS", "4")
	t.Setenv("TRANSCRIBER_TIMEOUT", "45s")
	t.Setenv("TRANSCRIBER_RPS", "2.5")
	t.Setenv("DATABASE_URL", "postgres://scribe@db/scribe")
	t.Setenv("LOG_DEBUG", "true")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 120, cfg.SegmentSeconds)
	assert.Equal(t, 4, cfg.MaxParallelSegments)
	assert.Equal(t, 45*time.Second, cfg.TranscriberTimeout)
	assert.InDelta(t, 2.5, cfg.TranscriberRPS, 1e-9)
	assert.Equal(t, "postgres://scribe@db/scribe", cfg.DatabaseURL)
	assert.True(t, cfg.Debug)
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, `
server:
  port: 9000
  data_dir: /srv/scribe
  behind_proxy: true
  uploads_per_hour: 0
pipeline:
  segment_seconds: 180
  max_parallel_segments: 3
transcriber:
  api_key: sk-file
  model: whisper-large
  timeout: 90s
  requests_per_second: 1.5
cleanup:
  schedule: "@every 30m"
  workspace_max_age: 2h
`))
	t.Setenv("PORT", "9100")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port, "environment wins over file")
	assert.Equal(t, "/srv/scribe", cfg.DataDir)
	assert.True(t, cfg.BehindProxy)
	assert.Zero(t, cfg.UploadsPerHour)
	assert.Equal(t, 180, cfg.SegmentSeconds)
	assert.Equal(t, 3, cfg.MaxParallelSegments)
	assert.Equal(t, "sk-file", cfg.TranscriberAPIKey)
	assert.Equal(t, "whisper-large", cfg.TranscriberModel)
	assert.Equal(t, 90*time.Second, cfg.TranscriberTimeout)
	assert.InDelta(t, 1.5, cfg.TranscriberRPS, 1e-9)
	assert.Equal(t, "@every 30m", cfg.SweepSchedule)
	assert.Equal(t, 2*time.Hour, cfg.WorkspaceMaxAge)
	assert.Equal(t, 500, cfg.MaxUploadSizeMB, "unset in file falls back to default")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing api key", env: map[string]string{}, wantErr: "TRANSCRIBER_API_KEY is required"},
		{name: "bad port", env: map[string]string{"PORT": "http"}, wantErr: "invalid PORT"},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}, wantErr: "PORT out of range"},
		{name: "zero segment length", env: map[string]string{"SEGMENT_SECONDS": "0"}, wantErr: "SEGMENT_SECONDS must be positive"},
		{name: "negative parallelism", env: map[string]string{"MAX_PARALLEL_SEGMENTS": "-1"}, wantErr: "MAX_PARALLEL_SEGMENTS must not be negative"},
		{name: "bad timeout", env: map[string]string{"TRANSCRIBER_TIMEOUT": "soon"}, wantErr: "invalid TRANSCRIBER_TIMEOUT"},
		{name: "negative rps", env: map[string]string{"TRANSCRIBER_RPS": "-2"}, wantErr: "TRANSCRIBER_RPS must not be negative"},
		{name: "bad debug flag", env: map[string]string{"LOG_DEBUG": "loud"}, wantErr: "invalid LOG_DEBUG"},
		{name: "missing config file", env: map[string]string{"CONFIG_FILE": "/nonexistent/scribe.yaml"}, wantErr: "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.name != "missing api key" {
				t.Setenv("TRANSCRIBER_API_KEY", "sk-test")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIBER_API_KEY", "sk-test")
	t.Setenv("CONFIG_FILE", writeConfig(t, "server: [port"))

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}
