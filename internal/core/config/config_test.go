package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(dataDir, "nope.yaml"), dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Tracking.IdleThreshold)
	assert.Equal(t, 30*time.Second, cfg.Session.SyncInterval)
	assert.Equal(t, 20, cfg.Events.BatchSize)
	assert.Equal(t, 500, cfg.Session.MaxEntries)
	assert.Equal(t, StoreJSONFile, cfg.Serve.Store)
	assert.NotEmpty(t, cfg.Routes)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := writeConfig(t, `
collector:
  url: http://localhost:8089
tracking:
  idle_threshold: 45s
events:
  batch_size: 50
media:
  short:
    min_watch: 2s
    completion: 0.95
routes:
  - pattern: /lessons/*
    content_type: reading
`)

	cfg, err := Load(p, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8089", cfg.Collector.URL)
	assert.Equal(t, 10*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Tracking.IdleThreshold)
	assert.Equal(t, 100, cfg.Tracking.HistorySize)
	assert.Equal(t, 50, cfg.Events.BatchSize)
	assert.Equal(t, 1000, cfg.Events.MaxBuffer)

	assert.Equal(t, content.Thresholds{MinWatch: 2 * time.Second, Completion: 0.95}, cfg.Media[content.MediaShort])
	assert.Equal(t, content.DefaultThresholds[content.MediaVideo], cfg.Media[content.MediaVideo])

	require.Len(t, cfg.Routes, 1)
	ct, id := cfg.Router().Classify("https://app.example.com/lessons/intro")
	assert.Equal(t, engagement.ContentReading, ct)
	assert.Equal(t, "intro", id)
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeConfig(t, "tracking: [not a map")

	_, err := Load(p, t.TempDir())
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	p := writeConfig(t, `
session:
  sync_interval: 10s
  min_sync_gap: 20s
serve:
  store: postgres
`)

	_, err := Load(p, t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "session.min_sync_gap"))
	assert.True(t, hasField(fieldErrs, "serve.store"))
}

func TestValidate_EmptyDataDir(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "data_dir"))
}

func TestValidate_UnknownMediaKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Media["podcast"] = content.Thresholds{Completion: 0.5}

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "media.podcast"))
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/studytrack"

	assert.Equal(t, "/var/lib/studytrack/local.json", cfg.LocalStoreFile())
	assert.Equal(t, "/var/lib/studytrack/collector", cfg.CollectorDir())
	assert.Equal(t, "/var/lib/studytrack/logs", cfg.LogDir())
}
