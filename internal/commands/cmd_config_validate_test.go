package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/printer"
)

func newValidateCmd(t *testing.T, mutate func(*config.Config)) *ConfigValidateCmd {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewConfigValidateCmd(&Flags{Config: &cfg})
}

func TestConfigValidate_OfflineDefaults(t *testing.T) {
	cmd := newValidateCmd(t, nil)

	rep, err := cmd.check()
	require.NoError(t, err)
	assert.True(t, rep.Valid)
	assert.True(t, rep.Offline)
	assert.Empty(t, rep.Errors)
	assert.NotEmpty(t, rep.Warnings, "no collector url warns")

	var buf bytes.Buffer
	cmd.outputText(printer.New(&buf), rep)
	assert.Contains(t, buf.String(), "Mode: offline")
	assert.Contains(t, buf.String(), "Configuration is valid")
}

func TestConfigValidate_StrictFailsOnWarnings(t *testing.T) {
	cmd := newValidateCmd(t, nil)
	cmd.strict = true

	rep, err := cmd.check()
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.Empty(t, rep.Errors)

	var buf bytes.Buffer
	cmd.outputText(printer.New(&buf), rep)
	assert.Contains(t, buf.String(), "strict mode")
}

func TestConfigValidate_FieldErrors(t *testing.T) {
	cmd := newValidateCmd(t, func(cfg *config.Config) {
		cfg.Collector.URL = "ftp://nope"
	})

	rep, err := cmd.check()
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.False(t, rep.Offline)
	fields := make([]string, 0, len(rep.Errors))
	for _, e := range rep.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "collector.url")
}

func TestConfigValidate_NotLoaded(t *testing.T) {
	_, err := NewConfigValidateCmd(&Flags{}).check()
	assert.Error(t, err)
}
