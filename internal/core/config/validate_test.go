package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Collector.URL = "https://collector.example.com"
	return &cfg
}

func hasField(errs criterio.FieldErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep("")
	assert.NoError(t, err, "expected valid config")
}

func TestValidateDeep_InvalidRoutePattern(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routes = []session.Route{
		{Pattern: "/questions/[", ContentType: engagement.ContentQuestion},
		{Pattern: "videos/*", ContentType: engagement.ContentMedia},
	}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	assert.Equal(t, "routes[0].pattern", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "invalid glob")
	assert.Equal(t, "routes[1].pattern", fieldErrs[1].Field)
	assert.Contains(t, fieldErrs[1].Err.Error(), "must start with /")
}

func TestValidateDeep_RouteContentType(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routes = []session.Route{
		{Pattern: "/podcasts/*", ContentType: "audio"},
		{Pattern: "/home", ContentType: engagement.ContentGeneral},
	}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "routes[0].content_type"))
	assert.True(t, hasField(fieldErrs, "routes[1].content_type"))
}

func TestValidateDeep_MediaThresholds(t *testing.T) {
	cfg := validConfig(t)
	cfg.Media[content.MediaShort] = content.Thresholds{MinWatch: -time.Second, Completion: 1.5}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "media.short.completion"))
	assert.True(t, hasField(fieldErrs, "media.short.min_watch"))
	assert.False(t, hasField(fieldErrs, "media.video.completion"))
}

func TestValidateDeep_CollectorURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "empty disables delivery", url: "", wantErr: false},
		{name: "https", url: "https://collector.example.com", wantErr: false},
		{name: "with path", url: "http://localhost:8089/track", wantErr: false},
		{name: "trailing slash", url: "https://collector.example.com/", wantErr: true},
		{name: "no scheme", url: "collector.example.com", wantErr: true},
		{name: "ftp", url: "ftp://collector.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Collector.URL = tt.url

			err := cfg.ValidateDeep("")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.True(t, hasField(fieldErrs, "collector.url"))
		})
	}
}

func TestValidateDeep_InvalidHeaderName(t *testing.T) {
	cfg := validConfig(t)
	cfg.Collector.Headers = map[string]string{"X-Api-Key": "secret", "Bad Header": "x"}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Contains(t, fieldErrs[0].Field, "Bad Header")
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	cfg := validConfig(t)
	cfg.DataDir = tmpFile

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "data_dir"), "expected error about data dir")
}

func TestValidateDeep_ConfigFileIsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := validConfig(t)

	err := cfg.ValidateDeep(tmpDir)

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.True(t, hasField(fieldErrs, "config_file"), "expected error about config file being a directory")
}

func TestWarnings_NoCollector(t *testing.T) {
	cfg := validConfig(t)
	cfg.Collector.URL = ""

	require.NoError(t, cfg.ValidateDeep(""))

	warnings := cfg.Warnings()
	hasWarning := false
	for _, w := range warnings {
		if w.Category == "Collector" && strings.Contains(w.Message, "stay local") {
			hasWarning = true
			break
		}
	}
	assert.True(t, hasWarning, "expected warning about missing collector")
}

func TestWarnings_DuplicateRoute(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routes = []session.Route{
		{Pattern: "/videos/*", ContentType: engagement.ContentMedia},
		{Pattern: "/videos/*", ContentType: engagement.ContentReading},
	}

	require.NoError(t, cfg.ValidateDeep(""))

	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Routes", warnings[0].Category)
	assert.Equal(t, "route 1", warnings[0].Item)
}

func TestWarnings_DefaultsAreQuiet(t *testing.T) {
	cfg := validConfig(t)
	assert.Empty(t, cfg.Warnings())
}
