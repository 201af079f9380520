package doctor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/config"
)

func TestConfigCheck_NotLoaded(t *testing.T) {
	result := NewConfigCheck(nil, "").Run(context.Background())

	require.Len(t, result.Findings, 1)
	assert.Equal(t, StatusFail, result.Findings[0].Status)
}

func TestConfigCheck_DefaultsWarnWithoutCollector(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	result := NewConfigCheck(&cfg, filepath.Join(t.TempDir(), "missing.yaml")).Run(context.Background())

	require.NotEmpty(t, result.Findings)
	assert.Equal(t, "Config file", result.Findings[0].Label)

	var warned bool
	for _, item := range result.Findings {
		assert.NotEqual(t, StatusFail, item.Status, item.Label)
		if item.Status == StatusWarn {
			warned = true
		}
	}
	assert.True(t, warned, "missing collector url should warn")
}

func TestConfigCheck_ReportsFieldErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Collector.URL = "ftp://nope"
	cfg.Collector.Headers = map[string]string{"Bad Header": "x"}

	result := NewConfigCheck(&cfg, "").Run(context.Background())

	labels := make(map[string]Status)
	for _, item := range result.Findings {
		labels[item.Label] = item.Status
	}
	assert.Equal(t, StatusFail, labels["collector.url"])
	assert.Equal(t, StatusFail, labels[`collector.headers["Bad Header"]`])
}
