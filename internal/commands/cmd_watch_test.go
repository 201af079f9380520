package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/config"
)

func newWatchCmd(t *testing.T, configured, override string) *WatchCmd {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Collector.URL = configured
	cmd := NewWatchCmd(&Flags{Config: &cfg})
	cmd.collector = override
	return cmd
}

func TestWatchCmd_RequiresCollector(t *testing.T) {
	err := newWatchCmd(t, "", "").Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no collector configured")
}

func TestWatchCmd_RejectsUnsupportedScheme(t *testing.T) {
	err := newWatchCmd(t, "http://localhost:8089", "ftp://collector").Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported collector url scheme")
}
