package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/collector"
)

func TestCollectorCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(healthy.Close)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(broken.Close)

	tests := []struct {
		name   string
		url    string
		status Status
	}{
		{name: "not configured", url: "", status: StatusWarn},
		{name: "healthy", url: healthy.URL, status: StatusPass},
		{name: "unhealthy", url: broken.URL, status: StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := collector.New(collector.Options{BaseURL: tt.url, Logger: zerolog.Nop()})
			result := NewCollectorCheck(client, 0).Run(context.Background())

			assert.Equal(t, "Collector", result.Name)
			require.Len(t, result.Findings, 1)
			assert.Equal(t, tt.status, result.Findings[0].Status)
		})
	}
}
