package doctor

import (
	"context"
	"time"

	"github.com/hay-kot/studytrack/internal/collector"
)

// CollectorCheck verifies the configured collector answers its health
// endpoint.
type CollectorCheck struct {
	client  *collector.Client
	timeout time.Duration
}

// NewCollectorCheck creates a collector reachability check.
func NewCollectorCheck(client *collector.Client, timeout time.Duration) *CollectorCheck {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CollectorCheck{client: client, timeout: timeout}
}

func (c *CollectorCheck) Name() string {
	return "Collector"
}

func (c *CollectorCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if !c.client.Enabled() {
		result.add(StatusWarn, "Collector URL", "not configured; sessions stay local")
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.client.Health(ctx); err != nil {
		result.add(StatusFail, c.client.BaseURL(), err.Error())
		return result
	}

	result.add(StatusPass, c.client.BaseURL(), "healthy in "+time.Since(start).Round(time.Millisecond).String())
	return result
}
