package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/storage"
)

// SnapshotCheck inspects the locally persisted session snapshot. A snapshot
// older than maxAge will be discarded on the next start instead of
// forwarded, so it is reported as stale.
type SnapshotCheck struct {
	store  storage.Store
	maxAge time.Duration
	now    func() time.Time
	fix    bool
}

// NewSnapshotCheck creates a snapshot check. If fix is true, stale and
// unreadable snapshots are cleared.
func NewSnapshotCheck(store storage.Store, maxAge time.Duration, fix bool) *SnapshotCheck {
	return &SnapshotCheck{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		fix:    fix,
	}
}

func (c *SnapshotCheck) Name() string {
	return "Session Snapshot"
}

func (c *SnapshotCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	d, err := session.LoadSnapshot(ctx, c.store)
	switch {
	case errors.Is(err, session.ErrNoSnapshot):
		result.add(StatusPass, "Snapshot", "no pending snapshot")
		return result
	case errors.Is(err, session.ErrCorruptSnapshot):
		result.Findings = append(result.Findings, c.clearOrReport("Snapshot", "unreadable snapshot", err.Error()))
		return result
	case err != nil:
		result.add(StatusFail, "Read snapshot", err.Error())
		return result
	}

	age := c.now().Sub(d.StartTime).Round(time.Second)
	label := d.SessionID
	if label == "" {
		label = "Snapshot"
	}

	if age > c.maxAge {
		result.Findings = append(result.Findings, c.clearOrReport(label, "stale snapshot",
			fmt.Sprintf("started %s ago, older than %s; it will not be forwarded", age, c.maxAge)))
		return result
	}

	result.add(StatusPass, label, fmt.Sprintf("started %s ago, %d page views, %d interactions; forwarded on next start",
		age, len(d.NavigationPath), len(d.ContentInteractions)))
	return result
}

func (c *SnapshotCheck) clearOrReport(label, problem, detail string) Finding {
	if !c.fix {
		return Finding{
			Label:   label,
			Status:  StatusWarn,
			Detail:  problem + ": " + detail,
			Fixable: true,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.ClearSnapshot(ctx, c.store); err != nil {
		return Finding{
			Label:  label,
			Status: StatusFail,
			Detail: fmt.Sprintf("failed to clear: %v", err),
		}
	}
	return Finding{
		Label:  label,
		Status: StatusPass,
		Detail: "cleared " + problem,
	}
}
