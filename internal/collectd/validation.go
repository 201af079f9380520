package collectd

import (
	"fmt"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/validate"
)

// validateSession checks the fields the collector indexes on. Clients send
// ids unvalidated.
func validateSession(d session.Data) error {
	var errs criterio.FieldErrorsBuilder

	if err := validate.ID(d.SessionID); err != nil {
		errs = errs.Append("sessionId", err)
	}
	if err := validate.OptionalID(d.UserID); err != nil {
		errs = errs.Append("userId", err)
	}
	if d.StartTime.IsZero() {
		errs = errs.Append("startTime", fmt.Errorf("start time is required"))
	}
	if d.EndTime != nil && d.EndTime.Before(d.StartTime) {
		errs = errs.Append("endTime", fmt.Errorf("end time precedes start time"))
	}
	if err := validate.NonNegative(d.Duration); err != nil {
		errs = errs.Append("duration", err)
	}
	if err := validate.NonNegative(d.ActiveDuration); err != nil {
		errs = errs.Append("activeDuration", err)
	}
	for i, ci := range d.ContentInteractions {
		if err := validate.ContentType(ci.ContentType); err != nil {
			errs = errs.Append(fmt.Sprintf("contentInteractions[%d].contentType", i), err)
		}
	}

	return errs.ToError()
}

// validateEvents checks a batch. One bad event rejects the whole batch.
func validateEvents(evs []events.Event) error {
	var errs criterio.FieldErrorsBuilder

	if len(evs) > maxBatchEvents {
		return criterio.NewFieldErrors("events", fmt.Errorf("batch exceeds %d events", maxBatchEvents))
	}

	for i, e := range evs {
		if err := validate.ID(e.SessionID); err != nil {
			errs = errs.Append(fmt.Sprintf("events[%d].sessionId", i), err)
		}
		if err := validate.OptionalID(e.UserID); err != nil {
			errs = errs.Append(fmt.Sprintf("events[%d].userId", i), err)
		}
		if err := validate.EventType(e.EventType); err != nil {
			errs = errs.Append(fmt.Sprintf("events[%d].eventType", i), err)
		}
		if e.Timestamp.IsZero() {
			errs = errs.Append(fmt.Sprintf("events[%d].timestamp", i), fmt.Errorf("timestamp is required"))
		}
	}

	return errs.ToError()
}
