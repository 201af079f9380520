// Package validate provides shared validation functions for identifiers
// received from clients.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// MaxIDLength bounds session, user and content ids.
const MaxIDLength = 128

var (
	idPattern        = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)
	eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)
)

// ID validates an opaque identifier: non-empty, bounded and limited to a
// URL-safe character set.
func ID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("id exceeds %d characters", MaxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}
	return nil
}

// OptionalID validates id when it is set.
func OptionalID(id *string) error {
	if id == nil {
		return nil
	}
	return ID(*id)
}

// ContentType validates a known content type.
func ContentType(ct engagement.ContentType) error {
	if ct == "" {
		return fmt.Errorf("content type is required")
	}
	if !ct.Valid() {
		return fmt.Errorf("unknown content type %q", ct)
	}
	return nil
}

// EventType validates a snake_case event type such as "question_submit".
func EventType(t string) error {
	if t == "" {
		return fmt.Errorf("event type is required")
	}
	if len(t) > MaxIDLength {
		return fmt.Errorf("event type exceeds %d characters", MaxIDLength)
	}
	if !eventTypePattern.MatchString(t) {
		return fmt.Errorf("event type %q must be snake_case", t)
	}
	return nil
}

// Score validates a percentage score.
func Score(s *float64) error {
	if s == nil {
		return nil
	}
	if *s < 0 || *s > 100 {
		return fmt.Errorf("score must be between 0 and 100, got %v", *s)
	}
	return nil
}

// NonNegative validates a duration or counter in seconds.
func NonNegative(v float64) error {
	if v < 0 {
		return fmt.Errorf("must not be negative, got %v", v)
	}
	return nil
}
