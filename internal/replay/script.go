// Package replay drives the tracking core from a scripted scenario on a
// manual clock, so a learner's visit can be reproduced deterministically.
package replay

import (
	"fmt"
	"os"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/content"
)

// DefaultStart is the replay clock's start when a script sets none.
var DefaultStart = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// Script is a replay scenario.
//
//	name: quiz warmup
//	user: learner-1
//	steps:
//	  - navigate: /questions/q1
//	  - question: {id: q1, action: mount}
//	  - wait: 4s
//	  - question: {id: q1, action: answer, answer: b}
//	  - question: {id: q1, action: submit, correct: true, score: 100}
type Script struct {
	Name      string    `yaml:"name"`
	SessionID string    `yaml:"session_id"`
	User      string    `yaml:"user"`
	Start     time.Time `yaml:"start"`
	Steps     []Step    `yaml:"steps"`
}

// Step is one scripted action. Exactly one field is set per step.
type Step struct {
	// Wait advances the clock, beating the pulse every tick.
	Wait      time.Duration      `yaml:"wait"`
	Navigate  string             `yaml:"navigate"`
	Input     activity.EventType `yaml:"input"`
	Visible   *bool              `yaml:"visible"`
	User      string             `yaml:"user"`
	Hide      bool               `yaml:"hide"`
	Flush     bool               `yaml:"flush"`
	Question  *QuestionStep      `yaml:"question"`
	Flashcard *FlashcardStep     `yaml:"flashcard"`
	Media     *MediaStep         `yaml:"media"`
}

// QuestionStep drives a question tracker.
type QuestionStep struct {
	ID      string  `yaml:"id"`
	Action  string  `yaml:"action"`
	Answer  any     `yaml:"answer"`
	Correct bool    `yaml:"correct"`
	Score   float64 `yaml:"score"`
}

// FlashcardStep drives a flashcard tracker.
type FlashcardStep struct {
	Deck   string `yaml:"deck"`
	Action string `yaml:"action"`
	Card   string `yaml:"card"`
	Rating int    `yaml:"rating"`
	Marked bool   `yaml:"marked"`
}

// MediaStep drives a media tracker.
type MediaStep struct {
	ID       string            `yaml:"id"`
	Action   string            `yaml:"action"`
	Kind     content.MediaKind `yaml:"kind"`
	Duration float64           `yaml:"duration"`
	Position float64           `yaml:"position"`
	Error    string            `yaml:"error"`
}

var (
	questionActions  = []string{"mount", "answer", "mouse", "submit", "skip", "unmount"}
	flashcardActions = []string{"mount", "view", "flip", "rate", "mark", "complete", "unmount"}
	mediaActions     = []string{"mount", "duration", "play", "pause", "seek", "time", "ended", "error", "unmount"}
)

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Start.IsZero() {
		s.Start = DefaultStart
	}
	return &s, nil
}

// Validate checks every step.
func (s *Script) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if len(s.Steps) == 0 {
		errs = errs.Append("steps", fmt.Errorf("script has no steps"))
	}

	for i, st := range s.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		if n := st.kinds(); n != 1 {
			errs = errs.Append(field, fmt.Errorf("expected exactly one action, found %d", n))
			continue
		}

		switch {
		case st.Wait < 0:
			errs = errs.Append(field+".wait", fmt.Errorf("must not be negative"))
		case st.Input != "" && !st.Input.Valid():
			errs = errs.Append(field+".input", fmt.Errorf("unknown input %q", st.Input))
		case st.Question != nil:
			errs = checkAction(errs, field+".question", "id", st.Question.ID, st.Question.Action, questionActions)
		case st.Flashcard != nil:
			errs = checkAction(errs, field+".flashcard", "deck", st.Flashcard.Deck, st.Flashcard.Action, flashcardActions)
			if needsCard(st.Flashcard.Action) && st.Flashcard.Card == "" {
				errs = errs.Append(field+".flashcard.card", fmt.Errorf("card is required for %q", st.Flashcard.Action))
			}
		case st.Media != nil:
			errs = checkAction(errs, field+".media", "id", st.Media.ID, st.Media.Action, mediaActions)
			if st.Media.Kind != "" {
				if _, ok := content.DefaultThresholds[st.Media.Kind]; !ok {
					errs = errs.Append(field+".media.kind", fmt.Errorf("unknown media kind %q", st.Media.Kind))
				}
			}
		}
	}

	return errs.ToError()
}

func (st Step) kinds() int {
	n := 0
	for _, set := range []bool{
		st.Wait != 0,
		st.Navigate != "",
		st.Input != "",
		st.Visible != nil,
		st.User != "",
		st.Hide,
		st.Flush,
		st.Question != nil,
		st.Flashcard != nil,
		st.Media != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func checkAction(errs criterio.FieldErrorsBuilder, field, idField, id, action string, allowed []string) criterio.FieldErrorsBuilder {
	if id == "" {
		errs = errs.Append(field+"."+idField, fmt.Errorf("%s is required", idField))
	}
	for _, a := range allowed {
		if a == action {
			return errs
		}
	}
	return errs.Append(field+".action", fmt.Errorf("unknown action %q", action))
}

func needsCard(action string) bool {
	switch action {
	case "view", "flip", "rate", "mark":
		return true
	default:
		return false
	}
}
