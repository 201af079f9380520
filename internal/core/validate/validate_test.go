package validate

import (
	"strings"
	"testing"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

func TestID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "7c9e6679-7425-40de-944b-e07fc1f90ae7", false},
		{"short", "q1", false},
		{"email-ish", "learner@example.com", false},
		{"namespaced", "deck:42.card-3", false},
		{"empty string", "", true},
		{"only spaces", "   ", true},
		{"slash", "a/b", true},
		{"leading dash", "-abc", true},
		{"too long", strings.Repeat("a", MaxIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestOptionalID(t *testing.T) {
	if err := OptionalID(nil); err != nil {
		t.Errorf("OptionalID(nil) = %v, want nil", err)
	}
	bad := "a b"
	if err := OptionalID(&bad); err == nil {
		t.Error("OptionalID(\"a b\") = nil, want error")
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		input   engagement.ContentType
		wantErr bool
	}{
		{engagement.ContentQuestion, false},
		{engagement.ContentFlashcard, false},
		{engagement.ContentMedia, false},
		{engagement.ContentReading, false},
		{engagement.ContentGeneral, false},
		{"", true},
		{"podcast", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			err := ContentType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ContentType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"question_submit", false},
		{"media_view_start", false},
		{"flashcard_card_flip", false},
		{"session", false},
		{"", true},
		{"QuestionSubmit", true},
		{"question-submit", true},
		{"question__submit", true},
		{"_leading", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := EventType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("EventType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestScore(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		input   *float64
		wantErr bool
	}{
		{"nil", nil, false},
		{"zero", f(0), false},
		{"hundred", f(100), false},
		{"negative", f(-1), true},
		{"over", f(100.5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Score(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Score() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
