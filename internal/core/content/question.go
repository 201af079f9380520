package content

import (
	"time"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// mouseSampleInterval throttles mouse-movement sampling on questions.
const mouseSampleInterval = 250 * time.Millisecond

// AnswerChange is one transition of the selected answer.
type AnswerChange struct {
	Timestamp   time.Time `json:"timestamp"`
	From        any       `json:"from"`
	To          any       `json:"to"`
	ElapsedTime float64   `json:"elapsedTime"`
}

// QuestionMetrics summarizes one question view. Times are in seconds.
type QuestionMetrics struct {
	QuestionID             string         `json:"questionId"`
	AttemptNumber          int            `json:"attemptNumber"`
	StartTime              time.Time      `json:"startTime"`
	EndTime                *time.Time     `json:"endTime,omitempty"`
	TotalTime              float64        `json:"totalTime"`
	ActiveTime             float64        `json:"activeTime"`
	IdleTime               float64        `json:"idleTime"`
	TimeToFirstInteraction *float64       `json:"timeToFirstInteraction,omitempty"`
	AnswerChanges          []AnswerChange `json:"answerChanges"`
	AnswerChangeCount      int            `json:"answerChangeCount"`
	MouseMovements         int            `json:"mouseMovements"`
	IsCorrect              *bool          `json:"isCorrect,omitempty"`
	Score                  *float64       `json:"score,omitempty"`
	Skipped                bool           `json:"skipped"`
	EngagementScore        int            `json:"engagementScore"`
}

// QuestionHandlers are the callbacks a question component exposes.
type QuestionHandlers struct {
	OnAnswerChange func(answer any)
	OnSubmit       func(isCorrect bool, score float64)
	OnSkip         func()
	OnMouseMove    func()
}

// QuestionOptions configures a Question tracker.
type QuestionOptions struct {
	QuestionID string
	// OnComplete fires exactly once, on submit, skip or unmount.
	OnComplete func(QuestionMetrics)
}

// Question tracks one question view.
type Question struct {
	*base
	onComplete func(QuestionMetrics)

	answer           any
	hasAnswer        bool
	firstInteraction *float64
	changes          []AnswerChange
	mouseMoves       int
	lastMouseSample  time.Time
	isCorrect        *bool
	score            *float64
	skipped          bool
	final            *QuestionMetrics
}

// NewQuestion creates a question tracker. Call Mount when the question is shown.
func NewQuestion(deps Deps, opts QuestionOptions) (*Question, error) {
	b, err := newBase(deps, engagement.ContentQuestion, opts.QuestionID, true)
	if err != nil {
		return nil, err
	}
	return &Question{base: b, onComplete: opts.OnComplete}, nil
}

// Mount starts timing and emits view_start.
func (q *Question) Mount() { q.mount() }

// Wrap returns handlers that record tracking side effects and then forward
// to h.
func (q *Question) Wrap(h QuestionHandlers) QuestionHandlers {
	return QuestionHandlers{
		OnAnswerChange: func(answer any) {
			q.AnswerChange(answer)
			if h.OnAnswerChange != nil {
				h.OnAnswerChange(answer)
			}
		},
		OnSubmit: func(isCorrect bool, score float64) {
			q.Submit(isCorrect, score)
			if h.OnSubmit != nil {
				h.OnSubmit(isCorrect, score)
			}
		},
		OnSkip: func() {
			q.Skip()
			if h.OnSkip != nil {
				h.OnSkip()
			}
		},
		OnMouseMove: func() {
			q.MouseMove()
			if h.OnMouseMove != nil {
				h.OnMouseMove()
			}
		},
	}
}

// AnswerChange records a new answer value.
func (q *Question) AnswerChange(answer any) {
	now := q.deps.Clock.Now()
	elapsed := q.elapsed(now)

	q.mu.Lock()
	if q.finalized {
		q.mu.Unlock()
		return
	}
	if q.firstInteraction == nil {
		q.firstInteraction = &elapsed
	}
	var from any
	if q.hasAnswer {
		from = q.answer
	}
	q.changes = append(q.changes, AnswerChange{Timestamp: now, From: from, To: answer, ElapsedTime: elapsed})
	q.answer = answer
	q.hasAnswer = true
	count := len(q.changes)
	q.mu.Unlock()

	q.record("answer_change", map[string]any{
		"from":        from,
		"to":          answer,
		"elapsedTime": elapsed,
		"changeCount": count,
	}, nil)
}

// MouseMove samples pointer movement over the question, at most once per
// 250ms. Informational only.
func (q *Question) MouseMove() {
	now := q.deps.Clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finalized {
		return
	}
	if !q.lastMouseSample.IsZero() && now.Sub(q.lastMouseSample) < mouseSampleInterval {
		return
	}
	q.lastMouseSample = now
	q.mouseMoves++
}

// Submit finalizes the question with a result, posts a progress update and
// fires OnComplete. Later calls are ignored.
func (q *Question) Submit(isCorrect bool, score float64) {
	m, ok := q.finalize()
	if !ok {
		return
	}

	q.mu.Lock()
	q.isCorrect = &isCorrect
	q.score = &score
	final := q.metricsLocked(m)
	q.final = &final
	q.mu.Unlock()

	q.record("submit", map[string]any{
		"isCorrect":         isCorrect,
		"score":             score,
		"attemptNumber":     final.AttemptNumber,
		"answerChangeCount": final.AnswerChangeCount,
		"engagementScore":   final.EngagementScore,
	}, &m)
	q.postProgress(true, &score, m.TotalTime)
	q.complete(final)
}

// Skip finalizes the question without a score.
func (q *Question) Skip() {
	m, ok := q.finalize()
	if !ok {
		return
	}

	q.mu.Lock()
	q.skipped = true
	final := q.metricsLocked(m)
	q.final = &final
	q.mu.Unlock()

	q.record("skip", map[string]any{
		"attemptNumber":     final.AttemptNumber,
		"answerChangeCount": final.AnswerChangeCount,
	}, &m)
	q.complete(final)
}

// Unmount ends the view. If the question was neither submitted nor skipped
// it emits view_end with partial metrics and fires OnComplete.
func (q *Question) Unmount() {
	m, first := q.unmount()
	if !first {
		return
	}

	q.mu.Lock()
	partial := q.metricsLocked(m)
	q.final = &partial
	q.mu.Unlock()

	q.record("view_end", map[string]any{
		"completed":         false,
		"answerChangeCount": partial.AnswerChangeCount,
		"mouseMovements":    partial.MouseMovements,
		"engagementScore":   partial.EngagementScore,
	}, &m)
	q.complete(partial)
}

// Metrics returns live metrics, or the frozen ones once finalized.
func (q *Question) Metrics() QuestionMetrics {
	m := q.timer.Metrics()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.final != nil {
		return *q.final
	}
	return q.metricsLocked(m)
}

func (q *Question) complete(m QuestionMetrics) {
	if q.onComplete != nil {
		q.onComplete(m)
	}
}

// metricsLocked builds QuestionMetrics. Caller must hold the lock.
func (q *Question) metricsLocked(m engagement.Metrics) QuestionMetrics {
	out := QuestionMetrics{
		QuestionID:        q.contentID,
		AttemptNumber:     q.attempt,
		StartTime:         q.viewStart,
		TotalTime:         m.TotalTime,
		ActiveTime:        m.ActiveTime,
		IdleTime:          m.IdleTime,
		AnswerChanges:     append([]AnswerChange{}, q.changes...),
		AnswerChangeCount: len(q.changes),
		MouseMovements:    q.mouseMoves,
		IsCorrect:         q.isCorrect,
		Score:             q.score,
		Skipped:           q.skipped,
		EngagementScore:   m.EngagementScore,
	}
	if q.firstInteraction != nil {
		v := *q.firstInteraction
		out.TimeToFirstInteraction = &v
	}
	if q.endTime != nil {
		e := *q.endTime
		out.EndTime = &e
	}
	return out
}
