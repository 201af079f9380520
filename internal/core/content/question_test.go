package content

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_SubmitFlow(t *testing.T) {
	e := newEnv(t)
	e.progress.attempts = 2

	var completions []QuestionMetrics
	q, err := NewQuestion(e.deps(), QuestionOptions{
		QuestionID: "q-1",
		OnComplete: func(m QuestionMetrics) { completions = append(completions, m) },
	})
	require.NoError(t, err)

	var forwarded []any
	h := q.Wrap(QuestionHandlers{OnAnswerChange: func(a any) { forwarded = append(forwarded, a) }})

	q.Mount()
	e.step(4 * time.Second)
	h.OnAnswerChange("b")
	e.step(2 * time.Second)
	h.OnAnswerChange("c")
	e.step(2 * time.Second)
	h.OnSubmit(true, 1)

	assert.Equal(t, []any{"b", "c"}, forwarded)
	require.Len(t, completions, 1)

	m := completions[0]
	assert.Equal(t, 3, m.AttemptNumber)
	require.NotNil(t, m.TimeToFirstInteraction)
	assert.InDelta(t, 4.0, *m.TimeToFirstInteraction, 0.001)
	require.Len(t, m.AnswerChanges, 2)
	assert.Nil(t, m.AnswerChanges[0].From)
	assert.Equal(t, "b", m.AnswerChanges[1].From)
	assert.Equal(t, "c", m.AnswerChanges[1].To)
	assert.InDelta(t, 6.0, m.AnswerChanges[1].ElapsedTime, 0.001)
	assert.InDelta(t, 8.0, m.TotalTime, 0.001)
	require.NotNil(t, m.IsCorrect)
	assert.True(t, *m.IsCorrect)

	require.Len(t, e.progress.updates, 1)
	u := e.progress.updates[0]
	assert.True(t, u.Completed)
	assert.Equal(t, "q-1", u.ContentID)
	assert.InDelta(t, 8.0, u.TimeSpent, 0.001)

	// unmount after submit neither emits view_end nor completes again
	q.Unmount()
	h.OnSubmit(false, 0)
	assert.Len(t, completions, 1)
	assert.Equal(t, []string{"view_start", "answer_change", "answer_change", "submit"}, e.recorder.actions())

	submit, ok := e.recorder.last("submit")
	require.True(t, ok)
	require.NotNil(t, submit.Duration)
	assert.InDelta(t, 8.0, *submit.Duration, 0.001)
}

func TestQuestion_UnmountWithoutSubmitCompletesOnce(t *testing.T) {
	e := newEnv(t)
	e.progress.getErr = errors.New("offline")

	calls := 0
	q, err := NewQuestion(e.deps(), QuestionOptions{QuestionID: "q-2", OnComplete: func(QuestionMetrics) { calls++ }})
	require.NoError(t, err)

	q.Mount()
	q.Mount()
	e.step(5 * time.Second)
	q.Unmount()
	q.Unmount()

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"view_start", "view_end"}, e.recorder.actions())
	assert.Equal(t, 1, q.Metrics().AttemptNumber)
	assert.Nil(t, q.Metrics().TimeToFirstInteraction)
	assert.Empty(t, e.progress.updates)
}

func TestQuestion_SkipAndMouseSampling(t *testing.T) {
	e := newEnv(t)
	q, err := NewQuestion(e.deps(), QuestionOptions{QuestionID: "q-3"})
	require.NoError(t, err)
	q.Mount()

	q.MouseMove()
	e.clock.Advance(100 * time.Millisecond)
	q.MouseMove() // sampled out
	e.clock.Advance(200 * time.Millisecond)
	q.MouseMove()
	assert.Equal(t, 2, q.Metrics().MouseMovements)

	q.Skip()
	q.Skip()
	m := q.Metrics()
	assert.True(t, m.Skipped)
	assert.Nil(t, m.Score)
	assert.NotNil(t, m.EndTime)
	assert.Empty(t, e.progress.updates)

	q.Unmount()
	assert.Equal(t, []string{"view_start", "skip"}, e.recorder.actions())
}
