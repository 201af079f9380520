// Package ingesttest holds the behavioral contract every ingest.Store must
// satisfy.
package ingesttest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// Run exercises store. newStore must return an empty store whose event log
// retains at most retention events.
func Run(t *testing.T, newStore func(t *testing.T, retention int) ingest.Store) {
	t.Run("sessions upsert and order", func(t *testing.T) {
		s := newStore(t, 100)
		ctx := context.Background()

		user := "user-1"
		older := session.Data{SessionID: "a", StartTime: epoch, Duration: 10}
		newer := session.Data{SessionID: "b", UserID: &user, StartTime: epoch.Add(time.Hour)}

		require.NoError(t, s.SaveSession(ctx, older))
		require.NoError(t, s.SaveSession(ctx, newer))

		older.Duration = 42
		require.NoError(t, s.SaveSession(ctx, older))

		got, err := s.GetSession(ctx, "a")
		require.NoError(t, err)
		assert.InDelta(t, 42.0, got.Duration, 1e-9)

		all, err := s.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].SessionID)
		require.NotNil(t, all[0].UserID)
		assert.Equal(t, user, *all[0].UserID)
		assert.Equal(t, "a", all[1].SessionID)

		_, err = s.GetSession(ctx, "missing")
		assert.True(t, errors.Is(err, ingest.ErrNotFound), "got %v", err)
	})

	t.Run("events newest first with filters", func(t *testing.T) {
		s := newStore(t, 100)
		ctx := context.Background()

		batch := []events.Event{
			{Timestamp: epoch, SessionID: "s1", EventType: "question_view_start"},
			{Timestamp: epoch.Add(time.Second), SessionID: "s1", EventType: "question_submit", EventData: map[string]any{"score": 80.0}},
			{Timestamp: epoch.Add(2 * time.Second), SessionID: "s2", EventType: "media_play"},
		}
		require.NoError(t, s.AppendEvents(ctx, batch))
		require.NoError(t, s.AppendEvents(ctx, nil))

		all, err := s.ListEvents(ctx, ingest.EventQuery{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "media_play", all[0].EventType)
		assert.True(t, all[2].Timestamp.Equal(epoch))

		bySession, err := s.ListEvents(ctx, ingest.EventQuery{SessionID: "s1"})
		require.NoError(t, err)
		require.Len(t, bySession, 2)
		assert.Equal(t, "question_submit", bySession[0].EventType)
		assert.InDelta(t, 80.0, bySession[0].EventData["score"], 1e-9)

		since, err := s.ListEvents(ctx, ingest.EventQuery{Since: epoch})
		require.NoError(t, err)
		assert.Len(t, since, 2)

		limited, err := s.ListEvents(ctx, ingest.EventQuery{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "s2", limited[0].SessionID)
	})

	t.Run("event retention keeps newest", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()

		for i := range 8 {
			e := events.Event{Timestamp: epoch.Add(time.Duration(i) * time.Second), SessionID: "s", EventType: fmt.Sprintf("e%d", i)}
			require.NoError(t, s.AppendEvents(ctx, []events.Event{e}))
		}

		all, err := s.ListEvents(ctx, ingest.EventQuery{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "e7", all[0].EventType)
		assert.Equal(t, "e3", all[4].EventType)
	})

	t.Run("progress accumulates attempts", func(t *testing.T) {
		s := newStore(t, 100)
		ctx := context.Background()

		key := ingest.ProgressKey{UserID: "u", ContentID: "q1", ContentType: engagement.ContentQuestion}

		empty, err := s.GetProgress(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Attempts)
		assert.Nil(t, empty.Score)

		score := 60.0
		_, err = s.UpdateProgress(ctx, "u", content.ProgressUpdate{ContentID: "q1", ContentType: engagement.ContentQuestion, Completed: true, Score: &score, TimeSpent: 12})
		require.NoError(t, err)

		rec, err := s.UpdateProgress(ctx, "u", content.ProgressUpdate{ContentID: "q1", ContentType: engagement.ContentQuestion, TimeSpent: 8})
		require.NoError(t, err)
		assert.Equal(t, 2, rec.Attempts)
		assert.True(t, rec.Completed, "completion is sticky")
		require.NotNil(t, rec.Score)
		assert.InDelta(t, 60.0, *rec.Score, 1e-9)
		assert.InDelta(t, 20.0, rec.TimeSpent, 1e-9)

		got, err := s.GetProgress(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, rec.Progress(), got.Progress())

		other, err := s.GetProgress(ctx, ingest.ProgressKey{UserID: "someone-else", ContentID: "q1", ContentType: engagement.ContentQuestion})
		require.NoError(t, err)
		assert.Equal(t, 0, other.Attempts)
	})
}
