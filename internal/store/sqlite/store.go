package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
)

const defaultRetention = 10000

// Store implements ingest.Store on SQLite.
type Store struct {
	db        *sql.DB
	log       zerolog.Logger
	now       func() time.Time
	retention int
}

// WithRetention bounds the events table.
func (s *Store) WithRetention(n int) *Store {
	if n > 0 {
		s.retention = n
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveSession(ctx context.Context, d session.Data) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	query, args, err := sqlBuilder.Insert("sessions").
		Columns("session_id", "user_id", "start_time", "data", "updated_at").
		Values(d.SessionID, d.UserID, formatTime(d.StartTime), string(body), formatTime(s.now())).
		Suffix("ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, start_time = excluded.start_time, data = excluded.data, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Data, error) {
	query, args, err := sqlBuilder.Select("data").From("sessions").Where(sq.Eq{"session_id": id}).ToSql()
	if err != nil {
		return session.Data{}, fmt.Errorf("build query: %w", err)
	}

	var body string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Data{}, ingest.ErrNotFound
		}
		return session.Data{}, fmt.Errorf("get session: %w", err)
	}

	var d session.Data
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return session.Data{}, fmt.Errorf("parse session %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Data, error) {
	query, args, err := sqlBuilder.Select("data").From("sessions").OrderBy("start_time DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []session.Data
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var d session.Data
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			s.log.Warn().Err(err).Msg("skipping malformed session row")
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvents(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	insert := sqlBuilder.Insert("events").Columns("timestamp", "session_id", "user_id", "event_type", "event_data")
	for _, e := range batch {
		var data any
		if e.EventData != nil {
			b, err := json.Marshal(e.EventData)
			if err != nil {
				return fmt.Errorf("marshal event data: %w", err)
			}
			data = string(b)
		}
		insert = insert.Values(formatTime(e.Timestamp), e.SessionID, e.UserID, e.EventType, data)
	}

	return s.tx(ctx, func(tx *sql.Tx) error {
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}

		keep := sqlBuilder.Select("id").From("events").OrderBy("id DESC").Limit(uint64(s.retention))
		keepSQL, keepArgs, err := keep.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		trim, trimArgs, err := sqlBuilder.Delete("events").Where("id NOT IN ("+keepSQL+")", keepArgs...).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, trim, trimArgs...); err != nil {
			return fmt.Errorf("trim events: %w", err)
		}
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context, q ingest.EventQuery) ([]events.Event, error) {
	query := sqlBuilder.Select("timestamp", "session_id", "user_id", "event_type", "event_data").
		From("events").
		OrderBy("id DESC")

	if q.SessionID != "" {
		query = query.Where(sq.Eq{"session_id": q.SessionID})
	}
	if q.EventType != "" {
		query = query.Where(sq.Eq{"event_type": q.EventType})
	}
	if !q.Since.IsZero() {
		query = query.Where(sq.Gt{"timestamp": formatTime(q.Since)})
	}
	if q.Limit > 0 {
		query = query.Limit(uint64(q.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []events.Event
	for rows.Next() {
		var (
			ts     string
			e      events.Event
			userID sql.NullString
			data   sql.NullString
		)
		if err := rows.Scan(&ts, &e.SessionID, &userID, &e.EventType, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		if userID.Valid {
			u := userID.String
			e.UserID = &u
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &e.EventData); err != nil {
				s.log.Warn().Err(err).Msg("dropping malformed event data")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetProgress(ctx context.Context, key ingest.ProgressKey) (ingest.ProgressRecord, error) {
	return s.getProgress(ctx, s.db, key)
}

func (s *Store) UpdateProgress(ctx context.Context, userID string, u content.ProgressUpdate) (ingest.ProgressRecord, error) {
	key := ingest.ProgressKey{UserID: userID, ContentID: u.ContentID, ContentType: u.ContentType}

	var rec ingest.ProgressRecord
	err := s.tx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getProgress(ctx, tx, key)
		if err != nil {
			return err
		}
		rec = cur.Apply(u, s.now())

		query, args, err := sqlBuilder.Insert("progress").
			Columns("user_id", "content_id", "content_type", "attempts", "completed", "score", "time_spent", "updated_at").
			Values(rec.UserID, rec.ContentID, string(rec.ContentType), rec.Attempts, rec.Completed, rec.Score, rec.TimeSpent, formatTime(rec.UpdatedAt)).
			Suffix("ON CONFLICT(user_id, content_id, content_type) DO UPDATE SET attempts = excluded.attempts, completed = excluded.completed, score = excluded.score, time_spent = excluded.time_spent, updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
	return rec, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getProgress returns a zero record with no attempts for unknown keys.
func (s *Store) getProgress(ctx context.Context, db queryRower, key ingest.ProgressKey) (ingest.ProgressRecord, error) {
	query, args, err := sqlBuilder.Select("attempts", "completed", "score", "time_spent", "updated_at").
		From("progress").
		Where(sq.Eq{"user_id": key.UserID, "content_id": key.ContentID, "content_type": string(key.ContentType)}).
		ToSql()
	if err != nil {
		return ingest.ProgressRecord{}, fmt.Errorf("build query: %w", err)
	}

	rec := ingest.ProgressRecord{ProgressKey: key}
	var (
		score   sql.NullFloat64
		updated string
	)
	err = db.QueryRowContext(ctx, query, args...).Scan(&rec.Attempts, &rec.Completed, &score, &rec.TimeSpent, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return ingest.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}

	if score.Valid {
		v := score.Float64
		rec.Score = &v
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return ingest.ProgressRecord{}, fmt.Errorf("parse progress timestamp: %w", err)
	}
	return rec, nil
}

var _ ingest.Store = (*Store)(nil)
