package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/storage"
	"github.com/hay-kot/studytrack/internal/tracking"
	"github.com/hay-kot/studytrack/pkg/randid"
)

// Options configures a replay run.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger
	// Storage holds the session snapshot. Defaults to an in-memory store so
	// replays never touch the real snapshot.
	Storage storage.Store
}

// Result is what a replay produced.
type Result struct {
	Name       string                               `json:"name,omitempty"`
	Session    session.Data                         `json:"session"`
	Questions  map[string]content.QuestionMetrics  `json:"questions,omitempty"`
	Flashcards map[string]content.FlashcardMetrics `json:"flashcards,omitempty"`
	Media      map[string]content.MediaMetrics     `json:"media,omitempty"`
	// Pending holds events that were not delivered to a collector.
	Pending []events.Event `json:"pending"`
	Dropped int            `json:"dropped"`
}

type runner struct {
	svc   *tracking.Service
	clock *clock.Manual
	tick  time.Duration
	log   zerolog.Logger

	questions  map[string]*content.Question
	flashcards map[string]*content.Flashcard
	media      map[string]*content.Media
}

// Run plays script against a fresh tracking service. Network work runs
// synchronously so the result is deterministic. Trackers still mounted at
// the end are unmounted before the session is shut down.
func Run(ctx context.Context, script *Script, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("replay: config is required")
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}

	start := script.Start
	if start.IsZero() {
		start = DefaultStart
	}
	c := clock.NewManual(start)

	sessionID := script.SessionID
	if sessionID == "" {
		sessionID = "replay-" + randid.Generate(8)
	}

	svc, err := tracking.New(ctx, tracking.Options{
		Config:  opts.Config,
		Logger:  opts.Logger,
		Clock:   c,
		Storage: opts.Storage,
		NewID:   func() string { return sessionID },
		Go:      func(fn func()) { fn() },
	})
	if err != nil {
		return nil, err
	}

	tick := opts.Config.Tracking.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	r := &runner{
		svc:        svc,
		clock:      c,
		tick:       tick,
		log:        opts.Logger.With().Str("component", "replay").Logger(),
		questions:  make(map[string]*content.Question),
		flashcards: make(map[string]*content.Flashcard),
		media:      make(map[string]*content.Media),
	}

	if script.User != "" {
		svc.SetUserID(script.User)
	}

	for i, st := range script.Steps {
		if err := ctx.Err(); err != nil {
			_ = svc.Shutdown(context.Background())
			return nil, err
		}
		if err := r.step(ctx, st); err != nil {
			_ = svc.Shutdown(context.Background())
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	return r.finish(ctx, script.Name)
}

func (r *runner) step(ctx context.Context, st Step) error {
	switch {
	case st.Wait > 0:
		r.wait(st.Wait)
	case st.Navigate != "":
		r.svc.Navigate(st.Navigate, "")
	case st.Input != "":
		r.svc.Record(st.Input, nil)
	case st.Visible != nil:
		r.svc.SetVisible(*st.Visible)
	case st.User != "":
		r.svc.SetUserID(st.User)
	case st.Hide:
		r.svc.Hide()
	case st.Flush:
		if err := r.svc.Flush(ctx); err != nil {
			r.log.Warn().Err(err).Msg("flush failed")
		}
	case st.Question != nil:
		return r.question(*st.Question)
	case st.Flashcard != nil:
		return r.flashcard(*st.Flashcard)
	case st.Media != nil:
		return r.mediaStep(*st.Media)
	}
	return nil
}

// wait advances the clock in tick steps, beating the pulse after each.
func (r *runner) wait(d time.Duration) {
	for d > 0 {
		step := min(r.tick, d)
		r.svc.Pulse().Beat(r.clock.Advance(step))
		d -= step
	}
}

func (r *runner) question(st QuestionStep) error {
	q, ok := r.questions[st.ID]
	if st.Action == "mount" {
		if ok {
			return fmt.Errorf("question %q already mounted", st.ID)
		}
		q, err := r.svc.NewQuestion(content.QuestionOptions{QuestionID: st.ID})
		if err != nil {
			return err
		}
		r.questions[st.ID] = q
		q.Mount()
		return nil
	}
	if !ok {
		return fmt.Errorf("question %q is not mounted", st.ID)
	}

	switch st.Action {
	case "answer":
		q.AnswerChange(st.Answer)
	case "mouse":
		q.MouseMove()
	case "submit":
		q.Submit(st.Correct, st.Score)
	case "skip":
		q.Skip()
	case "unmount":
		q.Unmount()
	}
	return nil
}

func (r *runner) flashcard(st FlashcardStep) error {
	f, ok := r.flashcards[st.Deck]
	if st.Action == "mount" {
		if ok {
			return fmt.Errorf("deck %q already mounted", st.Deck)
		}
		f, err := r.svc.NewFlashcard(content.FlashcardOptions{DeckID: st.Deck})
		if err != nil {
			return err
		}
		r.flashcards[st.Deck] = f
		f.Mount()
		return nil
	}
	if !ok {
		return fmt.Errorf("deck %q is not mounted", st.Deck)
	}

	switch st.Action {
	case "view":
		f.ViewCard(st.Card)
	case "flip":
		f.Flip(st.Card)
	case "rate":
		f.RateConfidence(st.Card, st.Rating)
	case "mark":
		f.Mark(st.Card, st.Marked)
	case "complete":
		f.Complete()
	case "unmount":
		f.Unmount()
	}
	return nil
}

func (r *runner) mediaStep(st MediaStep) error {
	m, ok := r.media[st.ID]
	if st.Action == "mount" {
		if ok {
			return fmt.Errorf("media %q already mounted", st.ID)
		}
		kind := st.Kind
		if kind == "" {
			kind = content.MediaVideo
		}
		m, err := r.svc.NewMedia(content.MediaOptions{MediaID: st.ID, Kind: kind, Duration: st.Duration})
		if err != nil {
			return err
		}
		r.media[st.ID] = m
		m.Mount()
		return nil
	}
	if !ok {
		return fmt.Errorf("media %q is not mounted", st.ID)
	}

	switch st.Action {
	case "duration":
		m.SetDuration(st.Duration)
	case "play":
		m.Play(st.Position)
	case "pause":
		m.Pause(st.Position)
	case "seek":
		m.Seek(st.Position)
	case "time":
		m.TimeUpdate(st.Position)
	case "ended":
		m.Ended()
	case "error":
		m.Error(errors.New(st.Error))
	case "unmount":
		m.Unmount()
	}
	return nil
}

func (r *runner) finish(ctx context.Context, name string) (*Result, error) {
	res := &Result{
		Name:       name,
		Questions:  make(map[string]content.QuestionMetrics, len(r.questions)),
		Flashcards: make(map[string]content.FlashcardMetrics, len(r.flashcards)),
		Media:      make(map[string]content.MediaMetrics, len(r.media)),
	}

	for id, q := range r.questions {
		q.Unmount()
		res.Questions[id] = q.Metrics()
	}
	for id, f := range r.flashcards {
		f.Unmount()
		res.Flashcards[id] = f.Metrics()
	}
	for id, m := range r.media {
		m.Unmount()
		res.Media[id] = m.Metrics()
	}

	b := r.svc.Batcher()
	if !r.svc.Client().Enabled() {
		res.Pending = b.Pending()
	}
	res.Dropped = b.Dropped()

	if err := r.svc.Shutdown(ctx); err != nil {
		return nil, err
	}
	res.Session = r.svc.Session().Data()
	if res.Pending == nil {
		res.Pending = []events.Event{}
	}
	return res, nil
}
