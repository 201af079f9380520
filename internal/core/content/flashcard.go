package content

import (
	"time"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// Side is the visible face of a card.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Pattern characterizes how a user moved through a deck.
type Pattern string

const (
	PatternLinear Pattern = "linear"
	PatternReview Pattern = "review"
	PatternMixed  Pattern = "mixed"
)

const (
	linearMaxRevisited = 0.2
	reviewMinRevisited = 0.5
)

// CardFlip is one flip of a card.
type CardFlip struct {
	Timestamp          time.Time `json:"timestamp"`
	ToSide             Side      `json:"toSide"`
	TimeOnPreviousSide float64   `json:"timeOnPreviousSide"`
}

// CardMetrics are the per-card dwell and flip statistics. Times are in seconds.
type CardMetrics struct {
	CardID      string     `json:"cardId"`
	ViewCount   int        `json:"viewCount"`
	CurrentSide Side       `json:"currentSide"`
	TimeOnFront float64    `json:"timeOnFront"`
	TimeOnBack  float64    `json:"timeOnBack"`
	Flips       []CardFlip `json:"flips"`
	FirstViewed time.Time  `json:"firstViewed"`
	LastViewed  time.Time  `json:"lastViewed"`
	Confidence  *int       `json:"confidence,omitempty"`
	Marked      bool       `json:"marked"`
}

// FlashcardMetrics summarizes a deck study session.
type FlashcardMetrics struct {
	DeckID          string        `json:"deckId"`
	AttemptNumber   int           `json:"attemptNumber"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	TotalTime       float64       `json:"totalTime"`
	ActiveTime      float64       `json:"activeTime"`
	IdleTime        float64       `json:"idleTime"`
	Cards           []CardMetrics `json:"cards"`
	CardsViewed     int           `json:"cardsViewed"`
	TotalFlips      int           `json:"totalFlips"`
	SessionPattern  Pattern       `json:"sessionPattern"`
	Completed       bool          `json:"completed"`
	EngagementScore int           `json:"engagementScore"`
}

// FlashcardHandlers are the callbacks a flashcard deck component exposes.
type FlashcardHandlers struct {
	OnCardView   func(cardID string)
	OnFlip       func(cardID string)
	OnConfidence func(cardID string, rating int)
	OnMark       func(cardID string, marked bool)
	OnComplete   func()
}

// FlashcardOptions configures a Flashcard tracker.
type FlashcardOptions struct {
	DeckID string
	// OnComplete fires exactly once, on Complete or unmount.
	OnComplete func(FlashcardMetrics)
}

type cardState struct {
	metrics CardMetrics
	since   time.Time
}

// Flashcard tracks one deck study session.
type Flashcard struct {
	*base
	onComplete func(FlashcardMetrics)

	cards     map[string]*cardState
	order     []string
	current   string
	completed bool
	final     *FlashcardMetrics
}

// NewFlashcard creates a flashcard tracker. Call Mount when the deck is shown.
func NewFlashcard(deps Deps, opts FlashcardOptions) (*Flashcard, error) {
	b, err := newBase(deps, engagement.ContentFlashcard, opts.DeckID, true)
	if err != nil {
		return nil, err
	}
	return &Flashcard{
		base:       b,
		onComplete: opts.OnComplete,
		cards:      make(map[string]*cardState),
	}, nil
}

// Mount starts timing and emits view_start.
func (f *Flashcard) Mount() { f.mount() }

// Wrap returns handlers that record tracking side effects and then forward
// to h.
func (f *Flashcard) Wrap(h FlashcardHandlers) FlashcardHandlers {
	return FlashcardHandlers{
		OnCardView: func(cardID string) {
			f.ViewCard(cardID)
			if h.OnCardView != nil {
				h.OnCardView(cardID)
			}
		},
		OnFlip: func(cardID string) {
			f.Flip(cardID)
			if h.OnFlip != nil {
				h.OnFlip(cardID)
			}
		},
		OnConfidence: func(cardID string, rating int) {
			f.RateConfidence(cardID, rating)
			if h.OnConfidence != nil {
				h.OnConfidence(cardID, rating)
			}
		},
		OnMark: func(cardID string, marked bool) {
			f.Mark(cardID, marked)
			if h.OnMark != nil {
				h.OnMark(cardID, marked)
			}
		},
		OnComplete: func() {
			f.Complete()
			if h.OnComplete != nil {
				h.OnComplete()
			}
		},
	}
}

// ViewCard shows cardID front side up. Time on the previously shown card is
// credited to the side it was showing.
func (f *Flashcard) ViewCard(cardID string) {
	now := f.deps.Clock.Now()

	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return
	}
	f.creditCurrentLocked(now)

	c, ok := f.cards[cardID]
	if !ok {
		c = &cardState{metrics: CardMetrics{CardID: cardID, FirstViewed: now, Flips: []CardFlip{}}}
		f.cards[cardID] = c
		f.order = append(f.order, cardID)
	}
	c.metrics.ViewCount++
	c.metrics.CurrentSide = SideFront
	c.metrics.LastViewed = now
	c.since = now
	f.current = cardID
	views := c.metrics.ViewCount
	f.mu.Unlock()

	f.record("card_view", map[string]any{"cardId": cardID, "viewCount": views}, nil)
}

// Flip turns cardID over. The elapsed time is credited to the side shown
// before the flip. Flipping a card that is not current views it first.
func (f *Flashcard) Flip(cardID string) {
	f.mu.Lock()
	_, known := f.cards[cardID]
	isCurrent := f.current == cardID
	f.mu.Unlock()
	if !known || !isCurrent {
		f.ViewCard(cardID)
	}

	now := f.deps.Clock.Now()

	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return
	}
	c := f.cards[cardID]
	prev := c.metrics.CurrentSide
	dwell := creditSide(&c.metrics, prev, now.Sub(c.since))

	to := SideBack
	if prev == SideBack {
		to = SideFront
	}
	c.metrics.Flips = append(c.metrics.Flips, CardFlip{Timestamp: now, ToSide: to, TimeOnPreviousSide: dwell})
	c.metrics.CurrentSide = to
	c.since = now
	f.mu.Unlock()

	f.record("card_flip", map[string]any{"cardId": cardID, "toSide": string(to), "timeOnPreviousSide": dwell}, nil)
}

// RateConfidence records a confidence rating. Ratings are events only and
// do not affect the session pattern.
func (f *Flashcard) RateConfidence(cardID string, rating int) {
	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return
	}
	if c, ok := f.cards[cardID]; ok {
		r := rating
		c.metrics.Confidence = &r
	}
	f.mu.Unlock()

	f.record("card_confidence", map[string]any{"cardId": cardID, "rating": rating}, nil)
}

// Mark flags or unflags a card for later review.
func (f *Flashcard) Mark(cardID string, marked bool) {
	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return
	}
	if c, ok := f.cards[cardID]; ok {
		c.metrics.Marked = marked
	}
	f.mu.Unlock()

	f.record("card_mark", map[string]any{"cardId": cardID, "marked": marked}, nil)
}

// Complete finalizes the deck, posts a progress update and fires OnComplete.
func (f *Flashcard) Complete() {
	now := f.deps.Clock.Now()
	m, ok := f.finalize()
	if !ok {
		return
	}

	f.mu.Lock()
	f.creditCurrentLocked(now)
	f.completed = true
	final := f.metricsLocked(m, now)
	f.final = &final
	f.mu.Unlock()

	f.record("complete", map[string]any{
		"cardsViewed":    final.CardsViewed,
		"totalFlips":     final.TotalFlips,
		"sessionPattern": string(final.SessionPattern),
	}, &m)
	f.postProgress(true, nil, m.TotalTime)
	f.complete(final)
}

// Unmount ends the view, emitting view_end with partial metrics unless the
// deck was completed.
func (f *Flashcard) Unmount() {
	now := f.deps.Clock.Now()
	m, first := f.unmount()
	if !first {
		return
	}

	f.mu.Lock()
	f.creditCurrentLocked(now)
	partial := f.metricsLocked(m, now)
	f.final = &partial
	f.mu.Unlock()

	f.record("view_end", map[string]any{
		"completed":      false,
		"cardsViewed":    partial.CardsViewed,
		"totalFlips":     partial.TotalFlips,
		"sessionPattern": string(partial.SessionPattern),
	}, &m)
	f.complete(partial)
}

// Metrics returns live metrics, or the frozen ones once finalized. The
// current card's open dwell time is included.
func (f *Flashcard) Metrics() FlashcardMetrics {
	m := f.timer.Metrics()
	now := f.deps.Clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.final != nil {
		return *f.final
	}
	return f.metricsLocked(m, now)
}

// Card returns the metrics for one card.
func (f *Flashcard) Card(cardID string) (CardMetrics, bool) {
	for _, c := range f.Metrics().Cards {
		if c.CardID == cardID {
			return c, true
		}
	}
	return CardMetrics{}, false
}

func (f *Flashcard) complete(m FlashcardMetrics) {
	if f.onComplete != nil {
		f.onComplete(m)
	}
}

// creditCurrentLocked credits the open dwell on the current card. Caller
// must hold the lock.
func (f *Flashcard) creditCurrentLocked(now time.Time) {
	if f.current == "" {
		return
	}
	c := f.cards[f.current]
	creditSide(&c.metrics, c.metrics.CurrentSide, now.Sub(c.since))
	c.since = now
	f.current = ""
}

// metricsLocked builds FlashcardMetrics, including any open dwell as of now
// without mutating state. Caller must hold the lock.
func (f *Flashcard) metricsLocked(m engagement.Metrics, now time.Time) FlashcardMetrics {
	out := FlashcardMetrics{
		DeckID:          f.contentID,
		AttemptNumber:   f.attempt,
		StartTime:       f.viewStart,
		TotalTime:       m.TotalTime,
		ActiveTime:      m.ActiveTime,
		IdleTime:        m.IdleTime,
		Cards:           make([]CardMetrics, 0, len(f.order)),
		CardsViewed:     len(f.order),
		Completed:       f.completed,
		EngagementScore: m.EngagementScore,
	}
	if f.endTime != nil {
		e := *f.endTime
		out.EndTime = &e
	}

	revisited := 0
	for _, id := range f.order {
		c := f.cards[id]
		cm := c.metrics
		cm.Flips = append([]CardFlip{}, c.metrics.Flips...)
		if id == f.current {
			creditSide(&cm, cm.CurrentSide, now.Sub(c.since))
		}
		if cm.ViewCount > 1 {
			revisited++
		}
		out.TotalFlips += len(cm.Flips)
		out.Cards = append(out.Cards, cm)
	}
	out.SessionPattern = classifyPattern(revisited, len(f.order))
	return out
}

// creditSide adds d to the side's dwell total and returns it in seconds.
func creditSide(c *CardMetrics, side Side, d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	sec := d.Seconds()
	if side == SideBack {
		c.TimeOnBack += sec
	} else {
		c.TimeOnFront += sec
	}
	return sec
}

func classifyPattern(revisited, total int) Pattern {
	if total == 0 {
		return PatternLinear
	}
	ratio := float64(revisited) / float64(total)
	switch {
	case ratio < linearMaxRevisited:
		return PatternLinear
	case ratio > reviewMinRevisited:
		return PatternReview
	default:
		return PatternMixed
	}
}
