package content

import (
	"maps"
	"math"
	"time"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// MediaKind selects the viewed/completed thresholds.
type MediaKind string

const (
	MediaShort MediaKind = "short"
	MediaVideo MediaKind = "video"
)

// Thresholds decide when media counts as viewed and completed.
type Thresholds struct {
	MinWatch   time.Duration `yaml:"min_watch"`
	Completion float64       `yaml:"completion"`
}

// DefaultThresholds are stricter for short-form media.
var DefaultThresholds = map[MediaKind]Thresholds{
	MediaShort: {MinWatch: 3 * time.Second, Completion: 0.9},
	MediaVideo: {MinWatch: 10 * time.Second, Completion: 0.8},
}

const (
	// ChunkSize is the granularity of the watched-segment map, in seconds.
	ChunkSize = 5.0
	// replayWindow is how close to the start a play must be to count as a replay.
	replayWindow = 5.0
)

// PlaybackEventType identifies a playback event.
type PlaybackEventType string

const (
	PlaybackPlay  PlaybackEventType = "play"
	PlaybackPause PlaybackEventType = "pause"
	PlaybackSeek  PlaybackEventType = "seek"
	PlaybackEnded PlaybackEventType = "ended"
	PlaybackError PlaybackEventType = "error"
)

// PlaybackEvent is one entry of the playback log. Position and ElapsedTime
// are in seconds.
type PlaybackEvent struct {
	Type        PlaybackEventType `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Position    float64           `json:"position"`
	ElapsedTime float64           `json:"elapsedTime"`
	Error       string            `json:"error,omitempty"`
}

// SeekEvent records a jump in the timeline.
type SeekEvent struct {
	Timestamp time.Time `json:"timestamp"`
	From      float64   `json:"from"`
	To        float64   `json:"to"`
	Direction string    `json:"direction"`
	Magnitude float64   `json:"magnitude"`
}

// MediaMetrics summarizes one media view. Times are in seconds.
type MediaMetrics struct {
	MediaID              string          `json:"mediaId"`
	Kind                 MediaKind       `json:"kind"`
	Duration             float64         `json:"duration"`
	AttemptNumber        int             `json:"attemptNumber"`
	StartTime            time.Time       `json:"startTime"`
	EndTime              *time.Time      `json:"endTime,omitempty"`
	TotalTime            float64         `json:"totalTime"`
	ActiveTime           float64         `json:"activeTime"`
	WatchTime            float64         `json:"watchTime"`
	Position             float64         `json:"position"`
	PlaybackEvents       []PlaybackEvent `json:"playbackEvents"`
	SeekEvents           []SeekEvent     `json:"seekEvents"`
	PlayCount            int             `json:"playCount"`
	PauseCount           int             `json:"pauseCount"`
	ReplayCount          int             `json:"replayCount"`
	WatchedChunks        map[int]int     `json:"watchedChunks"`
	CompletionPercentage float64         `json:"completionPercentage"`
	Viewed               bool            `json:"viewed"`
	Completed            bool            `json:"completed"`
	EngagementScore      int             `json:"engagementScore"`
}

// MediaHandlers are the callbacks a media player exposes. Positions are in
// seconds.
type MediaHandlers struct {
	OnPlay       func(position float64)
	OnPause      func(position float64)
	OnSeek       func(to float64)
	OnTimeUpdate func(position float64)
	OnEnded      func()
	OnError      func(err error)
}

// MediaOptions configures a Media tracker.
type MediaOptions struct {
	MediaID string
	Kind    MediaKind
	// Duration of the media in seconds; may be set later with SetDuration.
	Duration float64
	// Thresholds override the defaults for Kind.
	Thresholds *Thresholds
	// OnComplete fires exactly once, on unmount.
	OnComplete func(MediaMetrics)
}

// Media tracks one media view. The timer starts on the first play.
type Media struct {
	*base
	onComplete func(MediaMetrics)
	kind       MediaKind
	thresholds Thresholds

	duration   float64
	position   float64
	playing    bool
	hasPlayed  bool
	chunk      int
	watchTime  float64
	events     []PlaybackEvent
	seeks      []SeekEvent
	plays      int
	pauses     int
	replays    int
	chunks     map[int]int
	viewedSent bool
	doneSent   bool
	final      *MediaMetrics
}

// NewMedia creates a media tracker. Call Mount when the player is shown.
func NewMedia(deps Deps, opts MediaOptions) (*Media, error) {
	b, err := newBase(deps, engagement.ContentMedia, opts.MediaID, false)
	if err != nil {
		return nil, err
	}

	kind := opts.Kind
	if kind == "" {
		kind = MediaVideo
	}
	th, ok := DefaultThresholds[kind]
	if !ok {
		th = DefaultThresholds[MediaVideo]
	}
	if opts.Thresholds != nil {
		th = *opts.Thresholds
	}

	return &Media{
		base:       b,
		onComplete: opts.OnComplete,
		kind:       kind,
		thresholds: th,
		duration:   opts.Duration,
		chunk:      -1,
		chunks:     make(map[int]int),
	}, nil
}

// Mount emits view_start. Timing begins on the first play.
func (m *Media) Mount() { m.mount() }

// Wrap returns handlers that record tracking side effects and then forward
// to h.
func (m *Media) Wrap(h MediaHandlers) MediaHandlers {
	return MediaHandlers{
		OnPlay: func(pos float64) {
			m.Play(pos)
			if h.OnPlay != nil {
				h.OnPlay(pos)
			}
		},
		OnPause: func(pos float64) {
			m.Pause(pos)
			if h.OnPause != nil {
				h.OnPause(pos)
			}
		},
		OnSeek: func(to float64) {
			m.Seek(to)
			if h.OnSeek != nil {
				h.OnSeek(to)
			}
		},
		OnTimeUpdate: func(pos float64) {
			m.TimeUpdate(pos)
			if h.OnTimeUpdate != nil {
				h.OnTimeUpdate(pos)
			}
		},
		OnEnded: func() {
			m.Ended()
			if h.OnEnded != nil {
				h.OnEnded()
			}
		},
		OnError: func(err error) {
			m.Error(err)
			if h.OnError != nil {
				h.OnError(err)
			}
		},
	}
}

// SetDuration sets the media length in seconds once the player knows it.
func (m *Media) SetDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds > 0 {
		m.duration = seconds
	}
}

// Play starts playback at pos. A play near the start after an earlier play
// counts as a replay.
func (m *Media) Play(pos float64) {
	if !m.timer.Running() && !m.isFinalized() {
		if err := m.timer.Start(); err != nil {
			m.log.Error().Err(err).Msg("failed to start timer")
		}
	}

	now := m.deps.Clock.Now()
	elapsed := m.elapsed(now)

	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	pos = m.clampLocked(pos)
	replay := m.hasPlayed && pos < replayWindow
	if replay {
		m.replays++
	}
	m.plays++
	m.hasPlayed = true
	m.playing = true
	m.position = pos
	m.chunk = -1
	m.events = append(m.events, PlaybackEvent{Type: PlaybackPlay, Timestamp: now, Position: pos, ElapsedTime: elapsed})
	m.mu.Unlock()

	m.record("play", map[string]any{"position": pos, "replay": replay}, nil)
}

// Pause stops playback at pos, crediting any playback up to pos.
func (m *Media) Pause(pos float64) {
	now := m.deps.Clock.Now()
	elapsed := m.elapsed(now)

	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	m.advanceLocked(pos)
	m.playing = false
	m.pauses++
	m.events = append(m.events, PlaybackEvent{Type: PlaybackPause, Timestamp: now, Position: pos, ElapsedTime: elapsed})
	actions := m.thresholdActionsLocked()
	m.mu.Unlock()

	m.record("pause", map[string]any{"position": pos}, nil)
	m.emit(actions)
}

// Seek jumps to a new position without crediting the skipped range.
func (m *Media) Seek(to float64) {
	now := m.deps.Clock.Now()
	elapsed := m.elapsed(now)

	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	to = m.clampLocked(to)
	from := m.position
	dir := "forward"
	if to < from {
		dir = "backward"
	}
	mag := math.Abs(to - from)
	m.seeks = append(m.seeks, SeekEvent{Timestamp: now, From: from, To: to, Direction: dir, Magnitude: mag})
	m.events = append(m.events, PlaybackEvent{Type: PlaybackSeek, Timestamp: now, Position: to, ElapsedTime: elapsed})
	m.position = to
	m.chunk = -1
	m.mu.Unlock()

	m.record("seek", map[string]any{"from": from, "to": to, "direction": dir, "magnitude": mag}, nil)
}

// TimeUpdate reports the playhead while playing. The range since the last
// update is credited to the watched-segment map.
func (m *Media) TimeUpdate(pos float64) {
	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	m.advanceLocked(pos)
	actions := m.thresholdActionsLocked()
	m.mu.Unlock()

	m.emit(actions)
}

// Ended records the end of playback.
func (m *Media) Ended() {
	now := m.deps.Clock.Now()
	elapsed := m.elapsed(now)

	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	end := m.position
	if m.duration > 0 {
		end = m.duration
	}
	m.advanceLocked(end)
	m.playing = false
	m.events = append(m.events, PlaybackEvent{Type: PlaybackEnded, Timestamp: now, Position: end, ElapsedTime: elapsed})
	actions := m.thresholdActionsLocked()
	m.mu.Unlock()

	m.record("ended", map[string]any{"position": end}, nil)
	m.emit(actions)
}

// Error records a playback error.
func (m *Media) Error(err error) {
	now := m.deps.Clock.Now()
	elapsed := m.elapsed(now)
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	m.playing = false
	m.events = append(m.events, PlaybackEvent{Type: PlaybackError, Timestamp: now, Position: m.position, ElapsedTime: elapsed, Error: msg})
	pos := m.position
	m.mu.Unlock()

	m.record("error", map[string]any{"position": pos, "error": msg}, nil)
}

// Unmount ends the view, emits view_end with the final metrics and fires
// OnComplete once.
func (m *Media) Unmount() {
	metrics, first := m.unmount()
	if !first {
		return
	}

	m.mu.Lock()
	final := m.metricsLocked(metrics)
	m.final = &final
	m.mu.Unlock()

	m.record("view_end", map[string]any{
		"completionPercentage": final.CompletionPercentage,
		"watchTime":            final.WatchTime,
		"viewed":               final.Viewed,
		"completed":            final.Completed,
		"replayCount":          final.ReplayCount,
	}, &metrics)
	if m.onComplete != nil {
		m.onComplete(final)
	}
}

// Metrics returns live metrics, or the frozen ones after unmount.
func (m *Media) Metrics() MediaMetrics {
	metrics := m.timer.Metrics()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.final != nil {
		return *m.final
	}
	return m.metricsLocked(metrics)
}

// Completion returns the fraction of unique seconds covered by watched
// chunks.
func (m *Media) Completion() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completionLocked()
}

// advanceLocked credits forward playback from the current position to pos.
// Caller must hold the lock.
func (m *Media) advanceLocked(pos float64) {
	pos = m.clampLocked(pos)
	from := m.clampLocked(m.position)
	m.position = pos
	if !m.playing || pos <= from {
		m.chunk = -1
		return
	}

	m.watchTime += pos - from
	first := int(math.Floor(from / ChunkSize))
	last := int(math.Ceil(pos/ChunkSize)) - 1
	for i := max(first, 0); i <= last; i++ {
		if i != m.chunk {
			m.chunks[i]++
			m.chunk = i
		}
	}
}

// clampLocked bounds a playhead position to [0, duration]. Without a known
// duration only the lower bound applies. Caller must hold the lock.
func (m *Media) clampLocked(pos float64) float64 {
	if pos < 0 || math.IsNaN(pos) {
		return 0
	}
	if m.duration > 0 && pos > m.duration {
		return m.duration
	}
	return pos
}

// completionLocked is unique chunk coverage over duration. Caller must hold
// the lock.
func (m *Media) completionLocked() float64 {
	if m.duration <= 0 {
		return 0
	}
	covered := 0.0
	for i := range m.chunks {
		start := float64(i) * ChunkSize
		if i < 0 || start >= m.duration {
			continue
		}
		covered += math.Min(ChunkSize, m.duration-start)
	}
	return math.Min(1, covered/m.duration)
}

type thresholdAction struct {
	action   string
	metadata map[string]any
}

// thresholdActionsLocked reports viewed/completed crossings, once each.
// Caller must hold the lock.
func (m *Media) thresholdActionsLocked() []thresholdAction {
	var out []thresholdAction
	if !m.viewedSent && m.watchTime >= m.thresholds.MinWatch.Seconds() {
		m.viewedSent = true
		out = append(out, thresholdAction{"viewed", map[string]any{"watchTime": m.watchTime}})
	}
	if c := m.completionLocked(); !m.doneSent && m.duration > 0 && c >= m.thresholds.Completion {
		m.doneSent = true
		out = append(out, thresholdAction{"completed", map[string]any{"completionPercentage": c * 100}})
	}
	return out
}

func (m *Media) emit(actions []thresholdAction) {
	for _, a := range actions {
		m.record(a.action, a.metadata, nil)
	}
}

// metricsLocked builds MediaMetrics. Caller must hold the lock.
func (m *Media) metricsLocked(metrics engagement.Metrics) MediaMetrics {
	completion := m.completionLocked()

	out := MediaMetrics{
		MediaID:              m.contentID,
		Kind:                 m.kind,
		Duration:             m.duration,
		AttemptNumber:        m.attempt,
		StartTime:            m.viewStart,
		TotalTime:            metrics.TotalTime,
		ActiveTime:           metrics.ActiveTime,
		WatchTime:            m.watchTime,
		Position:             m.position,
		PlaybackEvents:       append([]PlaybackEvent{}, m.events...),
		SeekEvents:           append([]SeekEvent{}, m.seeks...),
		PlayCount:            m.plays,
		PauseCount:           m.pauses,
		ReplayCount:          m.replays,
		WatchedChunks:        maps.Clone(m.chunks),
		CompletionPercentage: completion * 100,
		Viewed:               m.watchTime >= m.thresholds.MinWatch.Seconds(),
		Completed:            m.duration > 0 && completion >= m.thresholds.Completion,
		EngagementScore:      metrics.EngagementScore,
	}
	if m.endTime != nil {
		e := *m.endTime
		out.EndTime = &e
	}
	return out
}
