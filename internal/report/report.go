// Package report renders tracked sessions and content metrics as markdown.
package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// Content groups per-item metrics by tracker kind, keyed by content id.
type Content struct {
	Questions  map[string]content.QuestionMetrics
	Flashcards map[string]content.FlashcardMetrics
	Media      map[string]content.MediaMetrics
}

// Session renders a session snapshot.
func Session(d session.Data) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session `%s`\n\n", d.SessionID)

	user := "anonymous"
	if d.UserID != nil {
		user = *d.UserID
	}
	state := "open"
	if d.EndTime != nil {
		state = "ended " + d.EndTime.Format(time.DateTime)
	}

	m := d.EngagementMetrics
	b.WriteString("| | |\n| --- | --- |\n")
	row(&b, "User", user)
	row(&b, "Started", d.StartTime.Format(time.DateTime))
	row(&b, "State", state)
	row(&b, "Duration", Seconds(d.Duration))
	row(&b, "Active", fmt.Sprintf("%s (%s)", Seconds(d.ActiveDuration), percent(d.ActiveDuration, d.Duration)))
	row(&b, "Idle periods", fmt.Sprintf("%d, longest %s", len(m.IdlePeriods), Seconds(m.LongestIdlePeriod)))
	row(&b, "Engagement score", fmt.Sprintf("%d/100", m.EngagementScore))
	row(&b, "Device", strings.TrimSpace(d.DeviceInfo.Platform+"/"+d.DeviceInfo.Arch+" "+d.DeviceInfo.Timezone))
	b.WriteString("\n")

	if len(d.NavigationPath) > 0 {
		b.WriteString("## Navigation\n\n")
		b.WriteString("| At | URL | Content |\n| --- | --- | --- |\n")
		for _, nav := range d.NavigationPath {
			fmt.Fprintf(&b, "| +%s | %s | %s |\n",
				Seconds(nav.Timestamp.Sub(d.StartTime).Seconds()),
				escape(nav.URL),
				contentLabel(nav.ContentType, nav.ContentID),
			)
		}
		b.WriteString("\n")
	}

	if len(d.ContentInteractions) > 0 {
		b.WriteString("## Interactions\n\n")
		b.WriteString("| Content | Action | Count |\n| --- | --- | --- |\n")
		for _, c := range countInteractions(d.ContentInteractions) {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", contentLabel(c.contentType, c.contentID), c.action, c.count)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Metrics renders per-item content metrics. Empty groups are omitted.
func Metrics(c Content) string {
	var b strings.Builder

	if len(c.Questions) > 0 {
		b.WriteString("## Questions\n\n")
		b.WriteString("| Question | Attempt | Time | Active | Changes | Result | Score |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, id := range slices.Sorted(maps.Keys(c.Questions)) {
			q := c.Questions[id]
			result := "open"
			switch {
			case q.Skipped:
				result = "skipped"
			case q.IsCorrect != nil && *q.IsCorrect:
				result = "correct"
			case q.IsCorrect != nil:
				result = "incorrect"
			}
			score := "-"
			if q.Score != nil {
				score = fmt.Sprintf("%g", *q.Score)
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %d | %s | %s |\n",
				escape(id), q.AttemptNumber, Seconds(q.TotalTime), Seconds(q.ActiveTime),
				q.AnswerChangeCount, result, score)
		}
		b.WriteString("\n")
	}

	if len(c.Flashcards) > 0 {
		b.WriteString("## Flashcards\n\n")
		b.WriteString("| Deck | Cards | Flips | Pattern | Time | Completed |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
		for _, id := range slices.Sorted(maps.Keys(c.Flashcards)) {
			f := c.Flashcards[id]
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s |\n",
				escape(id), f.CardsViewed, f.TotalFlips, f.SessionPattern,
				Seconds(f.TotalTime), yesNo(f.Completed))
		}
		b.WriteString("\n")
	}

	if len(c.Media) > 0 {
		b.WriteString("## Media\n\n")
		b.WriteString("| Media | Kind | Watched | Coverage | Plays | Viewed | Completed |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, id := range slices.Sorted(maps.Keys(c.Media)) {
			m := c.Media[id]
			fmt.Fprintf(&b, "| %s | %s | %s | %.0f%% | %d | %s | %s |\n",
				escape(id), m.Kind, Seconds(m.WatchTime), m.CompletionPercentage,
				m.PlayCount, yesNo(m.Viewed), yesNo(m.Completed))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Seconds formats a duration given in seconds, rounded to the second.
func Seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}

type interactionCount struct {
	contentType engagement.ContentType
	contentID   string
	action      string
	count       int
}

// countInteractions groups interactions by content and action, in order of
// first appearance.
func countInteractions(in []session.ContentInteraction) []interactionCount {
	var out []interactionCount
	index := make(map[string]int)
	for _, ci := range in {
		k := string(ci.ContentType) + "\x00" + ci.ContentID + "\x00" + ci.Action
		if i, ok := index[k]; ok {
			out[i].count++
			continue
		}
		index[k] = len(out)
		out = append(out, interactionCount{ci.ContentType, ci.ContentID, ci.Action, 1})
	}
	return out
}

func row(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "| **%s** | %s |\n", k, escape(v))
}

func contentLabel(ct engagement.ContentType, id string) string {
	if ct == "" {
		return "-"
	}
	if id == "" {
		return string(ct)
	}
	return fmt.Sprintf("%s `%s`", ct, id)
}

func percent(part, whole float64) string {
	if whole <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", part/whole*100)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
