package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/collector"
)

type DocCmd struct {
	flags *Flags
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Reference documentation for collector integrations",
		Description: `Prints reference documentation for teams building their own collector.

Use 'studytrack doc protocol' for the HTTP and websocket contract.
Use 'studytrack doc events' for the catalogue of emitted event types.`,
		Commands: []*cli.Command{
			{
				Name:  "protocol",
				Usage: "Show the collector HTTP and websocket contract",
				Action: func(_ context.Context, c *cli.Command) error {
					return writeMarkdown(c.Root().Writer, protocolGuide(cmd.flags.Config.Collector.URL))
				},
			},
			{
				Name:  "events",
				Usage: "Show the event type catalogue",
				Action: func(_ context.Context, c *cli.Command) error {
					return writeMarkdown(c.Root().Writer, eventsGuide())
				},
			},
		},
	})
	return app
}

// endpoint documents one collector route.
type endpoint struct {
	Method string
	Path   string
	Body   string
	Reply  string
}

func endpoints() []endpoint {
	return []endpoint{
		{"POST", collector.PathSession, "session snapshot", "`{ok, sessionId}`"},
		{"POST", collector.PathInteractions, "`{events: [...]}`", "`{ok, received}`"},
		{"GET", collector.PathProgress + "?contentId=&contentType=", "", "progress record"},
		{"POST", collector.PathProgressUpdate, "progress update", "progress record"},
		{"GET", collector.PathStream, "", "websocket frames"},
		{"GET", collectd.PathSessions, "", "`{sessions: [...]}`"},
		{"GET", collectd.PathEvents + "?sessionId=&eventType=&since=&limit=", "", "`{events: [...]}`"},
		{"GET", collector.PathHealth, "", "`{status, subscribers}`"},
	}
}

func protocolGuide(baseURL string) string {
	var b strings.Builder

	b.WriteString("# Collector Protocol\n\n")
	if baseURL != "" {
		fmt.Fprintf(&b, "Configured collector: `%s`\n\n", baseURL)
	}
	b.WriteString(`All bodies are JSON. Timestamps are RFC 3339 strings and durations are
seconds as numbers. Progress requests carry the learner in the ` + "`" + collector.HeaderUserID + "`" + `
header; without it the learner is ` + "`anonymous`" + `.

## Endpoints

| Method | Path | Body | Reply |
|--------|------|------|-------|
`)
	for _, e := range endpoints() {
		body := e.Body
		if body == "" {
			body = "-"
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", e.Method, e.Path, body, e.Reply)
	}

	b.WriteString(`
## Status Codes

| Status | Meaning | Client behavior |
|--------|---------|-----------------|
| 2xx | accepted | batch or snapshot is done |
| 408, 429, 5xx | transient | retried with backoff, batch re-queued |
| other 4xx | rejected | batch discarded, logged |

Validation failures return 422 with ` + "`{error, fields: [{field, message}]}`" + `. One
invalid event rejects the whole batch.

## Stream Frames

The stream publishes one frame per accepted request:

` + "```json" + `
{"type": "events", "events": [{"timestamp": "...", "sessionId": "...", "eventType": "question_submit", "eventData": {}}]}
{"type": "session", "session": {"sessionId": "...", "duration": 120.5, "activeDuration": 90, "pageViews": 3, "interactions": 7, "engagementScore": 64}}
` + "```" + `

Slow subscribers drop frames rather than stall the collector.
`)

	return b.String()
}

// eventCatalogue lists every action per content type, in lifecycle order.
var eventCatalogue = []struct {
	ContentType string
	Actions     []string
}{
	{"question", []string{"view_start", "answer_change", "submit", "skip", "view_end"}},
	{"flashcard", []string{"view_start", "card_view", "card_flip", "card_confidence", "card_mark", "complete", "view_end"}},
	{"media", []string{"view_start", "play", "pause", "seek", "viewed", "completed", "ended", "error", "view_end"}},
}

func eventsGuide() string {
	var b strings.Builder

	b.WriteString(`# Event Types

Content interactions are sent as ` + "`<contentType>_<action>`" + `. Every event carries
` + "`contentType`" + ` and ` + "`contentId`" + ` in ` + "`eventData`" + `. Terminal actions
(` + "`submit`, `skip`, `complete`, `view_end`" + `) also carry ` + "`duration`" + ` and
` + "`activeTime`" + ` in seconds.

`)
	for _, c := range eventCatalogue {
		fmt.Fprintf(&b, "## %s\n\n", c.ContentType)
		for _, a := range c.Actions {
			fmt.Fprintf(&b, "- `%s_%s`\n", c.ContentType, a)
		}
		b.WriteString("\n")
	}

	return b.String()
}
