package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/printer"
	"github.com/hay-kot/studytrack/internal/report"
)

type LsCmd struct {
	flags  *Flags
	store  string
	format string
	limit  int
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "ls",
		Usage:       "List sessions received by the collector",
		UsageText:   "studytrack ls [options]",
		Description: "Displays a table of sessions stored by the reference collector, newest first.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "store",
				Usage:       "collector storage backend (jsonfile, sqlite)",
				Destination: &cmd.store,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum sessions to show (0 for all)",
				Value:       20,
				Destination: &cmd.limit,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	store, err := cmd.flags.OpenIngestStore(cmd.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if cmd.limit > 0 && len(sessions) > cmd.limit {
		sessions = sessions[:cmd.limit]
	}

	digests := make([]*collectd.SessionDigest, 0, len(sessions))
	for _, s := range sessions {
		digests = append(digests, collectd.Digest(s))
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(digests)
	}

	if len(digests) == 0 {
		p.Infof("No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tUSER\tSTARTED\tDURATION\tACTIVE\tPAGES\tINTERACTIONS\tSCORE\tSTATE")

	for _, d := range digests {
		user := "-"
		if d.UserID != nil {
			user = *d.UserID
		}
		state := "open"
		if d.EndTime != nil {
			state = "ended"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			d.SessionID,
			user,
			d.StartTime.Local().Format(time.DateTime),
			report.Seconds(d.Duration),
			report.Seconds(d.ActiveDuration),
			d.PageViews,
			d.Interactions,
			d.EngagementScore,
			state,
		)
	}

	return w.Flush()
}
