package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/printer"
	"github.com/hay-kot/studytrack/internal/report"
)

type ReportCmd struct {
	flags     *Flags
	sessionID string
	store     string
}

// NewReportCmd creates a new report command.
func NewReportCmd(flags *Flags) *ReportCmd {
	return &ReportCmd{flags: flags}
}

// Register adds the report command to the application.
func (cmd *ReportCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "report",
		Usage:     "Summarize a tracked session",
		UsageText: "studytrack report [options]",
		Description: `Renders a session as markdown: timing, engagement, navigation and
interactions. Without --session the local snapshot is reported; with it the
session is read from the reference collector's store.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "session",
				Aliases:     []string{"s"},
				Usage:       "session id to read from the collector store",
				Destination: &cmd.sessionID,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "collector storage backend (jsonfile, sqlite)",
				Destination: &cmd.store,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ReportCmd) run(ctx context.Context, c *cli.Command) error {
	d, err := cmd.load(ctx)
	if errors.Is(err, session.ErrNoSnapshot) {
		printer.Ctx(ctx).Infof("No local session snapshot")
		return nil
	}
	if err != nil {
		return err
	}

	return writeMarkdown(c.Root().Writer, report.Session(d))
}

func (cmd *ReportCmd) load(ctx context.Context) (session.Data, error) {
	if cmd.sessionID == "" {
		return session.LoadSnapshot(ctx, cmd.flags.SnapshotStore())
	}

	store, err := cmd.flags.OpenIngestStore(cmd.store)
	if err != nil {
		return session.Data{}, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	d, err := store.GetSession(ctx, cmd.sessionID)
	if errors.Is(err, ingest.ErrNotFound) {
		return session.Data{}, fmt.Errorf("session %q not found", cmd.sessionID)
	}
	return d, err
}
