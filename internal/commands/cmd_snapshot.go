package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/printer"
	"github.com/hay-kot/studytrack/internal/report"
	"github.com/hay-kot/studytrack/internal/styles"
)

type SnapshotCmd struct {
	flags        *Flags
	format       string
	yes          bool
	collectorURL string
}

// NewSnapshotCmd creates a new snapshot command.
func NewSnapshotCmd(flags *Flags) *SnapshotCmd {
	return &SnapshotCmd{flags: flags}
}

// Register adds the snapshot commands to the application.
func (cmd *SnapshotCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "snapshot",
		Usage: "Inspect or manage the locally persisted session",
		Description: `The tracker persists the running session after every change. A snapshot
left behind by a process that exited without syncing is forwarded to the
collector on the next start; these commands handle it by hand.`,
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the local session snapshot",
				UsageText: "studytrack snapshot show [options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.runShow,
			},
			{
				Name:      "clear",
				Usage:     "Delete the local session snapshot",
				UsageText: "studytrack snapshot clear [--yes]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "yes",
						Aliases:     []string{"y"},
						Usage:       "skip the confirmation prompt",
						Destination: &cmd.yes,
					},
				},
				Action: cmd.runClear,
			},
			{
				Name:      "flush",
				Usage:     "Send the local snapshot to the collector and clear it",
				UsageText: "studytrack snapshot flush [options]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "collector",
						Usage:       "collector URL (overrides collector.url)",
						Destination: &cmd.collectorURL,
					},
				},
				Action: cmd.runFlush,
			},
		},
	})

	return app
}

func (cmd *SnapshotCmd) runShow(ctx context.Context, c *cli.Command) error {
	d, ok, err := cmd.load(ctx)
	if err != nil || !ok {
		return err
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	return writeMarkdown(c.Root().Writer, report.Session(d))
}

func (cmd *SnapshotCmd) runClear(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)
	store := cmd.flags.SnapshotStore()

	d, err := session.LoadSnapshot(ctx, store)
	switch {
	case errors.Is(err, session.ErrNoSnapshot):
		p.Infof("No local session snapshot")
		return nil
	case errors.Is(err, session.ErrCorruptSnapshot):
		d = session.Data{SessionID: "(corrupt)"}
	case err != nil:
		return err
	}

	if !cmd.yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to clear without confirmation (stdin is not a terminal); pass --yes")
		}

		confirmed := false
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("Clear snapshot for session %s?", d.SessionID)).
			Description("Unsynced navigation and interactions in it will be lost.").
			Affirmative("Clear").
			Negative("Cancel").
			Value(&confirmed)

		if err := huh.NewForm(huh.NewGroup(confirm)).WithTheme(styles.FormTheme()).Run(); err != nil {
			return err
		}
		if !confirmed {
			p.Infof("Cancelled")
			return nil
		}
	}

	if err := session.ClearSnapshot(ctx, store); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	p.Successf("Cleared snapshot for session %s", d.SessionID)
	return nil
}

func (cmd *SnapshotCmd) runFlush(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)

	d, ok, err := cmd.load(ctx)
	if err != nil || !ok {
		return err
	}

	client := cmd.flags.CollectorClient(cmd.collectorURL)
	if !client.Enabled() {
		return fmt.Errorf("no collector configured; set collector.url or pass --collector")
	}

	// a flushed snapshot is a finished session
	if d.EndTime == nil {
		end := d.StartTime.Add(time.Duration(d.Duration * float64(time.Second)))
		d.EndTime = &end
	}

	if err := client.SyncSession(ctx, d); err != nil {
		return fmt.Errorf("sync session: %w", err)
	}
	if err := session.ClearSnapshot(ctx, cmd.flags.SnapshotStore()); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	p.Successf("Sent session %s to %s", d.SessionID, client.BaseURL())
	return nil
}

// load reads the snapshot. ok is false when there is none, after telling
// the user so.
func (cmd *SnapshotCmd) load(ctx context.Context) (session.Data, bool, error) {
	d, err := session.LoadSnapshot(ctx, cmd.flags.SnapshotStore())
	if errors.Is(err, session.ErrNoSnapshot) {
		printer.Ctx(ctx).Infof("No local session snapshot")
		return session.Data{}, false, nil
	}
	if err != nil {
		return session.Data{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	return d, true, nil
}
