package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/printer"
	"github.com/hay-kot/studytrack/internal/tui"
)

type WatchCmd struct {
	flags     *Flags
	collector string
	maxEvents int
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{
		flags: flags,
	}
}

// Flags returns the watch flags. They are registered on both the watch
// command and the root command, which runs watch by default. Local keeps the
// root copies from reaching subcommands that define their own --collector.
func (cmd *WatchCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "collector",
			Usage:       "collector base URL (defaults to collector.url from config)",
			Sources:     cli.EnvVars("STUDYTRACK_COLLECTOR"),
			Local:       true,
			Destination: &cmd.collector,
		},
		&cli.IntFlag{
			Name:        "max-events",
			Usage:       "events kept in the dashboard",
			Value:       tui.DefaultMaxEvents,
			Local:       true,
			Destination: &cmd.maxEvents,
		},
	}
}

// Register adds the watch command to the application.
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Live dashboard of a collector's event stream",
		UsageText: "studytrack watch [options]",
		Description: `Connects to the collector's websocket stream and shows interaction
batches and session digests as they arrive. The connection is retried
until the dashboard exits.`,
		Flags:  cmd.Flags(),
		Action: cmd.run,
	})

	return app
}

// Run executes the dashboard. Exported for use as default command.
func (cmd *WatchCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *WatchCmd) run(ctx context.Context, _ *cli.Command) error {
	base := cmd.collector
	if base == "" {
		base = cmd.flags.Config.Collector.URL
	}
	if base == "" {
		return fmt.Errorf("no collector configured: set collector.url or pass --collector")
	}

	url, err := tui.StreamURL(base)
	if err != nil {
		return err
	}

	log := logger("watch")
	log.Debug().Str("url", url).Msg("starting dashboard")

	m := tui.New(tui.Options{URL: url, MaxEvents: cmd.maxEvents})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	final, err := p.Run()
	if fm, ok := final.(tui.Model); ok {
		fm.Close()
		if err == nil {
			printer.Ctx(ctx).Infof("%d event(s) received from %s", fm.Received(), base)
		}
	}
	if err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}

	return nil
}
