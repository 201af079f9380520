package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/printer"
	"github.com/hay-kot/studytrack/internal/replay"
	"github.com/hay-kot/studytrack/internal/report"
)

type ReplayCmd struct {
	flags        *Flags
	format       string
	collectorURL string
}

// NewReplayCmd creates a new replay command.
func NewReplayCmd(flags *Flags) *ReplayCmd {
	return &ReplayCmd{flags: flags}
}

// Register adds the replay command to the application.
func (cmd *ReplayCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "replay",
		Usage:     "Drive the tracker from a scripted scenario",
		UsageText: "studytrack replay [options] <script.yaml>",
		Description: `Plays a YAML script of navigation, input and content steps against a fresh
tracking session on a simulated clock, then prints the resulting session data.

Without a collector the session stays local and the undelivered events are
listed. With --collector (or collector.url) events and the session snapshot
are delivered as they would be from a live client.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.StringFlag{
				Name:        "collector",
				Usage:       "collector URL (overrides collector.url)",
				Destination: &cmd.collectorURL,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ReplayCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("script path required")
	}

	script, err := replay.Load(c.Args().First())
	if err != nil {
		return err
	}

	cfg := *cmd.flags.Config
	if cmd.collectorURL != "" {
		cfg.Collector.URL = cmd.collectorURL
	}

	res, err := replay.Run(ctx, script, replay.Options{
		Config: &cfg,
		Logger: logger("replay"),
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	md := report.Session(res.Session) + report.Metrics(report.Content{
		Questions:  res.Questions,
		Flashcards: res.Flashcards,
		Media:      res.Media,
	})
	if err := writeMarkdown(c.Root().Writer, md); err != nil {
		return err
	}

	p := printer.Ctx(ctx)
	name := res.Name
	if name == "" {
		name = c.Args().First()
	}
	switch {
	case cfg.Collector.URL != "":
		p.Successf("replayed %s to %s", name, cfg.Collector.URL)
	case len(res.Pending) > 0:
		p.Successf("replayed %s", name)
		p.Infof("%d event(s) pending, no collector configured", len(res.Pending))
	default:
		p.Successf("replayed %s", name)
	}
	if res.Dropped > 0 {
		p.Warnf("%d event(s) dropped from a full buffer", res.Dropped)
	}

	return nil
}
