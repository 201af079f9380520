package commands

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/commands/doctor"
	"github.com/hay-kot/studytrack/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your studytrack setup",
		UsageText:   "studytrack doctor [options]",
		Description: "Checks configuration, the local session snapshot, and collector reachability.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "clear corrupt or stale session snapshots",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	rep := doctor.Run(ctx,
		doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath),
		doctor.NewSnapshotCheck(cmd.flags.SnapshotStore(), cfg.Session.OrphanMaxAge, cmd.fix),
		doctor.NewCollectorCheck(cmd.flags.CollectorClient(""), cfg.Collector.Timeout),
	)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		cmd.outputText(ctx, rep)
	}

	if !rep.Healthy {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *DoctorCmd) outputText(ctx context.Context, rep doctor.Report) {
	p := printer.Ctx(ctx)

	for _, result := range rep.Checks {
		p.Section(result.Name)

		for _, f := range result.Findings {
			switch f.Status {
			case doctor.StatusPass:
				p.CheckItem(f.Label, f.Detail)
			case doctor.StatusWarn:
				p.WarnItem(f.Label, f.Detail)
			case doctor.StatusFail:
				p.FailItem(f.Label, f.Detail)
			}
		}

		p.Printf("")
	}

	t := rep.Totals
	p.Printf("Summary: %d passed, %d warnings, %d failed", t.Passed, t.Warned, t.Failed)

	if t.Fixable > 0 && !cmd.fix {
		p.Infof("%d issue(s) can be fixed with 'studytrack doctor --fix'", t.Fixable)
	}
}
