package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
	strict bool
}

func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Inspect the tracking configuration",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate the tracking configuration",
				UsageText:   "studytrack config validate [--strict] [--format json]",
				Description: "Reports whether events and sessions go to a collector or stay local, then checks collector settings, route patterns, and media thresholds.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
					&cli.BoolFlag{
						Name:        "strict",
						Usage:       "treat warnings as errors",
						Destination: &cmd.strict,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type problem struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// configReport summarizes where tracking data goes and what is wrong with
// the configuration.
type configReport struct {
	Valid     bool                       `json:"valid"`
	Collector string                     `json:"collector,omitempty"`
	Offline   bool                       `json:"offline"`
	Routes    int                        `json:"routes"`
	Errors    []problem                  `json:"errors,omitempty"`
	Warnings  []config.ValidationWarning `json:"warnings,omitempty"`
}

func (cmd *ConfigValidateCmd) check() (configReport, error) {
	cfg := cmd.flags.Config
	if cfg == nil {
		return configReport{}, errors.New("configuration not loaded")
	}

	rep := configReport{
		Collector: cfg.Collector.URL,
		Offline:   cfg.Collector.URL == "",
		Routes:    len(cfg.Routes),
		Warnings:  cfg.Warnings(),
	}

	if err := cfg.ValidateDeep(cmd.flags.ConfigPath); err != nil {
		var fieldErrs criterio.FieldErrors
		if !errors.As(err, &fieldErrs) {
			fieldErrs = criterio.FieldErrors{{Err: err}}
		}
		for _, fe := range fieldErrs {
			rep.Errors = append(rep.Errors, problem{Field: fe.Field, Message: fe.Err.Error()})
		}
	}

	rep.Valid = len(rep.Errors) == 0 && (!cmd.strict || len(rep.Warnings) == 0)
	return rep, nil
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	rep, err := cmd.check()
	if err != nil {
		return err
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		cmd.outputText(printer.Ctx(ctx), rep)
	}

	if !rep.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *ConfigValidateCmd) outputText(p *printer.Printer, rep configReport) {
	if rep.Offline {
		p.Printf("Mode: offline, sessions and events stay on this machine")
	} else {
		p.Printf("Mode: syncing to %s", rep.Collector)
	}
	p.Printf("Routes: %d content pattern(s)", rep.Routes)
	p.Printf("")

	if len(rep.Errors) > 0 {
		p.Section("Errors")
		for _, e := range rep.Errors {
			label := e.Field
			if label == "" {
				label = "config"
			}
			p.FailItem(label, e.Message)
		}
		p.Printf("")
	}

	if len(rep.Warnings) > 0 {
		p.Section("Warnings")
		for _, w := range rep.Warnings {
			label := w.Category
			if w.Item != "" {
				label += " (" + w.Item + ")"
			}
			p.WarnItem(label, w.Message)
		}
		p.Printf("")
	}

	summary := fmt.Sprintf("%d error(s), %d warning(s)", len(rep.Errors), len(rep.Warnings))
	switch {
	case rep.Valid:
		p.Successf("Configuration is valid (%s)", summary)
	case len(rep.Errors) == 0:
		p.Errorf("Warnings are errors in strict mode (%s)", summary)
	default:
		p.Errorf("Configuration is invalid (%s)", summary)
	}
}
