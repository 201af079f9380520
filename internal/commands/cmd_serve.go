package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/printer"
)

type ServeCmd struct {
	flags   *Flags
	addr    string
	store   string
	origins []string
}

// NewServeCmd creates a new serve command.
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application.
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the reference tracking collector",
		UsageText: "studytrack serve [options]",
		Description: `Serves the tracking endpoints (session sync, interaction batches, user
progress) and a live websocket stream of everything received.

Data is stored under <data-dir>/collector as JSON files or a SQLite database.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to serve.addr)",
				Sources:     cli.EnvVars("STUDYTRACK_ADDR"),
				Destination: &cmd.addr,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "storage backend (jsonfile, sqlite)",
				Destination: &cmd.store,
			},
			&cli.StringSliceFlag{
				Name:        "origin",
				Usage:       "allowed CORS/websocket origin (repeatable, defaults to serve.allowed_origins)",
				Destination: &cmd.origins,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	p := printer.Ctx(ctx)

	addr := cmd.addr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	origins := cmd.origins
	if len(origins) == 0 {
		origins = cfg.Serve.AllowedOrigins
	}

	store, err := cmd.flags.OpenIngestStore(cmd.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	srv := collectd.New(collectd.Options{
		Store:          store,
		AllowedOrigins: origins,
		Logger:         logger("serve"),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.Infof("collector listening on http://%s", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	p.Successf("collector stopped")
	return nil
}
