package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/loan-intake/internal/config"
	"github.com/kirillkom/loan-intake/internal/observability/logging"
)

func main() {
	app := &cli.App{
		Name:  "intakectl",
		Usage: "Administer the loan document intake database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			migrateCommand,
			seedTypesCommand,
			pendingCommand,
			activityCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("intakectl_failed", "error", err)
		os.Exit(1)
	}
}

func commandLogger(c *cli.Context) *slog.Logger {
	return logging.New("loan-intake-ctl", c.String("log-level"), "text")
}

// loadConfig skips config.Validate: admin commands only talk to Postgres and
// must not require storage settings.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if cfg.PostgresDSN == "" {
		return cfg, errors.New("POSTGRES_DSN is required")
	}
	return cfg, nil
}
