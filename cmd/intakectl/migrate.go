package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/loan-intake/internal/bootstrap"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply the database schema",
	Action: func(c *cli.Context) error {
		logger := commandLogger(c)
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		db, err := bootstrap.OpenDatabase(c.Context, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		logger.Info("schema_applied")
		return nil
	},
}
