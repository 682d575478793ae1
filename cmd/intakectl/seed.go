package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/loan-intake/internal/bootstrap"
	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/loan-intake/internal/infrastructure/seed"
)

var seedTypesCommand = &cli.Command{
	Name:  "seed-types",
	Usage: "Upsert document types from YAML",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "YAML catalogue; the built-in catalogue is used when empty",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Validate the catalogue without touching the database",
		},
	},
	Action: func(c *cli.Context) error {
		logger := commandLogger(c)

		types, err := readDocumentTypes(c.String("file"))
		if err != nil {
			return err
		}
		if c.Bool("dry-run") {
			logger.Info("document_types_valid", "count", len(types))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := bootstrap.OpenDatabase(c.Context, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := seed.SyncDocumentTypes(c.Context, postgres.NewDocumentTypeRepository(db), types)
		if err != nil {
			return err
		}
		logger.Info("document_types_seeded", "count", n)
		return nil
	},
}

func readDocumentTypes(path string) ([]domain.DocumentType, error) {
	if path == "" {
		return seed.DefaultDocumentTypes()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return seed.LoadDocumentTypes(f)
}
