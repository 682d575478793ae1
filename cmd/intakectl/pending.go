package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/loan-intake/internal/bootstrap"
	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/loan-intake/internal/infrastructure/repository/postgres"
)

var pendingCommand = &cli.Command{
	Name:  "pending",
	Usage: "List documents awaiting verification",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Write an .xlsx workbook instead of printing a table",
		},
	},
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

		pending, err := postgres.NewDocumentRecordRepository(db).ListPending(c.Context)
		if err != nil {
			return err
		}

		out := c.String("out")
		if out == "" {
			return printPending(pending)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := xlsx.WritePending(f, pending, time.Now().UTC()); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("pending_exported", "path", out, "count", len(pending))
		return nil
	},
}

func printPending(pending []domain.PendingDocument) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tLEAD\tAPPLICANT\tTYPE\tAI\tUPLOADED")
	for _, p := range pending {
		ai := "-"
		if p.Document.AIValidationStatus != nil {
			ai = string(*p.Document.AIValidationStatus)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Document.ID,
			p.LeadReference,
			p.ApplicantName,
			p.DocumentTypeName,
			ai,
			p.Document.UploadedAt.Format(time.RFC3339),
		)
	}
	return tw.Flush()
}
