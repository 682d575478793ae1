package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/loan-intake/internal/bootstrap"
	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/usecase"
	"github.com/kirillkom/loan-intake/internal/infrastructure/repository/postgres"
)

var activityCommand = &cli.Command{
	Name:  "activity",
	Usage: "Print the merged activity timeline",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "lead",
			Usage: "Restrict to one lead id",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of events",
			Value:   usecase.DefaultActivityLimit,
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

		feed := usecase.NewActivityUseCase(
			postgres.NewStatusHistoryRepository(db),
			postgres.NewDocumentRecordRepository(db),
			postgres.NewActorDirectory(db),
			logger,
			usecase.ActivityOptions{DefaultLimit: cfg.ActivityDefaultLimit},
		)
		events, err := feed.Recent(c.Context, domain.ActivityQuery{
			LeadID: c.String("lead"),
			Limit:  c.Int("limit"),
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tTYPE\tLEAD\tACTOR\tDETAILS")
		for _, ev := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n",
				ev.Timestamp.Format(time.RFC3339),
				ev.Type,
				ev.LeadID,
				ev.Actor,
				ev.Payload,
			)
		}
		return tw.Flush()
	},
}
