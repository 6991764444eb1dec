/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"postrelay/db"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the delivery journal",
		Description: `Removes journal entries older than the given number of days to keep
the database small. The cursor file is not touched.`,
		Flags: []cli.Flag{
			journalFlag(),
			&cli.IntFlag{
				Name:    "days",
				Value:   90,
				Usage:   "Keep entries delivered within this many days",
				EnvVars: []string{"POSTRELAY_TIDY_DAYS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			days := ctx.Int("days")
			if days < 1 {
				return fmt.Errorf("days must be positive, got %d", days)
			}

			journal, err := db.Open(ctx.String("journal"))
			if err != nil {
				return err
			}
			defer journal.Close()

			removed, err := journal.Tidy(ctx.Context, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			log.WithField("removed", removed).Info("Journal tidied")
			return nil
		},
	}
}
