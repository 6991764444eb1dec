/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"postrelay/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run journal migrations",
		Description: `Runs migrations on the delivery journal. Will create the database if it does not exist.`,
		Flags: []cli.Flag{
			journalFlag(),
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("journal")
			log.WithField("journal", database).Info("Database configured")
			return db.Migrate(database)
		},
	}
}
