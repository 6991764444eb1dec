/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"postrelay/db"

	"github.com/urfave/cli/v2"
)

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print the latest journaled deliveries",
		Description: `Prints deliveries recorded in the journal, newest first, one JSON
object per line. Use a tool like jq to process the output.`,
		Flags: []cli.Flag{
			journalFlag(),
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Only show deliveries for this account id",
				EnvVars: []string{"USER_ID"},
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Number of deliveries to print",
			},
		},
		Action: func(ctx *cli.Context) error {
			journal, err := db.Open(ctx.String("journal"))
			if err != nil {
				return err
			}
			defer journal.Close()

			deliveries, err := journal.History(ctx.Context, ctx.String("account"), ctx.Int("limit"))
			if err != nil {
				return err
			}
			for _, d := range deliveries {
				line, err := json.Marshal(d)
				if err != nil {
					return err
				}
				fmt.Println(string(line))
			}
			return nil
		},
	}
}

func journalFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "journal",
		Aliases: []string{"d"},
		Value:   "journal.db",
		Usage:   "SQLite journal file location",
		EnvVars: []string{"POSTRELAY_JOURNAL"},
	}
}
