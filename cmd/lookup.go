/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

func lookupCmd() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Resolve a handle to the account id used in the state file",
		ArgsUsage: "<handle>",
		Flags:     relayFlags(),
		Action: func(ctx *cli.Context) error {
			s, err := loadSettings(ctx)
			if err != nil {
				return err
			}
			handle := ctx.Args().First()
			if handle == "" {
				handle = s.Feed.Handle
			}
			if handle == "" {
				return errors.New("please specify a handle")
			}

			src, err := buildSource(s)
			if err != nil {
				return err
			}
			id, err := src.LookupUser(ctx.Context, handle)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", handle, err)
			}
			fmt.Println(id)
			return nil
		},
	}
}
