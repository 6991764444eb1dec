/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"postrelay/config"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Interactively write a settings file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "postrelay.toml",
				Usage:   "Where to write the settings",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(ctx *cli.Context) error {
			output := ctx.String("output")
			if _, err := os.Stat(output); err == nil && !ctx.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite", output)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			s := config.Defaults()

			backend, err := prompt.New().Ask("Backend:").Choose([]string{config.BackendX, config.BackendBluesky})
			if err != nil {
				return err
			}
			s.Feed.Backend = backend

			placeholder := "nasa"
			if backend == config.BackendBluesky {
				placeholder = "nasa.bsky.social"
				s.Delivery.EmbedDomain = "bsky.app"
			}
			handle, err := prompt.New().Ask("Handle:").Input(placeholder)
			if err != nil {
				return err
			}
			s.Feed.Handle = handle

			if backend == config.BackendX {
				token, err := prompt.New().Ask("Bearer token:").Input("", input.WithEchoMode(input.EchoNone))
				if err != nil {
					return err
				}
				s.Feed.BearerToken = token
			}

			webhookURL, err := prompt.New().Ask("Webhook URL:").Input("")
			if err != nil {
				return err
			}
			s.Delivery.WebhookURL = webhookURL

			s.Normalize()
			if err := s.Validate(); err != nil {
				return err
			}
			if err := s.Write(output); err != nil {
				return err
			}
			fmt.Printf("Settings written to %s, start relaying with: postrelay -c %s run\n", output, output)
			return nil
		},
	}
}
