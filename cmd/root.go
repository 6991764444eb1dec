/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "postrelay",
		Usage: "Relay new posts from one social account to a chat webhook",
		Description: `Watches a single account on X or Bluesky and relays every new post,
		with a Traditional Chinese translation, to a Discord compatible webhook.

		The last delivered post id is kept in a state file so restarts never
		resend a post. Settings come from a TOML file, a .env file in the working
		directory and environment variables, e.g.:

		--handle => TARGET_USERNAME=nasa
		--webhook-url => DISCORD_WEBHOOK_URL=https://discord.com/api/webhooks/...
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML settings file",
				EnvVars: []string{"POSTRELAY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"POSTRELAY_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (text or json)",
				EnvVars: []string{"POSTRELAY_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx.String("log-level"), ctx.String("log-format"))
		},
		Commands: []*cli.Command{
			runCmd(),
			lookupCmd(),
			translateCmd(),
			historyCmd(),
			tidyCmd(),
			migrateCmd(),
			initCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute loads .env and runs the app with the process arguments
func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}

	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(level, format string) error {
	log.SetOutput(os.Stderr)

	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}
