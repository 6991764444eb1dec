/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"postrelay/cursor"
	"postrelay/db"
	"postrelay/relay"
	"postrelay/server"
	"postrelay/webhook"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Relay new posts to the webhook until interrupted",
		Description: `Resolves the watched account, loads its cursor and polls for new
posts, delivering them oldest first. The cursor is persisted after every
delivered post.

On the very first run only the newest post is recorded as a baseline unless
--catch-up is set. Interrupt with Ctrl-C to stop after the current post.`,
		Flags: relayFlags(),
		Action: func(ctx *cli.Context) error {
			s, err := loadSettings(ctx)
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}

			src, err := buildSource(s)
			if err != nil {
				return err
			}

			sender := webhook.NewSender(webhook.WithRateLimitFallback(s.RateLimitFallback()))
			opts := []relay.Option{}

			var journal server.HistoryReader
			if s.Journal.Path != "" {
				j, err := db.Open(s.Journal.Path)
				if err != nil {
					return err
				}
				defer j.Close()
				opts = append(opts, relay.WithJournal(j))
				journal = j
			}

			r := relay.New(relay.Config{
				Handle:            s.Feed.Handle,
				UserID:            s.Feed.UserID,
				WebhookURL:        s.Delivery.WebhookURL,
				PollInterval:      s.PollInterval(),
				Throttle:          s.Throttle(),
				MaxResults:        s.Feed.MaxResults,
				CatchUpOnFirstRun: s.Feed.CatchUpOnFirstRun,
			}, src, cursor.Open(s.Feed.StateFile), buildFormatter(s), sender, opts...)

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if s.Server.Addr != "" {
				app := server.Server(&server.ServerConfig{Relay: r, Journal: journal})
				go func() {
					log.WithField("addr", s.Server.Addr).Info("Starting status server")
					if err := app.Listen(s.Server.Addr); err != nil {
						log.WithField("error", err).Error("Status server stopped")
					}
				}()
				defer func() {
					if err := app.Shutdown(); err != nil {
						log.WithField("error", err).Warn("Failed to shut down status server")
					}
				}()
			}

			log.WithFields(log.Fields{
				"handle":  s.Feed.Handle,
				"backend": s.Feed.Backend,
				"fixture": s.Fixture.Mode,
			}).Info("Starting relay")
			return r.Run(runCtx)
		},
	}
}
