/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"postrelay/config"

	"github.com/urfave/cli/v2"
)

// relayFlags mirror the historic environment surface. None carries a Value
// so that unset flags leave the TOML and built-in defaults alone.
func relayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "backend", Usage: "Feed backend (x or bluesky)", EnvVars: []string{"POSTRELAY_BACKEND"}},
		&cli.StringFlag{Name: "handle", Aliases: []string{"u"}, Usage: "Account handle to watch", EnvVars: []string{"TARGET_USERNAME"}},
		&cli.StringFlag{Name: "user-id", Usage: "Account id, skips the handle lookup", EnvVars: []string{"USER_ID"}},
		&cli.StringFlag{Name: "bearer-token", Usage: "X API bearer token", EnvVars: []string{"BEARER_TOKEN"}},
		&cli.StringFlag{Name: "api-base-url", Usage: "Override the feed API base URL", EnvVars: []string{"POSTRELAY_API_BASE_URL"}},
		&cli.StringFlag{Name: "webhook-url", Aliases: []string{"w"}, Usage: "Destination webhook", EnvVars: []string{"DISCORD_WEBHOOK_URL"}},
		&cli.IntFlag{Name: "poll-interval", Usage: "Seconds between polls (default 60)", EnvVars: []string{"POLL_INTERVAL_SECONDS"}},
		&cli.IntFlag{Name: "max-results", Usage: "Posts per poll, clamped to [5,100] (default 10)", EnvVars: []string{"MAX_RESULTS"}},
		&cli.BoolFlag{Name: "exclude-replies", Usage: "Skip replies (default true)", EnvVars: []string{"EXCLUDE_REPLIES"}},
		&cli.BoolFlag{Name: "exclude-reposts", Usage: "Skip reposts (default true)", EnvVars: []string{"EXCLUDE_RETWEETS"}},
		&cli.BoolFlag{Name: "catch-up", Usage: "Deliver available history on the first run", EnvVars: []string{"CATCH_UP_ON_FIRST_RUN"}},
		&cli.BoolFlag{Name: "detect-language", Usage: "Detect languages of untagged posts", EnvVars: []string{"POSTRELAY_DETECT_LANGUAGE"}},
		&cli.StringFlag{Name: "state-file", Usage: "Cursor file (default state.json)", EnvVars: []string{"STATE_FILE"}},
		&cli.BoolFlag{Name: "include-translation", Usage: "Translate English posts (default true)", EnvVars: []string{"INCLUDE_TRANSLATION"}},
		&cli.StringFlag{Name: "embed-domain", Usage: "Domain used for post links (default twitter.com)", EnvVars: []string{"EMBED_DOMAIN"}},
		&cli.StringFlag{Name: "fake-mode", Usage: "Fixture mode (off, record, replay)", EnvVars: []string{"FAKE_MODE"}},
		&cli.StringFlag{Name: "fake-dir", Usage: "Fixture directory (default fake_data)", EnvVars: []string{"FAKE_DIR"}},
		&cli.StringFlag{Name: "fake-file", Usage: "Fixture file name (default fake_<handle>.json)", EnvVars: []string{"FAKE_FILE"}},
		&cli.IntFlag{Name: "chunk-limit", Usage: "Translation chunk size, at most 400", EnvVars: []string{"ULTRA_FREE_LIMIT"}},
		&cli.StringSliceFlag{Name: "provider-order", Usage: "Translation providers in order", EnvVars: []string{"ULTRA_PROVIDER_ORDER"}},
		&cli.StringFlag{Name: "libre-endpoint", Usage: "LibreTranslate compatible endpoint", EnvVars: []string{"FREE_TRANSLATE_ENDPOINT"}},
		&cli.StringFlag{Name: "libre-api-key", Usage: "LibreTranslate API key", EnvVars: []string{"FREE_TRANSLATE_API_KEY"}},
		&cli.StringFlag{Name: "mymemory-email", Usage: "Contact email raising the MyMemory quota", EnvVars: []string{"MYMEMORY_EMAIL"}},
		&cli.StringFlag{Name: "translate-cache", Usage: "Translation cache file", EnvVars: []string{"TRANSLATE_CACHE_FILE"}},
		&cli.IntFlag{Name: "cache-ttl-days", Usage: "Translation cache lifetime in days (default 180)", EnvVars: []string{"TRANSLATE_CACHE_TTL_DAYS"}},
		&cli.StringFlag{Name: "journal", Usage: "SQLite delivery journal, empty disables it", EnvVars: []string{"POSTRELAY_JOURNAL"}},
		&cli.StringFlag{Name: "addr", Usage: "Status server listen address, empty disables it", EnvVars: []string{"POSTRELAY_ADDR"}},
	}
}

func override[T any](ctx *cli.Context, name string, dst *T, get func(string) T) {
	if ctx.IsSet(name) {
		*dst = get(name)
	}
}

// loadSettings layers flags and environment over the TOML file and defaults
func loadSettings(ctx *cli.Context) (*config.Settings, error) {
	s, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	override(ctx, "backend", &s.Feed.Backend, ctx.String)
	override(ctx, "handle", &s.Feed.Handle, ctx.String)
	override(ctx, "user-id", &s.Feed.UserID, ctx.String)
	override(ctx, "bearer-token", &s.Feed.BearerToken, ctx.String)
	override(ctx, "api-base-url", &s.Feed.APIBaseURL, ctx.String)
	override(ctx, "poll-interval", &s.Feed.PollIntervalSeconds, ctx.Int)
	override(ctx, "max-results", &s.Feed.MaxResults, ctx.Int)
	override(ctx, "exclude-replies", &s.Feed.ExcludeReplies, ctx.Bool)
	override(ctx, "exclude-reposts", &s.Feed.ExcludeReposts, ctx.Bool)
	override(ctx, "catch-up", &s.Feed.CatchUpOnFirstRun, ctx.Bool)
	override(ctx, "detect-language", &s.Feed.DetectLanguage, ctx.Bool)
	override(ctx, "state-file", &s.Feed.StateFile, ctx.String)

	override(ctx, "webhook-url", &s.Delivery.WebhookURL, ctx.String)
	override(ctx, "embed-domain", &s.Delivery.EmbedDomain, ctx.String)

	override(ctx, "include-translation", &s.Translation.Enabled, ctx.Bool)
	override(ctx, "chunk-limit", &s.Translation.ChunkLimit, ctx.Int)
	override(ctx, "provider-order", &s.Translation.ProviderOrder, ctx.StringSlice)
	override(ctx, "libre-endpoint", &s.Translation.LibreEndpoint, ctx.String)
	override(ctx, "libre-api-key", &s.Translation.LibreAPIKey, ctx.String)
	override(ctx, "mymemory-email", &s.Translation.MyMemoryEmail, ctx.String)
	override(ctx, "translate-cache", &s.Translation.CacheFile, ctx.String)
	override(ctx, "cache-ttl-days", &s.Translation.CacheTTLDays, ctx.Int)

	override(ctx, "fake-mode", &s.Fixture.Mode, ctx.String)
	override(ctx, "fake-dir", &s.Fixture.Dir, ctx.String)
	override(ctx, "fake-file", &s.Fixture.File, ctx.String)

	override(ctx, "journal", &s.Journal.Path, ctx.String)
	override(ctx, "addr", &s.Server.Addr, ctx.String)

	s.Normalize()
	return s, nil
}
