/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"postrelay/bluesky"
	"postrelay/config"
	"postrelay/format"
	"postrelay/language"
	"postrelay/source"
	"postrelay/translate"
	"postrelay/xapi"

	log "github.com/sirupsen/logrus"
)

func feedAPI(s *config.Settings) (source.FeedAPI, error) {
	switch s.Feed.Backend {
	case config.BackendX:
		if s.Feed.BearerToken == "" {
			return nil, fmt.Errorf("%w: feed.bearer_token (BEARER_TOKEN)", config.ErrMissingSetting)
		}
		opts := []xapi.Option{}
		if s.Feed.APIBaseURL != "" {
			opts = append(opts, xapi.WithBaseURL(s.Feed.APIBaseURL))
		}
		return xapi.New(s.Feed.BearerToken, opts...), nil
	case config.BackendBluesky:
		return bluesky.NewClient(s.Feed.APIBaseURL, nil), nil
	default:
		return nil, fmt.Errorf("%w: feed.backend %q", config.ErrInvalidSetting, s.Feed.Backend)
	}
}

func detector(s *config.Settings) language.Detector {
	if !s.Feed.DetectLanguage {
		return nil
	}
	return language.NewDetector(s.Feed.Languages)
}

// buildSource picks replay, record or plain live mode
func buildSource(s *config.Settings) (source.Source, error) {
	if s.Fixture.Mode == config.FixtureReplay {
		log.WithField("fixture", s.Fixture.Path).Info("Replaying recorded posts")
		return source.NewReplay(source.NewFixture(s.Fixture.Path), s.Feed.UserID, detector(s)), nil
	}

	api, err := feedAPI(s)
	if err != nil {
		return nil, err
	}

	opts := []source.LiveOption{
		source.WithExclusions(s.Feed.ExcludeReplies, s.Feed.ExcludeReposts),
		source.WithCooldown(s.Cooldown(), nil),
	}
	if d := detector(s); d != nil {
		opts = append(opts, source.WithDetector(d))
	}
	if s.Fixture.Mode == config.FixtureRecord {
		log.WithField("fixture", s.Fixture.Path).Info("Recording fetched posts")
		opts = append(opts, source.WithRecorder(source.NewFixture(s.Fixture.Path)))
	}
	return source.NewLive(api, opts...), nil
}

func buildTranslator(s *config.Settings) *translate.Translator {
	providers := translate.BuildProviders(s.Translation.ProviderOrder, translate.ProviderConfig{
		MyMemoryEmail: s.Translation.MyMemoryEmail,
		LibreEndpoint: s.Translation.LibreEndpoint,
		LibreAPIKey:   s.Translation.LibreAPIKey,
	})
	cache := translate.OpenCache(s.Translation.CacheFile, s.CacheTTL())

	return translate.New(providers, cache,
		translate.WithChunkLimit(s.Translation.ChunkLimit),
		translate.WithNormalizer(translate.NewScriptNormalizer(s.Translation.Normalizer)),
	)
}

func buildFormatter(s *config.Settings) *format.Formatter {
	opts := format.Options{
		Handle:             s.Feed.Handle,
		EmbedDomain:        s.Delivery.EmbedDomain,
		IncludeTranslation: s.Translation.Enabled,
	}
	if !s.Translation.Enabled {
		return format.New(opts, nil)
	}
	return format.New(opts, buildTranslator(s))
}
