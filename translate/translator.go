// Package translate turns English post text into Traditional Chinese. It
// never fails: when no provider answers, the input is returned unchanged.
package translate

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postrelay_translation_cache_lookups_total",
		Help: "Translation cache lookups by result",
	}, []string{"result"})

	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postrelay_translation_provider_calls_total",
		Help: "Translation provider calls by provider and outcome",
	}, []string{"provider", "outcome"})
)

// Translator runs text through the provider chain with caching, chunking
// and token protection
type Translator struct {
	providers  []Provider
	cache      *Cache
	limit      int
	normalizer Normalizer
}

type Option func(*Translator)

// WithChunkLimit sets the per-request size limit, clamped to MaxChunkSize
func WithChunkLimit(limit int) Option {
	return func(t *Translator) { t.limit = EffectiveLimit(limit) }
}

// WithNormalizer sets the post-processing step applied to provider output
func WithNormalizer(n Normalizer) Option {
	return func(t *Translator) { t.normalizer = n }
}

// New creates a translator. A nil cache disables caching.
func New(providers []Provider, cache *Cache, opts ...Option) *Translator {
	t := &Translator{
		providers:  providers,
		cache:      cache,
		limit:      MaxChunkSize,
		normalizer: Identity{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate returns the translation of text, or text itself when nothing
// usable came back
func (t *Translator) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	if t.cache != nil {
		if cached, ok := t.cache.Get(text); ok {
			cacheLookups.WithLabelValues("hit").Inc()
			log.WithFields(log.Fields{"key": CacheKey(text)[:12]}).Debug("Translation cache hit")
			return cached
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	masked, tokens := protect(text)

	if utf8.RuneCountInString(masked) <= t.limit {
		translated, ok := t.translateOnce(ctx, masked)
		if !ok {
			return text
		}
		result := restore(translated, tokens)
		t.store(text, result)
		return result
	}

	var (
		out       strings.Builder
		succeeded bool
	)
	for _, chunk := range splitIntoChunks(masked, t.limit) {
		if strings.TrimSpace(chunk) == "" {
			out.WriteString(chunk)
			continue
		}
		translated, ok := t.translateOnce(ctx, chunk)
		if !ok {
			out.WriteString(chunk)
			continue
		}
		succeeded = true
		out.WriteString(translated)
	}

	if out.Len() == 0 {
		return text
	}
	result := restore(out.String(), tokens)
	// Only complete or partial successes are cached, a total failure is
	// retried the next time the same text shows up
	if succeeded {
		t.store(text, result)
	}
	return result
}

func (t *Translator) store(text, translated string) {
	if t.cache != nil {
		t.cache.Put(text, translated)
	}
}

// translateOnce asks each provider in order and returns the first
// non-empty answer
func (t *Translator) translateOnce(ctx context.Context, text string) (string, bool) {
	tried := map[string]bool{}
	for _, p := range t.providers {
		name := p.Name()
		if tried[name] {
			continue
		}
		tried[name] = true

		if !p.Available() {
			providerCalls.WithLabelValues(name, "unavailable").Inc()
			continue
		}

		result, err := p.Translate(ctx, text)
		if err != nil {
			providerCalls.WithLabelValues(name, "error").Inc()
			log.WithFields(log.Fields{"provider": name, "error": err}).Warn("Translation provider failed")
			continue
		}
		result = t.normalizer.Normalize(result)
		if strings.TrimSpace(result) == "" {
			providerCalls.WithLabelValues(name, "empty").Inc()
			continue
		}
		providerCalls.WithLabelValues(name, "ok").Inc()
		return result, true
	}
	return "", false
}
