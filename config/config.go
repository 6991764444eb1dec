package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

var ErrMissingSetting = errors.New("missing required setting")
var ErrInvalidSetting = errors.New("invalid setting")

const (
	BackendX       = "x"
	BackendBluesky = "bluesky"

	FixtureOff    = "off"
	FixtureRecord = "record"
	FixtureReplay = "replay"

	minResults    = 5
	maxResults    = 100
	maxChunkLimit = 400
)

// FeedSettings configures the watched account and how it is polled
type FeedSettings struct {
	Backend             string   `toml:"backend"` // x or bluesky
	Handle              string   `toml:"handle"`
	UserID              string   `toml:"user_id,omitempty"`
	BearerToken         string   `toml:"bearer_token,omitempty"`
	APIBaseURL          string   `toml:"api_base_url,omitempty"`
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	MaxResults          int      `toml:"max_results"`
	ExcludeReplies      bool     `toml:"exclude_replies"`
	ExcludeReposts      bool     `toml:"exclude_reposts"`
	CatchUpOnFirstRun   bool     `toml:"catch_up_on_first_run"`
	CooldownSeconds     int      `toml:"rate_limit_cooldown_seconds"`
	DetectLanguage      bool     `toml:"detect_language"`
	Languages           []string `toml:"languages,omitempty"`
	StateFile           string   `toml:"state_file"`
}

// DeliverySettings configures the webhook and message rendering
type DeliverySettings struct {
	WebhookURL               string  `toml:"webhook_url"`
	EmbedDomain              string  `toml:"embed_domain"`
	ThrottleMillis           int     `toml:"throttle_ms"`
	RateLimitFallbackSeconds float64 `toml:"rate_limit_fallback_seconds"`
}

type TranslationSettings struct {
	Enabled       bool     `toml:"enabled"`
	ProviderOrder []string `toml:"provider_order"`
	ChunkLimit    int      `toml:"chunk_limit"`
	CacheFile     string   `toml:"cache_file"`
	CacheTTLDays  int      `toml:"cache_ttl_days"`
	MyMemoryEmail string   `toml:"mymemory_email,omitempty"`
	LibreEndpoint string   `toml:"libre_endpoint,omitempty"`
	LibreAPIKey   string   `toml:"libre_api_key,omitempty"`
	Normalizer    string   `toml:"normalizer"` // opencc profile, or none
}

// FixtureSettings controls record/replay of feed pages
type FixtureSettings struct {
	Mode string `toml:"mode"`
	Dir  string `toml:"dir"`
	File string `toml:"file,omitempty"` // defaults to fake_<handle>.json
	Path string `toml:"-"`
}

type JournalSettings struct {
	Path string `toml:"path,omitempty"` // empty disables the journal
}

type ServerSettings struct {
	Addr string `toml:"addr,omitempty"` // empty disables the status server
}

type Settings struct {
	Feed        FeedSettings        `toml:"feed"`
	Delivery    DeliverySettings    `toml:"delivery"`
	Translation TranslationSettings `toml:"translation"`
	Fixture     FixtureSettings     `toml:"fixture"`
	Journal     JournalSettings     `toml:"journal"`
	Server      ServerSettings      `toml:"server"`
}

func Defaults() *Settings {
	return &Settings{
		Feed: FeedSettings{
			Backend:             BackendX,
			PollIntervalSeconds: 60,
			MaxResults:          10,
			ExcludeReplies:      true,
			ExcludeReposts:      true,
			CooldownSeconds:     60,
			StateFile:           "state.json",
		},
		Delivery: DeliverySettings{
			EmbedDomain:              "twitter.com",
			ThrottleMillis:           800,
			RateLimitFallbackSeconds: 3,
		},
		Translation: TranslationSettings{
			Enabled:       true,
			ProviderOrder: []string{"mymemory", "libre"},
			ChunkLimit:    maxChunkLimit,
			CacheFile:     "translate_cache.json",
			CacheTTLDays:  180,
			Normalizer:    "s2twp",
		},
		Fixture: FixtureSettings{
			Mode: FixtureOff,
			Dir:  "fake_data",
		},
	}
}

// Load decodes the TOML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Settings, error) {
	settings := Defaults()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return settings, nil
}

// Write encodes settings as TOML to path
func (s *Settings) Write(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return f.Close()
}

// Normalize clamps numeric settings, fills blanks with defaults and derives
// the fixture path
func (s *Settings) Normalize() {
	d := Defaults()

	s.Feed.Backend = strings.ToLower(strings.TrimSpace(s.Feed.Backend))
	if s.Feed.Backend == "" {
		s.Feed.Backend = d.Feed.Backend
	}
	s.Feed.Handle = strings.TrimPrefix(strings.TrimSpace(s.Feed.Handle), "@")
	s.Feed.UserID = strings.TrimSpace(s.Feed.UserID)
	s.Feed.MaxResults = min(max(s.Feed.MaxResults, minResults), maxResults)
	if s.Feed.PollIntervalSeconds < 1 {
		s.Feed.PollIntervalSeconds = d.Feed.PollIntervalSeconds
	}
	if s.Feed.CooldownSeconds < 0 {
		s.Feed.CooldownSeconds = d.Feed.CooldownSeconds
	}
	if s.Feed.StateFile == "" {
		s.Feed.StateFile = d.Feed.StateFile
	}

	if s.Delivery.EmbedDomain == "" {
		s.Delivery.EmbedDomain = d.Delivery.EmbedDomain
	}
	if s.Delivery.ThrottleMillis < 0 {
		s.Delivery.ThrottleMillis = 0
	}
	if s.Delivery.RateLimitFallbackSeconds <= 0 {
		s.Delivery.RateLimitFallbackSeconds = d.Delivery.RateLimitFallbackSeconds
	}

	s.Translation.ProviderOrder = lo.Compact(lo.Map(s.Translation.ProviderOrder, func(name string, _ int) string {
		return strings.ToLower(strings.TrimSpace(name))
	}))
	s.Translation.ChunkLimit = min(max(s.Translation.ChunkLimit, 1), maxChunkLimit)
	if s.Translation.CacheTTLDays <= 0 {
		s.Translation.CacheTTLDays = d.Translation.CacheTTLDays
	}
	if s.Translation.CacheFile == "" {
		s.Translation.CacheFile = d.Translation.CacheFile
	}
	s.Translation.Normalizer = strings.ToLower(strings.TrimSpace(s.Translation.Normalizer))

	s.Fixture.Mode = strings.ToLower(strings.TrimSpace(s.Fixture.Mode))
	if s.Fixture.Mode == "" {
		s.Fixture.Mode = FixtureOff
	}
	if s.Fixture.Dir == "" {
		s.Fixture.Dir = d.Fixture.Dir
	}
	file := strings.TrimSpace(s.Fixture.File)
	if file == "" {
		file = fmt.Sprintf("fake_%s.json", s.Feed.Handle)
	}
	s.Fixture.Path = filepath.Join(s.Fixture.Dir, file)
}

// Validate reports every missing prerequisite for running the relay
func (s *Settings) Validate() error {
	var errs []error

	if s.Feed.Handle == "" {
		errs = append(errs, fmt.Errorf("%w: feed.handle (TARGET_USERNAME)", ErrMissingSetting))
	}
	if s.Delivery.WebhookURL == "" {
		errs = append(errs, fmt.Errorf("%w: delivery.webhook_url (DISCORD_WEBHOOK_URL)", ErrMissingSetting))
	}
	if !lo.Contains([]string{BackendX, BackendBluesky}, s.Feed.Backend) {
		errs = append(errs, fmt.Errorf("%w: feed.backend %q", ErrInvalidSetting, s.Feed.Backend))
	}
	if !lo.Contains([]string{FixtureOff, FixtureRecord, FixtureReplay}, s.Fixture.Mode) {
		errs = append(errs, fmt.Errorf("%w: fixture.mode %q", ErrInvalidSetting, s.Fixture.Mode))
	}
	if s.Feed.Backend == BackendX && s.Fixture.Mode != FixtureReplay && s.Feed.BearerToken == "" {
		errs = append(errs, fmt.Errorf("%w: feed.bearer_token (BEARER_TOKEN)", ErrMissingSetting))
	}

	return errors.Join(errs...)
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.Feed.PollIntervalSeconds) * time.Second
}

func (s *Settings) Cooldown() time.Duration {
	return time.Duration(s.Feed.CooldownSeconds) * time.Second
}

func (s *Settings) Throttle() time.Duration {
	return time.Duration(s.Delivery.ThrottleMillis) * time.Millisecond
}

func (s *Settings) RateLimitFallback() time.Duration {
	return time.Duration(s.Delivery.RateLimitFallbackSeconds * float64(time.Second))
}

func (s *Settings) CacheTTL() time.Duration {
	return time.Duration(s.Translation.CacheTTLDays) * 24 * time.Hour
}
