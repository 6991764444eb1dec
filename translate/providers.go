package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMyMemoryEndpoint = "https://api.mymemory.translated.net/get"
	providerTimeout         = 12 * time.Second
)

// DefaultProviderOrder is tried when no order is configured
var DefaultProviderOrder = []string{"mymemory", "libre"}

var errEmptyTranslation = errors.New("empty translation")

// Provider translates English text into Traditional Chinese
type Provider interface {
	Name() string
	// Available reports whether the provider has the configuration it needs
	Available() bool
	Translate(ctx context.Context, text string) (string, error)
}

// ProviderConfig carries the settings for every known provider
type ProviderConfig struct {
	MyMemoryEndpoint string
	MyMemoryEmail    string
	LibreEndpoint    string
	LibreAPIKey      string
	HTTPClient       *http.Client
}

// BuildProviders resolves an ordered list of names into providers. Unknown
// names are logged and skipped, duplicates keep their first position.
func BuildProviders(order []string, cfg ProviderConfig) []Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}

	names := lo.Uniq(lo.FilterMap(order, func(name string, _ int) (string, bool) {
		name = strings.ToLower(strings.TrimSpace(name))
		return name, name != ""
	}))

	var providers []Provider
	for _, name := range names {
		switch name {
		case "mymemory":
			providers = append(providers, &MyMemory{Endpoint: cfg.MyMemoryEndpoint, Email: cfg.MyMemoryEmail, Client: client})
		case "libre":
			providers = append(providers, &Libre{Endpoint: cfg.LibreEndpoint, APIKey: cfg.LibreAPIKey, Client: client})
		default:
			log.WithFields(log.Fields{"provider": name}).Warn("Unknown translation provider, skipping")
		}
	}
	return providers
}

// MyMemory is the free translated.net web API, it needs no configuration
type MyMemory struct {
	Endpoint string
	Email    string // Optional, raises the daily quota
	Client   *http.Client
}

func (m *MyMemory) Name() string    { return "mymemory" }
func (m *MyMemory) Available() bool { return true }

func (m *MyMemory) Translate(ctx context.Context, text string) (string, error) {
	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = DefaultMyMemoryEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", text)
	q.Set("langpair", "en|zh-TW")
	if m.Email != "" {
		q.Set("de", m.Email)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	var payload struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus json.RawMessage `json:"responseStatus"`
	}
	if err := doJSON(m.Client, req, &payload); err != nil {
		return "", err
	}

	// Quota and validation errors come back as 200 with the message in
	// translatedText and a non-200 responseStatus
	if status := strings.Trim(string(payload.ResponseStatus), `"`); status != "" && status != "200" {
		return "", fmt.Errorf("mymemory status %s: %s", status, payload.ResponseData.TranslatedText)
	}
	if payload.ResponseData.TranslatedText == "" {
		return "", errEmptyTranslation
	}
	return payload.ResponseData.TranslatedText, nil
}

// Libre is a self-hosted LibreTranslate compatible endpoint
type Libre struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func (l *Libre) Name() string    { return "libre" }
func (l *Libre) Available() bool { return strings.TrimSpace(l.Endpoint) != "" }

func (l *Libre) Translate(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("q", text)
	form.Set("source", "en")
	form.Set("target", "zh")
	form.Set("format", "text")
	if l.APIKey != "" {
		form.Set("api_key", l.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(l.Endpoint), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		TranslatedText string `json:"translatedText"`
		Translation    string `json:"translation"`
	}
	if err := doJSON(l.Client, req, &payload); err != nil {
		return "", err
	}
	if payload.TranslatedText != "" {
		return payload.TranslatedText, nil
	}
	if payload.Translation != "" {
		return payload.Translation, nil
	}
	return "", errEmptyTranslation
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
