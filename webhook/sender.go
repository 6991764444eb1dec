// Package webhook delivers rendered messages to a chat webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	webhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postrelay_webhook_requests_total",
		Help: "Webhook requests by response class",
	}, []string{"result"})

	webhookRateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postrelay_webhook_rate_limit_wait_seconds",
		Help:    "Time spent waiting on webhook rate limits",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

const (
	// DefaultRateLimitFallback is waited when a 429 carries no usable hint
	DefaultRateLimitFallback = 3 * time.Second
	defaultTimeout           = 15 * time.Second
	bodyPreviewLength        = 500
)

// Retry hints in the order they are consulted
var retryAfterHeaders = []string{"Retry-After", "X-RateLimit-Reset-After"}

// ErrDeliveryFailed marks a message the webhook refused
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// StatusError is returned for non-retryable responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrDeliveryFailed
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sender posts messages, waiting out rate limits until the webhook accepts
// or refuses the message
type Sender struct {
	client           *http.Client
	sleep            SleepFunc
	fallback         time.Duration
	transportRetries uint64
	initialBackoff   time.Duration
}

type Option func(*Sender)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

func WithSleep(fn SleepFunc) Option {
	return func(s *Sender) { s.sleep = fn }
}

// WithRateLimitFallback sets the wait used when a 429 has no valid hint
func WithRateLimitFallback(d time.Duration) Option {
	return func(s *Sender) { s.fallback = d }
}

// WithTransportRetries bounds retries of requests that got no response
func WithTransportRetries(n uint64, initial time.Duration) Option {
	return func(s *Sender) {
		s.transportRetries = n
		s.initialBackoff = initial
	}
}

func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:           &http.Client{Timeout: defaultTimeout},
		sleep:            Sleep,
		fallback:         DefaultRateLimitFallback,
		transportRetries: 3,
		initialBackoff:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type payload struct {
	Content string `json:"content"`
}

// Send delivers content to url. It returns nil on 200/204, a *StatusError
// when the webhook refuses the message, or the transport/context error.
func (s *Sender) Send(ctx context.Context, url, content string) error {
	body, err := json.Marshal(payload{Content: content})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for {
		status, header, respBody, err := s.post(ctx, url, body)
		if err != nil {
			webhookRequests.WithLabelValues("transport_error").Inc()
			return err
		}

		switch {
		case status == http.StatusOK || status == http.StatusNoContent:
			webhookRequests.WithLabelValues("ok").Inc()
			return nil

		case status == http.StatusTooManyRequests:
			webhookRequests.WithLabelValues("rate_limited").Inc()
			wait := s.retryAfter(header)
			log.WithFields(log.Fields{"wait": wait}).Warn("Webhook rate limited, waiting before retry")
			webhookRateLimitWait.Observe(wait.Seconds())
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}

		default:
			webhookRequests.WithLabelValues("refused").Inc()
			preview := truncate(respBody, bodyPreviewLength)
			log.WithFields(log.Fields{"status": status, "body": preview}).Error("Webhook refused message")
			return &StatusError{StatusCode: status, Body: preview}
		}
	}
}

// retryAfter reads the first present hint, in seconds
func (s *Sender) retryAfter(header http.Header) time.Duration {
	for _, name := range retryAfterHeaders {
		raw := strings.TrimSpace(header.Get(name))
		if raw == "" {
			continue
		}
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds <= 0 {
			return s.fallback
		}
		return time.Duration(seconds * float64(time.Second))
	}
	return s.fallback
}

type response struct {
	status int
	header http.Header
	body   string
}

// post sends one request, retrying with backoff only when no response
// arrived at all
func (s *Sender) post(ctx context.Context, url string, body []byte) (int, http.Header, string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	resp, err := backoff.RetryWithData(func() (response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return response{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, backoff.Permanent(ctx.Err())
			}
			log.WithFields(log.Fields{"error": err}).Warn("Webhook request failed")
			return response{}, fmt.Errorf("send request: %w", err)
		}
		defer r.Body.Close()

		data, _ := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		return response{status: r.StatusCode, header: r.Header, body: string(data)}, nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.transportRetries), ctx))
	if err != nil {
		return 0, nil, "", err
	}
	return resp.status, resp.header, resp.body, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
