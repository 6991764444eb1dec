// Package relay runs the poll, render, deliver and advance-cursor loop for
// one watched account.
package relay

import (
	"context"
	"errors"
	"fmt"
	"postrelay/models"
	"postrelay/source"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// ErrAccountUnresolved is fatal: nothing can be relayed without an account id
var ErrAccountUnresolved = errors.New("target account could not be resolved")

var (
	deliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postrelay_deliveries_total",
		Help: "Posts delivered to the webhook",
	})

	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postrelay_delivery_failures_total",
		Help: "Deliveries abandoned for the current tick",
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postrelay_ticks_total",
		Help: "Completed poll ticks",
	})

	cursorGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postrelay_cursor",
		Help: "Last delivered post id",
	})
)

type CursorStore interface {
	Load(account string) (int64, bool)
	Save(account string, id int64) error
}

type Renderer interface {
	Render(ctx context.Context, post models.Post) string
}

type Sender interface {
	Send(ctx context.Context, url, content string) error
}

// Journal records successful deliveries. Failures never hold back the cursor.
type Journal interface {
	RecordDelivery(ctx context.Context, d models.Delivery) error
}

type Config struct {
	Handle            string
	UserID            string // skips the handle lookup when set
	WebhookURL        string
	PollInterval      time.Duration
	Throttle          time.Duration
	MaxResults        int
	CatchUpOnFirstRun bool
}

// Status is a point in time view of the relay
type Status struct {
	State     string    `json:"state"`
	Handle    string    `json:"handle"`
	Account   string    `json:"account"`
	Cursor    int64     `json:"cursor"`
	Persisted int64     `json:"persisted"`
	Delivered int64     `json:"delivered"`
	Failures  int64     `json:"failures"`
	LastPoll  time.Time `json:"lastPoll"`
}

type Relay struct {
	cfg      Config
	source   source.Source
	cursors  CursorStore
	renderer Renderer
	sender   Sender
	journal  Journal
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu           sync.RWMutex
	state        State
	account      string
	cursor       int64
	hasCursor    bool
	persisted    int64
	hasPersisted bool
	delivered    int64
	failures     int64
	lastPoll     time.Time
}

type Option func(*Relay)

func WithJournal(j Journal) Option {
	return func(r *Relay) { r.journal = j }
}

// WithSleep replaces the interval and throttle wait
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Relay) { r.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func New(cfg Config, src source.Source, cursors CursorStore, renderer Renderer, sender Sender, opts ...Option) *Relay {
	r := &Relay{
		cfg:      cfg,
		source:   src,
		cursors:  cursors,
		renderer: renderer,
		sender:   sender,
		sleep:    sleepCtx,
		now:      time.Now,
		state:    StateBootstrap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run bootstraps and then polls until ctx is cancelled. The only error it
// returns is a failed bootstrap.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Bootstrap(ctx); err != nil {
		r.setState(StateStopped)
		return err
	}

	r.setState(StateSteadyPoll)
	for ctx.Err() == nil {
		r.Tick(ctx)
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			break
		}
	}

	r.drain()
	return nil
}

// Bootstrap resolves the account and loads its cursor. Without a cursor and
// with catch-up disabled, the newest available post becomes the baseline and
// nothing is delivered.
func (r *Relay) Bootstrap(ctx context.Context) error {
	r.setState(StateBootstrap)

	account := r.cfg.UserID
	if account == "" {
		id, err := r.source.LookupUser(ctx, r.cfg.Handle)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrAccountUnresolved, r.cfg.Handle, err)
		}
		account = id
	}
	if account == "" {
		return fmt.Errorf("%w: %s", ErrAccountUnresolved, r.cfg.Handle)
	}

	r.mu.Lock()
	r.account = account
	r.cursor, r.hasCursor = r.cursors.Load(account)
	r.persisted, r.hasPersisted = r.cursor, r.hasCursor
	r.mu.Unlock()

	logger := log.WithFields(log.Fields{"handle": r.cfg.Handle, "account": account})
	if r.hasCursor {
		cursorGauge.Set(float64(r.cursor))
		logger.WithField("cursor", r.cursor).Info("Resuming from stored cursor")
		return nil
	}
	if r.cfg.CatchUpOnFirstRun {
		logger.Info("No cursor stored, catching up on available posts")
		return nil
	}

	posts := r.source.FetchSince(ctx, account, 0, r.cfg.MaxResults)
	if len(posts) == 0 {
		logger.Info("No posts found for baseline, waiting for the next tick")
		return nil
	}

	newest := lo.MaxBy(posts, func(a, b models.Post) bool { return a.ID > b.ID })
	r.advance(newest.ID)
	logger.WithField("cursor", newest.ID).Info("Baseline set without delivering history")
	return nil
}

// Tick fetches posts after the cursor and delivers them oldest first. It
// stops at the first failed delivery so that post is retried next tick, and
// returns the number delivered.
func (r *Relay) Tick(ctx context.Context) int {
	r.mu.RLock()
	account, since, hasCursor := r.account, r.cursor, r.hasCursor
	r.mu.RUnlock()

	defer func() {
		ticksTotal.Inc()
		r.mu.Lock()
		r.lastPoll = r.now()
		r.mu.Unlock()
	}()

	posts := r.source.FetchSince(ctx, account, since, r.cfg.MaxResults)
	if len(posts) == 0 {
		return 0
	}

	batch := make([]models.Post, len(posts))
	copy(batch, posts)
	models.SortAscending(batch)
	if hasCursor {
		batch = lo.Filter(batch, func(p models.Post, _ int) bool { return p.ID > since })
	}

	delivered := 0
	for i, post := range batch {
		if ctx.Err() != nil {
			break
		}

		logger := log.WithFields(log.Fields{"account": account, "post": post.ID})
		content := r.renderer.Render(ctx, post)
		if err := r.sender.Send(ctx, r.cfg.WebhookURL, content); err != nil {
			deliveryFailures.Inc()
			r.mu.Lock()
			r.failures++
			r.mu.Unlock()
			logger.WithField("error", err).Error("Delivery failed, will retry next tick")
			break
		}

		r.advance(post.ID)
		delivered++
		deliveriesTotal.Inc()
		r.mu.Lock()
		r.delivered++
		r.mu.Unlock()
		logger.Info("Delivered post")
		r.record(ctx, account, post.ID, content)

		if i < len(batch)-1 {
			if err := r.sleep(ctx, r.cfg.Throttle); err != nil {
				break
			}
		}
	}
	return delivered
}

// advance moves the in-memory cursor and persists it before returning
func (r *Relay) advance(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor, r.hasCursor = id, true
	cursorGauge.Set(float64(id))
	if err := r.cursors.Save(r.account, id); err != nil {
		log.WithFields(log.Fields{"account": r.account, "cursor": id, "error": err}).Error("Failed to persist cursor")
		return
	}
	r.persisted, r.hasPersisted = id, true
}

func (r *Relay) record(ctx context.Context, account string, postID int64, content string) {
	if r.journal == nil {
		return
	}
	err := r.journal.RecordDelivery(ctx, models.Delivery{
		AccountID:   account,
		PostID:      postID,
		DeliveredAt: r.now().UTC(),
		Content:     content,
	})
	if err != nil {
		log.WithFields(log.Fields{"account": account, "post": postID, "error": err}).Warn("Failed to journal delivery")
	}
}

// drain persists the cursor once more if the last save did not land
func (r *Relay) drain() {
	r.setState(StateDraining)

	r.mu.Lock()
	pending := r.hasCursor && (!r.hasPersisted || r.persisted != r.cursor)
	account, cursor := r.account, r.cursor
	r.mu.Unlock()

	if pending {
		if err := r.cursors.Save(account, cursor); err != nil {
			log.WithFields(log.Fields{"account": account, "cursor": cursor, "error": err}).Error("Failed to persist cursor on shutdown")
		} else {
			r.mu.Lock()
			r.persisted, r.hasPersisted = cursor, true
			r.mu.Unlock()
		}
	}

	r.setState(StateStopped)
	log.WithFields(log.Fields{"account": account, "cursor": cursor}).Info("Relay stopped")
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	log.WithField("state", s.String()).Debug("Relay state changed")
}

func (r *Relay) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Relay) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		State:     r.state.String(),
		Handle:    r.cfg.Handle,
		Account:   r.account,
		Cursor:    r.cursor,
		Persisted: r.persisted,
		Delivered: r.delivered,
		Failures:  r.failures,
		LastPoll:  r.lastPoll,
	}
}
