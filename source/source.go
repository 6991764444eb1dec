// Package source fetches posts newer than a cursor, either from a live feed
// API or from a recorded fixture.
package source

import (
	"context"
	"errors"
	"postrelay/language"
	"postrelay/models"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// ErrRateLimited is wrapped by feed API clients when upstream throttles them
var ErrRateLimited = errors.New("feed rate limited")

// DefaultCooldown is how long a rate limited fetch waits before giving up the tick
const DefaultCooldown = 60 * time.Second

var (
	postsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postrelay_posts_fetched_total",
		Help: "Posts returned by the source",
	})

	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postrelay_fetch_failures_total",
		Help: "Failed fetches by reason",
	}, []string{"reason"})
)

// Query describes one timeline page request
type Query struct {
	SinceID        int64 // 0 means the most recent page
	Limit          int
	ExcludeReplies bool
	ExcludeReposts bool
}

// FeedAPI is the external feed a live source talks to
type FeedAPI interface {
	LookupUser(ctx context.Context, handle string) (string, error)
	UserPosts(ctx context.Context, userID string, q Query) ([]models.Post, error)
}

// Source is what the relay polls. FetchSince never fails: an unavailable feed
// yields an empty page.
type Source interface {
	FetchSince(ctx context.Context, account string, sinceID int64, limit int) []models.Post
	LookupUser(ctx context.Context, handle string) (string, error)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// tagLanguage fills in missing language tags
func tagLanguage(posts []models.Post, detector language.Detector) {
	for i := range posts {
		if posts[i].Language != "" {
			continue
		}
		if detector == nil {
			posts[i].Language = models.DefaultLanguage
			continue
		}
		posts[i].Language = detector.Detect(posts[i].EffectiveText())
	}
}

func capTo(posts []models.Post, limit int) []models.Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

// Live polls a FeedAPI
type Live struct {
	api      FeedAPI
	filters  Query
	cooldown time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	recorder *Fixture
	detector language.Detector
}

type LiveOption func(*Live)

func WithExclusions(replies, reposts bool) LiveOption {
	return func(l *Live) {
		l.filters.ExcludeReplies = replies
		l.filters.ExcludeReposts = reposts
	}
}

func WithCooldown(d time.Duration, sleep func(ctx context.Context, d time.Duration) error) LiveOption {
	return func(l *Live) {
		l.cooldown = d
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithRecorder appends every non-empty page to the fixture
func WithRecorder(f *Fixture) LiveOption {
	return func(l *Live) { l.recorder = f }
}

func WithDetector(d language.Detector) LiveOption {
	return func(l *Live) { l.detector = d }
}

func NewLive(api FeedAPI, opts ...LiveOption) *Live {
	l := &Live{
		api:      api,
		filters:  Query{ExcludeReplies: true, ExcludeReposts: true},
		cooldown: DefaultCooldown,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Live) LookupUser(ctx context.Context, handle string) (string, error) {
	return l.api.LookupUser(ctx, handle)
}

func (l *Live) FetchSince(ctx context.Context, account string, sinceID int64, limit int) []models.Post {
	q := l.filters
	q.SinceID = sinceID
	q.Limit = limit

	posts, err := l.api.UserPosts(ctx, account, q)
	if errors.Is(err, ErrRateLimited) {
		fetchFailures.WithLabelValues("rate_limited").Inc()
		log.WithFields(log.Fields{"account": account, "cooldown": l.cooldown}).Warn("Feed rate limited, cooling down")
		if err := l.sleep(ctx, l.cooldown); err != nil {
			log.Debug("Cooldown interrupted")
		}
		return nil
	}
	if err != nil {
		fetchFailures.WithLabelValues("error").Inc()
		log.WithFields(log.Fields{"account": account, "error": err}).Error("Failed to fetch posts")
		return nil
	}

	posts = capTo(posts, limit)
	tagLanguage(posts, l.detector)
	postsFetched.Add(float64(len(posts)))

	if l.recorder != nil && len(posts) > 0 {
		if err := l.recorder.Append(posts); err != nil {
			log.WithFields(log.Fields{"path": l.recorder.Path(), "error": err}).Error("Failed to record fixture")
		}
	}
	return posts
}

// Replay serves posts from a fixture without touching the network
type Replay struct {
	fixture  *Fixture
	userID   string
	detector language.Detector
}

// NewReplay serves f. userID answers user lookups; when blank the handle
// itself is used as the account id.
func NewReplay(f *Fixture, userID string, detector language.Detector) *Replay {
	return &Replay{fixture: f, userID: userID, detector: detector}
}

func (r *Replay) LookupUser(_ context.Context, handle string) (string, error) {
	if r.userID != "" {
		return r.userID, nil
	}
	return handle, nil
}

// FetchSince returns fixture posts newer than sinceID, newest first
func (r *Replay) FetchSince(_ context.Context, _ string, sinceID int64, limit int) []models.Post {
	all, err := r.fixture.Load()
	if err != nil {
		log.WithFields(log.Fields{"path": r.fixture.Path(), "error": err}).Warn("Failed to read fixture")
		return nil
	}

	posts := make([]models.Post, 0, len(all))
	for _, p := range all {
		if p.ID > sinceID {
			posts = append(posts, p)
		}
	}
	models.SortDescending(posts)
	posts = capTo(posts, limit)
	tagLanguage(posts, r.detector)
	postsFetched.Add(float64(len(posts)))
	return posts
}
