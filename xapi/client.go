// Package xapi is a small client for the X API v2 endpoints the relay needs.
package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"postrelay/models"
	"postrelay/source"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://api.twitter.com"

const tweetFields = "created_at,text,lang,note_tweet,entities,public_metrics"

// ErrRateLimited is returned on HTTP 429
var ErrRateLimited = fmt.Errorf("x api: %w", source.ErrRateLimited)

// ErrUserNotFound is returned when a handle does not resolve
var ErrUserNotFound = errors.New("x api: user not found")

type Client struct {
	baseURL     string
	bearerToken string
	http        *http.Client
	retries     uint64
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries bounds retries of requests that got no response
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

func New(bearerToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		bearerToken: bearerToken,
		http:        &http.Client{Timeout: 20 * time.Second},
		retries:     3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type userResponse struct {
	Data *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type tweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Lang      string `json:"lang"`
	NoteTweet *struct {
		Text string `json:"text"`
	} `json:"note_tweet"`
}

type timelineResponse struct {
	Data   []tweet    `json:"data"`
	Errors []apiError `json:"errors"`
}

// LookupUser resolves a username to its numeric user id
func (c *Client) LookupUser(ctx context.Context, handle string) (string, error) {
	var resp userResponse
	path := "/2/users/by/username/" + url.PathEscape(strings.TrimPrefix(handle, "@"))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return "", fmt.Errorf("lookup %s: %w", handle, err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, handle)
	}
	return resp.Data.ID, nil
}

// UserPosts returns a page of the user's posts, newest first
func (c *Client) UserPosts(ctx context.Context, userID string, q source.Query) ([]models.Post, error) {
	params := url.Values{}
	params.Set("tweet.fields", tweetFields)
	if q.Limit > 0 {
		params.Set("max_results", strconv.Itoa(q.Limit))
	}
	if q.SinceID > 0 {
		params.Set("since_id", strconv.FormatInt(q.SinceID, 10))
	}

	var exclude []string
	if q.ExcludeReplies {
		exclude = append(exclude, "replies")
	}
	if q.ExcludeReposts {
		exclude = append(exclude, "retweets")
	}
	if len(exclude) > 0 {
		params.Set("exclude", strings.Join(exclude, ","))
	}

	var resp timelineResponse
	if err := c.get(ctx, "/2/users/"+url.PathEscape(userID)+"/tweets", params, &resp); err != nil {
		return nil, fmt.Errorf("timeline %s: %w", userID, err)
	}

	posts := make([]models.Post, 0, len(resp.Data))
	for _, t := range resp.Data {
		post, err := t.toPost()
		if err != nil {
			log.WithFields(log.Fields{"id": t.ID, "error": err}).Warn("Skipping malformed post")
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (t tweet) toPost() (models.Post, error) {
	id, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		return models.Post{}, fmt.Errorf("parse id: %w", err)
	}
	created, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		created = time.Now().UTC()
	}

	post := models.Post{ID: id, Text: t.Text, CreatedAt: created, Language: t.Lang}
	if t.NoteTweet != nil && t.NoteTweet.Text != "" {
		text := t.NoteTweet.Text
		post.RichText = &text
	}
	return post, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	body, err := backoff.RetryWithData(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			log.WithFields(log.Fields{"path": path, "error": err}).Debug("X API request failed, retrying")
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, backoff.Permanent(ErrRateLimited)
		case resp.StatusCode >= 500:
			return nil, &statusError{code: resp.StatusCode, body: truncate(string(data), 300)}
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode, body: truncate(string(data), 300)})
		}
		return data, nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
