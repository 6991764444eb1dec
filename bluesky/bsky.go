// Package bluesky reads an account's posts from the public Bluesky AppView.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"postrelay/models"
	"postrelay/source"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/xrpc"
	log "github.com/sirupsen/logrus"
)

const DefaultAppViewHost = "https://public.api.bsky.app"

// ErrRateLimited is returned when the AppView answers 429
var ErrRateLimited = fmt.Errorf("bluesky: %w", source.ErrRateLimited)

// Fetch at most one page; the AppView caps limit at 100
const maxPageSize = 100

type Client struct {
	xrpc *xrpc.Client
}

func NewClient(host string, httpClient *http.Client) *Client {
	if host == "" {
		host = DefaultAppViewHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{xrpc: &xrpc.Client{Host: strings.TrimRight(host, "/"), Client: httpClient}}
}

// LookupUser resolves a handle to its DID, which serves as the account id
func (c *Client) LookupUser(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}

	resp, err := atproto.IdentityResolveHandle(ctx, c.xrpc, handle)
	if err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", handle, classify(err))
	}
	return resp.Did, nil
}

// UserPosts returns the actor's latest own posts newer than q.SinceID, newest first
func (c *Client) UserPosts(ctx context.Context, actor string, q source.Query) ([]models.Post, error) {
	filter := "posts_with_replies"
	if q.ExcludeReplies {
		filter = "posts_no_replies"
	}
	limit := int64(q.Limit)
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	resp, err := bsky.FeedGetAuthorFeed(ctx, c.xrpc, actor, "", filter, false, limit)
	if err != nil {
		return nil, fmt.Errorf("author feed %s: %w", actor, classify(err))
	}

	posts := make([]models.Post, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		if item.Post == nil {
			continue
		}
		if item.Reason != nil && item.Reason.FeedDefs_ReasonRepost != nil && q.ExcludeReposts {
			continue
		}

		post, err := toPost(item.Post)
		if err != nil {
			log.WithFields(log.Fields{"uri": item.Post.Uri, "error": err}).Debug("Skipping post")
			continue
		}
		if post.ID <= q.SinceID {
			continue
		}
		posts = append(posts, post)
	}
	models.SortDescending(posts)
	return posts, nil
}

func toPost(view *bsky.FeedDefs_PostView) (models.Post, error) {
	uri, err := syntax.ParseATURI(view.Uri)
	if err != nil {
		return models.Post{}, fmt.Errorf("parse uri: %w", err)
	}
	rkey := uri.RecordKey().String()
	tid, err := syntax.ParseTID(rkey)
	if err != nil {
		return models.Post{}, fmt.Errorf("record key %q is not a tid: %w", rkey, err)
	}

	if view.Record == nil {
		return models.Post{}, errors.New("post has no record")
	}
	record, ok := view.Record.Val.(*bsky.FeedPost)
	if !ok {
		return models.Post{}, fmt.Errorf("unexpected record type %T", view.Record.Val)
	}

	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	handle := ""
	if view.Author != nil {
		handle = view.Author.Handle
	}

	post := models.Post{
		ID:        int64(tid.Integer()),
		Text:      record.Text,
		CreatedAt: createdAt,
		Author:    handle,
		Permalink: fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey),
	}
	if len(record.Langs) > 0 {
		post.Language = strings.ToLower(strings.SplitN(record.Langs[0], "-", 2)[0])
	}
	return post, nil
}

func classify(err error) error {
	var xerr *xrpc.Error
	if errors.As(err, &xerr) && xerr.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return err
}
