package bluesky_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"postrelay/bluesky"
	"postrelay/source"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedItem(rkey, text, lang, reason string) string {
	langs := ""
	if lang != "" {
		langs = fmt.Sprintf(`, "langs": [%q]`, lang)
	}
	reasonJSON := ""
	if reason != "" {
		reasonJSON = fmt.Sprintf(`, "reason": {"$type": %q, "by": {"did": "did:plc:other", "handle": "other.test"}, "indexedAt": "2024-05-01T10:00:00Z"}`, reason)
	}
	return fmt.Sprintf(`{
		"post": {
			"uri": "at://did:plc:alice/app.bsky.feed.post/%s",
			"cid": "bafyreie5737gdxlw5i64vzichcalba3z2v5n6icifvx5xytvske7mr3hpm",
			"author": {"did": "did:plc:alice", "handle": "alice.test"},
			"record": {"$type": "app.bsky.feed.post", "text": %q, "createdAt": "2024-05-01T10:00:00Z"%s},
			"indexedAt": "2024-05-01T10:00:00Z"
		}%s
	}`, rkey, text, langs, reasonJSON)
}

func TestUserPosts(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMicro()
	older := syntax.NewTID(base, 0)
	newer := syntax.NewTID(base+1000, 0)
	reposted := syntax.NewTID(base+2000, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/app.bsky.feed.getAuthorFeed", r.URL.Path)
		assert.Equal(t, "did:plc:alice", r.URL.Query().Get("actor"))
		assert.Equal(t, "posts_no_replies", r.URL.Query().Get("filter"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"feed": [%s, %s, %s]}`,
			feedItem(reposted.String(), "shared", "en", "app.bsky.feed.defs#reasonRepost"),
			feedItem(older.String(), "first", "", ""),
			feedItem(newer.String(), "second", "ja-JP", ""),
		)
	}))
	defer srv.Close()

	client := bluesky.NewClient(srv.URL, srv.Client())
	posts, err := client.UserPosts(context.Background(), "did:plc:alice", source.Query{Limit: 10, ExcludeReplies: true, ExcludeReposts: true})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, int64(newer.Integer()), posts[0].ID)
	assert.Equal(t, "second", posts[0].Text)
	assert.Equal(t, "ja", posts[0].Language)
	assert.Equal(t, "https://bsky.app/profile/alice.test/post/"+newer.String(), posts[0].Permalink)

	assert.Equal(t, int64(older.Integer()), posts[1].ID)
	assert.Equal(t, "", posts[1].Language)

	since, err := client.UserPosts(context.Background(), "did:plc:alice", source.Query{SinceID: int64(older.Integer()), Limit: 10, ExcludeReplies: true, ExcludeReposts: true})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(newer.Integer()), since[0].ID)
}

func TestLookupUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/com.atproto.identity.resolveHandle", r.URL.Path)
		assert.Equal(t, "alice.test", r.URL.Query().Get("handle"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"did": "did:plc:alice"}`))
	}))
	defer srv.Close()

	client := bluesky.NewClient(srv.URL, srv.Client())

	did, err := client.LookupUser(context.Background(), "@alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)

	did, err = client.LookupUser(context.Background(), "did:plc:bob")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:bob", did)
}

func TestRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "RateLimitExceeded", "message": "slow down"}`))
	}))
	defer srv.Close()

	_, err := bluesky.NewClient(srv.URL, srv.Client()).UserPosts(context.Background(), "did:plc:alice", source.Query{Limit: 10})
	assert.ErrorIs(t, err, source.ErrRateLimited)
}
