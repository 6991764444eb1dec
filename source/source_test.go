package source_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"postrelay/language"
	"postrelay/models"
	"postrelay/source"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	posts   []models.Post
	err     error
	queries []source.Query
}

func (f *fakeAPI) LookupUser(_ context.Context, handle string) (string, error) {
	return "id-" + handle, nil
}

func (f *fakeAPI) UserPosts(_ context.Context, _ string, q source.Query) ([]models.Post, error) {
	f.queries = append(f.queries, q)
	return f.posts, f.err
}

func ids(posts []models.Post) []int64 {
	return lo.Map(posts, func(p models.Post, _ int) int64 { return p.ID })
}

func writeFixture(t *testing.T, records string) *source.Fixture {
	path := filepath.Join(t.TempDir(), "fake_alice.json")
	require.NoError(t, os.WriteFile(path, []byte(records), 0o644))
	return source.NewFixture(path)
}

func TestReplay(t *testing.T) {
	fixture := writeFixture(t, `[
		{"id": "1", "text": "one", "created_at": "2024-01-01T00:00:00Z"},
		{"id": "2", "text": "two", "created_at": "2024-01-02T00:00:00Z"},
		{"id": "3", "text": "three", "created_at": "2024-01-03T00:00:00Z"}
	]`)
	replay := source.NewReplay(fixture, "", nil)

	tests := []struct {
		name     string
		since    int64
		limit    int
		expected []int64
	}{
		{name: "since one", since: 1, limit: 10, expected: []int64{3, 2}},
		{name: "absent since", since: 0, limit: 10, expected: []int64{3, 2, 1}},
		{name: "truncated", since: 0, limit: 2, expected: []int64{3, 2}},
		{name: "caught up", since: 3, limit: 10, expected: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := replay.FetchSince(context.Background(), "alice", tt.since, tt.limit)
			assert.Equal(t, tt.expected, ids(posts))
		})
	}
}

func TestReplayDefaults(t *testing.T) {
	fixture := writeFixture(t, `[{"id": "7", "text": "hi", "created_at": "not a date"}]`)

	posts := source.NewReplay(fixture, "", nil).FetchSince(context.Background(), "alice", 0, 10)
	require.Len(t, posts, 1)
	assert.Equal(t, models.DefaultLanguage, posts[0].Language)
	assert.WithinDuration(t, time.Now(), posts[0].CreatedAt, time.Minute)

	posts = source.NewReplay(fixture, "", language.Fixed("ja")).FetchSince(context.Background(), "alice", 0, 10)
	assert.Equal(t, "ja", posts[0].Language)
}

func TestReplayLookup(t *testing.T) {
	fixture := source.NewFixture(filepath.Join(t.TempDir(), "missing.json"))

	id, err := source.NewReplay(fixture, "", nil).LookupUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	id, err = source.NewReplay(fixture, "42", nil).LookupUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	assert.Empty(t, source.NewReplay(fixture, "", nil).FetchSince(context.Background(), "alice", 0, 10))
}

func TestFixtureAppend(t *testing.T) {
	fixture := source.NewFixture(filepath.Join(t.TempDir(), "nested", "fake.json"))
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, fixture.Append([]models.Post{{ID: 10, Text: "ten", CreatedAt: created}, {ID: 9, Text: "nine", CreatedAt: created}}))
	require.NoError(t, fixture.Append([]models.Post{{ID: 11, Text: "eleven", CreatedAt: created}, {ID: 10, Text: "dup", CreatedAt: created}}))

	posts, err := fixture.Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 10, 11}, ids(posts))
	assert.Equal(t, "ten", posts[1].Text)
	assert.Equal(t, created, posts[0].CreatedAt)
}

func TestLiveFetch(t *testing.T) {
	api := &fakeAPI{posts: []models.Post{{ID: 5, Language: "ja"}, {ID: 4}, {ID: 3}}}
	live := source.NewLive(api, source.WithExclusions(true, false))

	posts := live.FetchSince(context.Background(), "u1", 2, 2)

	assert.Equal(t, []int64{5, 4}, ids(posts))
	assert.Equal(t, []string{"ja", "en"}, lo.Map(posts, func(p models.Post, _ int) string { return p.Language }))
	require.Len(t, api.queries, 1)
	assert.Equal(t, source.Query{SinceID: 2, Limit: 2, ExcludeReplies: true, ExcludeReposts: false}, api.queries[0])
}

func TestLiveRateLimited(t *testing.T) {
	api := &fakeAPI{posts: []models.Post{{ID: 1}}, err: fmt.Errorf("timeline: %w", source.ErrRateLimited)}
	var waited []time.Duration
	live := source.NewLive(api, source.WithCooldown(time.Minute, func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}))

	assert.Empty(t, live.FetchSince(context.Background(), "u1", 0, 10))
	assert.Equal(t, []time.Duration{time.Minute}, waited)
}

func TestLiveFailureIsEmpty(t *testing.T) {
	live := source.NewLive(&fakeAPI{err: errors.New("boom")})
	assert.Empty(t, live.FetchSince(context.Background(), "u1", 0, 10))
}

func TestLiveRecords(t *testing.T) {
	fixture := source.NewFixture(filepath.Join(t.TempDir(), "fake.json"))
	api := &fakeAPI{posts: []models.Post{{ID: 8, Text: "b"}, {ID: 7, Text: "a"}}}
	live := source.NewLive(api, source.WithRecorder(fixture))

	live.FetchSince(context.Background(), "u1", 0, 10)

	replayed := source.NewReplay(fixture, "", nil).FetchSince(context.Background(), "u1", 0, 10)
	assert.Equal(t, []int64{8, 7}, ids(replayed))
}
