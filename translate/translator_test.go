package translate_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"postrelay/translate"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider records calls and answers through fn
type stubProvider struct {
	name        string
	unavailable bool
	fn          func(call int, text string) (string, error)
	calls       []string
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Available() bool { return !s.unavailable }

func (s *stubProvider) Translate(_ context.Context, text string) (string, error) {
	s.calls = append(s.calls, text)
	return s.fn(len(s.calls), text)
}

func sequence(results ...string) func(int, string) (string, error) {
	return func(call int, _ string) (string, error) {
		return results[call-1], nil
	}
}

func TestTranslate(t *testing.T) {
	ctx := context.Background()

	t.Run("blank text skips providers", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: sequence()}
		tr := translate.New([]translate.Provider{p}, nil)

		assert.Equal(t, "   ", tr.Translate(ctx, "   "))
		assert.Empty(t, p.calls)
	})

	t.Run("single chunk", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: sequence("translated")}
		tr := translate.New([]translate.Provider{p}, nil)

		assert.Equal(t, "translated", tr.Translate(ctx, "Hello"))
		assert.Equal(t, []string{"Hello"}, p.calls)
	})

	t.Run("chunking respects limit and whitespace", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: sequence("T1", "T2", "T3", "T4")}
		tr := translate.New([]translate.Provider{p}, nil, translate.WithChunkLimit(3))

		assert.Equal(t, "T1T2 T3T4", tr.Translate(ctx, "Hello world"))
		assert.Equal(t, []string{"Hel", "lo", "wor", "ld"}, p.calls)
	})

	t.Run("original returned when translation missing", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: func(int, string) (string, error) { return "", nil }}
		tr := translate.New([]translate.Provider{p}, nil)

		assert.Equal(t, "Hello", tr.Translate(ctx, "Hello"))
	})

	t.Run("limit is capped at maximum", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: sequence("X", "Y")}
		tr := translate.New([]translate.Provider{p}, nil, translate.WithChunkLimit(1000))

		assert.Equal(t, "XY", tr.Translate(ctx, strings.Repeat("a", 500)))
		require.Len(t, p.calls, 2)
		assert.Len(t, p.calls[0], 400)
		assert.Len(t, p.calls[1], 100)
	})

	t.Run("failed chunks keep their source text", func(t *testing.T) {
		p := &stubProvider{name: "stub", fn: func(call int, text string) (string, error) {
			if call == 2 {
				return "", errors.New("boom")
			}
			return strings.ToUpper(text), nil
		}}
		tr := translate.New([]translate.Provider{p}, nil, translate.WithChunkLimit(5))

		assert.Equal(t, "ONE. two. THREE", tr.Translate(ctx, "one. two. three"))
	})
}

func TestTokenProtection(t *testing.T) {
	upper := &stubProvider{name: "upper", fn: func(_ int, text string) (string, error) {
		return strings.ToUpper(text), nil
	}}
	tr := translate.New([]translate.Provider{upper}, nil)

	out := tr.Translate(context.Background(), "ping @alice about $FOO at https://example.com/path?q=1 today")

	assert.Equal(t, "PING @alice ABOUT $FOO AT https://example.com/path?q=1 TODAY", out)
	assert.NotContains(t, upper.calls[0], "@alice")
	assert.NotContains(t, upper.calls[0], "https://")
}

func TestTokenProtectionSmallChunks(t *testing.T) {
	wrap := &stubProvider{name: "wrap", fn: func(_ int, text string) (string, error) {
		return "<" + text + ">", nil
	}}
	tr := translate.New([]translate.Provider{wrap}, nil, translate.WithChunkLimit(5))

	out := tr.Translate(context.Background(), "hi @alice ok")

	assert.Contains(t, out, "@alice")
	assert.Equal(t, []string{"hi ", "__TOK0__", " ok"}, wrap.calls)
}

func TestProviderChain(t *testing.T) {
	ctx := context.Background()

	failing := &stubProvider{name: "first", fn: func(int, string) (string, error) { return "", errors.New("down") }}
	unconfigured := &stubProvider{name: "second", unavailable: true, fn: sequence("never")}
	working := &stubProvider{name: "third", fn: sequence("ok")}
	duplicate := &stubProvider{name: "first", fn: sequence("never")}

	tr := translate.New([]translate.Provider{failing, unconfigured, duplicate, working}, nil)
	assert.Equal(t, "ok", tr.Translate(ctx, "Hello"))

	assert.Len(t, failing.calls, 1)
	assert.Empty(t, unconfigured.calls)
	assert.Empty(t, duplicate.calls)
	assert.Len(t, working.calls, 1)
}

func TestNoProviders(t *testing.T) {
	tr := translate.New(nil, nil)
	assert.Equal(t, "Hello there", tr.Translate(context.Background(), "Hello there"))
}

type suffixNormalizer struct{}

func (suffixNormalizer) Normalize(text string) string { return text + "!" }

func TestNormalizerApplied(t *testing.T) {
	p := &stubProvider{name: "stub", fn: sequence("hi")}
	tr := translate.New([]translate.Provider{p}, nil, translate.WithNormalizer(suffixNormalizer{}))

	assert.Equal(t, "hi!", tr.Translate(context.Background(), "Hello"))
}

func TestCacheIsIdempotentWithinTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	path := filepath.Join(t.TempDir(), "cache.json")

	p := &stubProvider{name: "stub", fn: func(call int, _ string) (string, error) {
		return fmt.Sprintf("v%d", call), nil
	}}
	cache := translate.OpenCache(path, 180*24*time.Hour, translate.WithClock(clock))
	tr := translate.New([]translate.Provider{p}, cache)

	assert.Equal(t, "v1", tr.Translate(context.Background(), "Hello"))
	assert.Equal(t, "v1", tr.Translate(context.Background(), "Hello"))
	assert.Len(t, p.calls, 1)

	// A fresh process reads the persisted entry
	reloaded := translate.OpenCache(path, 180*24*time.Hour, translate.WithClock(clock))
	cached, ok := reloaded.Get("Hello")
	require.True(t, ok)
	assert.Equal(t, "v1", cached)

	now = now.Add(181 * 24 * time.Hour)
	assert.Equal(t, "v2", tr.Translate(context.Background(), "Hello"))
	assert.Len(t, p.calls, 2)
}

func TestFailuresAreNotCached(t *testing.T) {
	fail := true
	p := &stubProvider{name: "stub", fn: func(int, string) (string, error) {
		if fail {
			return "", errors.New("down")
		}
		return "ok", nil
	}}
	tr := translate.New([]translate.Provider{p}, translate.OpenCache("", 0))

	assert.Equal(t, "Hello", tr.Translate(context.Background(), "Hello"))
	fail = false
	assert.Equal(t, "ok", tr.Translate(context.Background(), "Hello"))
}

func TestBuildProviders(t *testing.T) {
	providers := translate.BuildProviders([]string{" LIBRE", "mymemory", "bogus", "libre", ""}, translate.ProviderConfig{})

	require.Len(t, providers, 2)
	assert.Equal(t, "libre", providers[0].Name())
	assert.False(t, providers[0].Available())
	assert.Equal(t, "mymemory", providers[1].Name())
	assert.True(t, providers[1].Available())
}

func TestMyMemoryProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en|zh-TW", r.URL.Query().Get("langpair"))
		if r.URL.Query().Get("q") == "quota" {
			fmt.Fprint(w, `{"responseData":{"translatedText":"MYMEMORY WARNING"},"responseStatus":429}`)
			return
		}
		fmt.Fprint(w, `{"responseData":{"translatedText":"你好"},"responseStatus":200}`)
	}))
	defer srv.Close()

	p := &translate.MyMemory{Endpoint: srv.URL, Client: srv.Client()}

	out, err := p.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", out)

	_, err = p.Translate(context.Background(), "quota")
	assert.Error(t, err)
}

func TestLibreProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "en", r.PostForm.Get("source"))
		assert.Equal(t, "zh", r.PostForm.Get("target"))
		assert.Equal(t, "secret", r.PostForm.Get("api_key"))
		switch r.PostForm.Get("q") {
		case "legacy":
			fmt.Fprint(w, `{"translation":"舊"}`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"translatedText":"新"}`)
		}
	}))
	defer srv.Close()

	p := &translate.Libre{Endpoint: srv.URL, APIKey: "secret", Client: srv.Client()}
	require.True(t, p.Available())

	out, err := p.Translate(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "新", out)

	out, err = p.Translate(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, "舊", out)

	_, err = p.Translate(context.Background(), "broken")
	assert.Error(t, err)
}

func TestScriptNormalizerFallsBack(t *testing.T) {
	n := translate.NewScriptNormalizer("none")
	assert.Equal(t, "汉字", n.Normalize("汉字"))
}
