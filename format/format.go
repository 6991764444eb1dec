// Package format renders a post into the chat message text.
package format

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"postrelay/models"
)

const (
	separator = "--------------------------------"
	// MaxMessageLength is the chat service's content limit
	MaxMessageLength = 2000
	ellipsis         = "…"
)

var taipei = time.FixedZone("UTC+8", 8*60*60)

// Translator is the subset of the translation subsystem the formatter needs
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Options controls message rendering
type Options struct {
	Handle             string
	EmbedDomain        string
	IncludeTranslation bool
}

// Formatter renders posts, asking the translator for English posts
type Formatter struct {
	opts       Options
	translator Translator
}

// New creates a formatter. translator may be nil when translation is off.
func New(opts Options, translator Translator) *Formatter {
	if opts.EmbedDomain == "" {
		opts.EmbedDomain = "twitter.com"
	}
	return &Formatter{opts: opts, translator: translator}
}

// Localize formats t in the fixed UTC+8 offset
func Localize(t time.Time) string {
	return t.In(taipei).Format("2006-01-02 15:04:05") + " UTC+8"
}

// PostURL builds the canonical link for a post
func PostURL(embedDomain, handle string, post models.Post) string {
	if post.Permalink != "" {
		return post.Permalink
	}
	return fmt.Sprintf("https://%s/%s/status/%d", embedDomain, handle, post.ID)
}

// Render builds the message for post. It never fails, a missing
// translation renders as an empty translation line.
func (f *Formatter) Render(ctx context.Context, post models.Post) string {
	url := PostURL(f.opts.EmbedDomain, f.opts.Handle, post)
	created := Localize(post.CreatedAt)
	original := post.EffectiveText()

	var detail string
	if f.opts.IncludeTranslation && strings.EqualFold(post.Language, models.DefaultLanguage) {
		translated := ""
		if f.translator != nil {
			translated = f.translator.Translate(ctx, original)
		}
		detail = "翻譯: " + translated
	} else {
		detail = "日期: " + created
	}

	header := separator + "\n\n推文（" + created + "）:\n"
	footer := "\n\n網址: " + url + "\n\n"
	return fit(header, original, detail, footer)
}

// fit shortens the body so the whole message stays within MaxMessageLength.
// The translation line is trimmed before the original text, the header and
// URL are always kept.
func fit(header, original, detail, footer string) string {
	fixed := utf8.RuneCountInString(header) + utf8.RuneCountInString(footer) + 2
	budget := MaxMessageLength - fixed
	o, d := utf8.RuneCountInString(original), utf8.RuneCountInString(detail)
	if o+d > budget {
		keepOriginal := min(o, max(budget/2, budget-d))
		original = shorten(original, keepOriginal)
		detail = shorten(detail, budget-utf8.RuneCountInString(original))
	}
	return header + original + "\n\n" + detail + footer
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	return string(runes[:n-1]) + ellipsis
}
