// Package language guesses the language of posts that arrive untagged.
package language

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"
)

// Fallback is returned when nothing can be detected
const Fallback = "en"

// DefaultCandidates keeps the detector small. Relay accounts mostly post in these.
var DefaultCandidates = []string{"en", "zh", "ja", "ko", "es", "fr", "de", "pt", "ru"}

// Detector maps free text to an ISO 639-1 code
type Detector interface {
	Detect(text string) string
}

// Fixed always answers the same code
type Fixed string

func (f Fixed) Detect(string) string {
	return string(f)
}

type linguaDetector struct {
	detector lingua.LanguageDetector
}

// NewDetector builds a lingua detector restricted to the given ISO codes.
// Unknown codes are ignored, and an empty result falls back to DefaultCandidates.
func NewDetector(codes []string) Detector {
	languages := toLingua(codes)
	if len(languages) < 2 {
		languages = toLingua(DefaultCandidates)
	}

	return &linguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build(),
	}
}

func (d *linguaDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return Fallback
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Fallback
	}
	return isoCode(lang)
}

func isoCode(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}

// supported maps every lingua language to its ISO 639-1 code
func supported() map[string]lingua.Language {
	return lo.SliceToMap(lingua.AllLanguages(), func(lang lingua.Language) (string, lingua.Language) {
		return isoCode(lang), lang
	})
}

func toLingua(codes []string) []lingua.Language {
	known := supported()
	return lo.Uniq(lo.FilterMap(codes, func(code string, _ int) (lingua.Language, bool) {
		lang, ok := known[strings.ToLower(strings.TrimSpace(code))]
		return lang, ok
	}))
}
