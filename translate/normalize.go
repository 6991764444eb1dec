package translate

import (
	"github.com/longbridgeapp/opencc"
	log "github.com/sirupsen/logrus"
)

// Normalizer post-processes provider output
type Normalizer interface {
	Normalize(text string) string
}

// Identity leaves text unchanged
type Identity struct{}

func (Identity) Normalize(text string) string { return text }

// scriptConverter converts Simplified Chinese output into Traditional
type scriptConverter struct {
	cc *opencc.OpenCC
}

func (s *scriptConverter) Normalize(text string) string {
	out, err := s.cc.Convert(text)
	if err != nil || out == "" {
		return text
	}
	return out
}

// NewScriptNormalizer returns an OpenCC converter for profile (e.g. "s2t",
// "s2tw", "s2twp"). If the converter cannot be built the identity is used.
func NewScriptNormalizer(profile string) Normalizer {
	if profile == "" || profile == "none" {
		return Identity{}
	}
	cc, err := opencc.New(profile)
	if err != nil {
		log.WithFields(log.Fields{"profile": profile, "error": err}).Warn("Script converter unavailable, output left as returned")
		return Identity{}
	}
	return &scriptConverter{cc: cc}
}
