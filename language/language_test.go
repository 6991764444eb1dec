package language

import (
	"testing"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/stretchr/testify/assert"
)

func TestToLingua(t *testing.T) {
	assert.Equal(t, []lingua.Language{lingua.English, lingua.Japanese}, toLingua([]string{"en", " JA ", "xx", "en"}))
	assert.Empty(t, toLingua([]string{"zz"}))
}

func TestDetect(t *testing.T) {
	detector := NewDetector([]string{"en", "de"})

	assert.Equal(t, "en", detector.Detect("The quick brown fox jumps over the lazy dog and runs away"))
	assert.Equal(t, "de", detector.Detect("Der schnelle braune Fuchs springt über den faulen Hund"))
	assert.Equal(t, Fallback, detector.Detect("   "))
}

func TestFixed(t *testing.T) {
	assert.Equal(t, "en", Fixed("en").Detect("bonjour tout le monde"))
}
