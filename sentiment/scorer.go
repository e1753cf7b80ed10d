// Package sentiment scores post text on a [-1, 1] scale before storage.
package sentiment

import (
	"math"
	"strings"
)

// Scorer maps text to a sentiment score in [-1, 1]. Implementations must be
// pure: the same text always yields the same score.
type Scorer interface {
	Score(text string) float64
}

// Func adapts a plain function to the Scorer interface.
type Func func(text string) float64

func (f Func) Score(text string) float64 { return f(text) }

// Lexicon is a word-valence scorer. Each token found in the lexicon
// contributes its valence; the sum is squashed into [-1, 1]. A "not"/"no"
// within the two tokens before a hit flips its sign.
type Lexicon struct {
	valence map[string]float64
}

// NewLexicon returns a scorer over the built-in valence table.
func NewLexicon() *Lexicon {
	return &Lexicon{valence: defaultValence}
}

func (l *Lexicon) Score(text string) float64 {
	tokens := tokenize(text)

	sum := 0.0
	for i, tok := range tokens {
		v, ok := l.valence[tok]
		if !ok {
			continue
		}
		if negated(tokens, i) {
			v = -v
		}
		sum += v
	}

	// Squash the unbounded sum into [-1, 1]; 15 keeps single strong words
	// around ±0.4.
	return sum / math.Sqrt(sum*sum+15)
}

func negated(tokens []string, i int) bool {
	for j := i - 2; j < i; j++ {
		if j < 0 {
			continue
		}
		if tokens[j] == "not" || tokens[j] == "no" || tokens[j] == "never" ||
			strings.HasSuffix(tokens[j], "n't") {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
}

var defaultValence = map[string]float64{
	"gain": 1.2, "gains": 1.2, "rally": 1.6, "rallies": 1.6, "surge": 1.8,
	"soar": 1.9, "soars": 1.9, "beat": 1.3, "beats": 1.3, "strong": 1.1,
	"bull": 1.4, "bullish": 1.7, "up": 0.8, "upgrade": 1.5, "upgraded": 1.5,
	"profit": 1.2, "profits": 1.2, "growth": 1.1, "record": 0.9, "buy": 0.9,
	"good": 1.0, "great": 1.6, "best": 1.8, "win": 1.4, "winning": 1.4,
	"recover": 1.0, "recovery": 1.0, "outperform": 1.5,

	"loss": -1.3, "losses": -1.3, "drop": -1.2, "drops": -1.2, "plunge": -1.8,
	"crash": -2.0, "tank": -1.7, "tanks": -1.7, "miss": -1.2, "misses": -1.2,
	"weak": -1.1, "bear": -1.4, "bearish": -1.7, "down": -0.8, "downgrade": -1.5,
	"downgraded": -1.5, "sell": -0.9, "selloff": -1.6, "bad": -1.0,
	"worst": -1.8, "lose": -1.4, "losing": -1.4, "fear": -1.3, "risk": -0.6,
	"lawsuit": -1.2, "recall": -1.1, "fraud": -1.9, "underperform": -1.5,
}
