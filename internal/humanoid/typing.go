// internal/humanoid/typing.go
package humanoid

import (
	"time"
	"unicode"
)

// keyboardNeighbors maps each key to its physical QWERTY neighbors, used to
// pick plausible mistyped characters.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// Typo describes a corrected slip: the wrong neighbor key is pressed, then
// backspaced, then the intended key follows via KeyStroke.Delay.
type Typo struct {
	Rune rune
	// RecognitionDelay is the pause before the backspace, modeling the moment
	// the mistake is noticed.
	RecognitionDelay time.Duration
	// CorrectionDelay is the pause between the backspace and the retype.
	CorrectionDelay time.Duration
}

// KeyStroke is one intended character of a typing plan.
type KeyStroke struct {
	Rune rune
	// Delay is the pause before this key goes down. When a hesitation was
	// rolled it holds the hesitation instead of a base delay.
	Delay      time.Duration
	Hesitation bool
	// Typo, when set, is played in full before the intended key.
	Typo *Typo
}

// Plan is a full typing cadence for one string. Strokes has exactly one
// entry per rune of the input, in order; typos never change the final text.
type Plan struct {
	Strokes []KeyStroke
}

// Duration sums the plan's pauses, counting the extra beats of typo plays.
func (p Plan) Duration() time.Duration {
	var total time.Duration
	for _, s := range p.Strokes {
		total += s.Delay
		if s.Typo != nil {
			total += s.Typo.RecognitionDelay + s.Typo.CorrectionDelay
		}
	}
	return total
}

// PlanTyping builds the cadence for text. Per-key delays are uniform within
// the configured band; a small fraction of keys trade the base delay for a
// longer hesitation, and with the configured typo rate a key is preceded by a
// corrected neighbor slip.
func (h *Humanoid) PlanTyping(text string) Plan {
	runes := []rune(text)
	strokes := make([]KeyStroke, len(runes))

	for i, r := range runes {
		stroke := KeyStroke{Rune: r, Delay: h.keyDelay()}

		if h.rng.Float64() < h.cfg.HesitationRate {
			stroke.Hesitation = true
			stroke.Delay = h.hesitationDelay()
		}

		if h.rng.Float64() < h.cfg.TypoRate {
			if typo := h.planTypo(r); typo != nil {
				stroke.Typo = typo
			}
		}

		strokes[i] = stroke
	}

	return Plan{Strokes: strokes}
}

func (h *Humanoid) hesitationDelay() time.Duration {
	span := h.cfg.HesitationMax - h.cfg.HesitationMin
	if span <= 0 {
		return h.cfg.HesitationMin
	}
	return h.cfg.HesitationMin + time.Duration(h.rng.Int63n(int64(span)))
}

// planTypo picks a neighbor slip for the intended key, or nil when the key
// has no mapped neighbors (whitespace, punctuation outside the map).
func (h *Humanoid) planTypo(intended rune) *Typo {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(intended)]
	if !ok || len(neighbors) == 0 {
		return nil
	}

	wrong := rune(neighbors[h.rng.Intn(len(neighbors))])
	if unicode.IsUpper(intended) && h.rng.Float64() < 0.8 {
		wrong = unicode.ToUpper(wrong)
	}

	return &Typo{
		Rune:             wrong,
		RecognitionDelay: h.keyDelay() + h.hesitationDelay(),
		CorrectionDelay:  h.keyDelay(),
	}
}
