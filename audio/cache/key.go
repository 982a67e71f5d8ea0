package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/voxlearn/voxlearn/audio/provider"
	"golang.org/x/text/unicode/norm"
)

// Key identifies one synthesized utterance. Two requests that would produce
// byte-identical audio must derive equal keys, so all rounding and
// normalization happens here rather than at call sites.
type Key struct {
	TextHash string
	VoiceID  string
	Provider provider.ID
	Speed    float64

	// Chatterbox-only. Forced to unset for any other provider so that
	// callers passing stray values still share the same entry.
	Exaggeration *float64
	CFGWeight    *float64
	Language     string
}

// NewKey derives a cache key from a raw synthesis request.
func NewKey(text, voiceID string, prov provider.ID, speed float64, opts *provider.ChatterboxOptions) Key {
	k := Key{
		TextHash: hashText(text),
		VoiceID:  voiceID,
		Provider: prov,
		Speed:    round2(speed),
	}
	if prov == provider.Chatterbox && opts != nil {
		if opts.Exaggeration != nil {
			v := round2(*opts.Exaggeration)
			k.Exaggeration = &v
		}
		if opts.CFGWeight != nil {
			v := round2(*opts.CFGWeight)
			k.CFGWeight = &v
		}
		k.Language = opts.Language
	}
	return k
}

// Hash returns the 16-hex-char identifier used as the cache filename.
// Optional components appear in a fixed order so equal keys always collide.
func (k Key) Hash() string {
	var b strings.Builder
	b.WriteString(k.TextHash)
	b.WriteByte('|')
	b.WriteString(k.VoiceID)
	b.WriteByte('|')
	b.WriteString(string(k.Provider))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(k.Speed, 'f', 2, 64))
	if k.Exaggeration != nil {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(*k.Exaggeration, 'f', 2, 64))
	}
	if k.CFGWeight != nil {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(*k.CFGWeight, 'f', 2, 64))
	}
	if k.Language != "" {
		b.WriteByte('|')
		b.WriteString(k.Language)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// hashText normalizes the text (trim, NFC, collapse whitespace, case
// preserved) and returns the first 16 hex chars of its SHA-256.
func hashText(text string) string {
	normalized := norm.NFC.String(strings.TrimSpace(text))
	normalized = strings.Join(strings.Fields(normalized), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
