package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func f64(v float64) *float64 { return &v }

func TestKeyDeterminism(t *testing.T) {
	a := NewKey("Hello, world.", "nova", provider.VibeVoice, 1.0, nil)
	b := NewKey("Hello, world.", "nova", provider.VibeVoice, 1.0, nil)

	assert.Equal(t, a, b)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)
}

func TestKeyProviderChangesHash(t *testing.T) {
	a := NewKey("Hello, world.", "nova", provider.VibeVoice, 1.0, nil)
	b := NewKey("Hello, world.", "nova", provider.Piper, 1.0, nil)

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestKeyTextNormalization(t *testing.T) {
	a := NewKey("  Hello,   world.\n", "nova", provider.VibeVoice, 1.0, nil)
	b := NewKey("Hello, world.", "nova", provider.VibeVoice, 1.0, nil)

	assert.Equal(t, a.Hash(), b.Hash(), "trim and whitespace collapse should not change the key")

	c := NewKey("hello, world.", "nova", provider.VibeVoice, 1.0, nil)
	assert.NotEqual(t, a.Hash(), c.Hash(), "case is preserved")
}

func TestKeySpeedRounding(t *testing.T) {
	a := NewKey("text", "nova", provider.VibeVoice, 1.004, nil)
	b := NewKey("text", "nova", provider.VibeVoice, 0.995, nil)

	assert.Equal(t, 1.0, a.Speed)
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestKeyDropsChatterboxFieldsForOtherProviders(t *testing.T) {
	opts := &provider.ChatterboxOptions{Exaggeration: f64(0.7), CFGWeight: f64(0.5), Language: "en"}

	vibe := NewKey("text", "nova", provider.VibeVoice, 1.0, opts)
	plain := NewKey("text", "nova", provider.VibeVoice, 1.0, nil)

	assert.Nil(t, vibe.Exaggeration)
	assert.Nil(t, vibe.CFGWeight)
	assert.Empty(t, vibe.Language)
	assert.Equal(t, plain.Hash(), vibe.Hash(), "stray chatterbox fields must not split the shared entry")
}

func TestKeyChatterboxFieldsIncluded(t *testing.T) {
	base := NewKey("text", "nova", provider.Chatterbox, 1.0, nil)
	tuned := NewKey("text", "nova", provider.Chatterbox, 1.0, &provider.ChatterboxOptions{Exaggeration: f64(0.7)})

	assert.NotEqual(t, base.Hash(), tuned.Hash())
	assert.Equal(t, 0.7, *tuned.Exaggeration)

	lang := NewKey("text", "nova", provider.Chatterbox, 1.0, &provider.ChatterboxOptions{Language: "de"})
	assert.NotEqual(t, base.Hash(), lang.Hash())
}
