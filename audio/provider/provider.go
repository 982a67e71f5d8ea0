// Package provider defines the closed set of upstream TTS providers.
//
// The set is deliberately not an open registry: only chatterbox carries the
// extra synthesis knobs, and the cache key derivation has to mirror that shape
// exactly, so the compiler should know every variant.
package provider

import "fmt"

type ID string

const (
	VibeVoice  ID = "vibevoice"
	Piper      ID = "piper"
	Chatterbox ID = "chatterbox"
)

func All() []ID {
	return []ID{VibeVoice, Piper, Chatterbox}
}

func (id ID) Valid() bool {
	switch id {
	case VibeVoice, Piper, Chatterbox:
		return true
	}
	return false
}

// SampleRate returns the fixed output sample rate of the provider.
func (id ID) SampleRate() int {
	if id == Piper {
		return 22050
	}
	return 24000
}

func Parse(s string) (ID, error) {
	id := ID(s)
	if !id.Valid() {
		return "", fmt.Errorf("unknown TTS provider %q", s)
	}
	return id, nil
}

// VoiceConfig is a complete synthesis configuration. Two callers with equal
// configs share cache entries, which is the cross-user sharing guarantee.
type VoiceConfig struct {
	VoiceID    string             `json:"voice_id"`
	Provider   ID                 `json:"provider"`
	Speed      float64            `json:"speed"`
	Chatterbox *ChatterboxOptions `json:"chatterbox,omitempty"`
}

// ChatterboxOptions are synthesis knobs only the chatterbox upstream accepts.
// For any other provider they are dropped from both the request body and the
// cache key.
type ChatterboxOptions struct {
	Exaggeration *float64 `json:"exaggeration,omitempty"`
	CFGWeight    *float64 `json:"cfg_weight,omitempty"`
	Language     string   `json:"language,omitempty"`
}
