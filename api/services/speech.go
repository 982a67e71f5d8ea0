package services

import (
	"context"
	"log/slog"

	"github.com/voxlearn/voxlearn/audio/cache"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
)

// SpeechService is the cache-aware live synthesis path: check the cache,
// fall through to the pool at live priority, store the result for the next
// caller with the same voice settings.
type SpeechService struct {
	cache *cache.Store
	tts   Synthesizer
}

func NewSpeechService(c *cache.Store, tts Synthesizer) *SpeechService {
	return &SpeechService{cache: c, tts: tts}
}

// SpeechResult is one synthesized utterance plus cache provenance.
type SpeechResult struct {
	Audio           []byte
	SampleRate      int
	DurationSeconds float64
	Cached          bool
}

// Speak serves audio for the given voice config, from cache when possible.
func (s *SpeechService) Speak(ctx context.Context, text string, voice provider.VoiceConfig) (*SpeechResult, error) {
	key := cache.NewKey(text, voice.VoiceID, voice.Provider, voice.Speed, voice.Chatterbox)

	if audio, entry, ok := s.cache.GetEntry(key); ok {
		return &SpeechResult{
			Audio:           audio,
			SampleRate:      entry.SampleRate,
			DurationSeconds: entry.DurationSeconds,
			Cached:          true,
		}, nil
	}

	result, err := s.tts.Generate(ctx, pool.Request{
		Text:       text,
		VoiceID:    voice.VoiceID,
		Provider:   voice.Provider,
		Speed:      voice.Speed,
		Chatterbox: voice.Chatterbox,
		Priority:   pool.Live,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(key, result.Audio, result.SampleRate, result.DurationSeconds); err != nil {
		// A failed cache write only costs the next caller a regeneration.
		slog.Warn("speech: cache put failed", "hash", key.Hash(), "error", err)
	}

	return &SpeechResult{
		Audio:           result.Audio,
		SampleRate:      result.SampleRate,
		DurationSeconds: result.DurationSeconds,
	}, nil
}
