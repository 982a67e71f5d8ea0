package kb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxlearn/voxlearn/audio/pool"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/audio/wavutil"
)

type fakeTTS struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTTS) Generate(ctx context.Context, req pool.Request) (*pool.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	audio := wavutil.WrapPCM(make([]byte, 2400), req.Provider.SampleRate())
	return &pool.Result{
		Audio:           audio,
		SampleRate:      req.Provider.SampleRate(),
		DurationSeconds: wavutil.EstimateDuration(len(audio), req.Provider.SampleRate()),
	}, nil
}

var kbVoice = provider.VoiceConfig{VoiceID: "nova", Provider: provider.VibeVoice, Speed: 1.0}

func testContent() ModuleContent {
	return ModuleContent{Questions: []Question{
		{
			ID:          "q1",
			Question:    "What is the powerhouse of the cell?",
			Answer:      "The mitochondrion.",
			Hints:       []string{"It has a double membrane.", ""},
			Explanation: "Mitochondria produce ATP.",
		},
		{
			ID:       "q2",
			Question: "What is two plus two?",
			Answer:   "Four.",
		},
	}}
}

func TestExtractSegments(t *testing.T) {
	segments := ExtractSegments(testContent())

	// q1: question, answer, hint_0 (hint_1 empty, skipped), explanation; q2: question, answer.
	require.Len(t, segments, 6)
	assert.Equal(t, SegmentQuestion, segments[0].Type)
	assert.Equal(t, "hint_0.wav", segments[2].FileName())
	assert.Equal(t, SegmentExplanation, segments[3].Type)
	assert.Equal(t, "q2", segments[4].QuestionID)
}

func TestPrefetchModuleLayoutAndManifest(t *testing.T) {
	base := t.TempDir()
	tts := &fakeTTS{}
	m := NewManager(base, tts)

	result, err := m.PrefetchModule(context.Background(), "mod-1", testContent(), kbVoice, false)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 6, result.Generated)
	assert.False(t, result.Cancelled)

	for _, rel := range []string{
		"mod-1/q1/question.wav",
		"mod-1/q1/answer.wav",
		"mod-1/q1/hint_0.wav",
		"mod-1/q1/explanation.wav",
		"mod-1/q2/question.wav",
		"mod-1/q2/answer.wav",
		"mod-1/manifest.json",
	} {
		_, err := os.Stat(filepath.Join(base, rel))
		assert.NoError(t, err, rel)
	}

	manifest, err := m.Manifest("mod-1")
	require.NoError(t, err)
	assert.Equal(t, "mod-1", manifest.ModuleID)
	require.Len(t, manifest.Questions, 2)
	assert.Equal(t, "q1", manifest.Questions[0].QuestionID)
	assert.Len(t, manifest.Questions[0].Files, 4)
	assert.Greater(t, manifest.TotalSize, int64(0))
	assert.Greater(t, manifest.TotalDuration, 0.0)
}

func TestPrefetchModuleReusesExistingFiles(t *testing.T) {
	base := t.TempDir()
	tts := &fakeTTS{}
	m := NewManager(base, tts)

	_, err := m.PrefetchModule(context.Background(), "mod-1", testContent(), kbVoice, false)
	require.NoError(t, err)
	firstCalls := tts.calls

	result, err := m.PrefetchModule(context.Background(), "mod-1", testContent(), kbVoice, false)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Reused)
	assert.Equal(t, 0, result.Generated)
	assert.Equal(t, firstCalls, tts.calls)

	// forceRegenerate regenerates everything.
	result, err = m.PrefetchModule(context.Background(), "mod-1", testContent(), kbVoice, true)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Generated)
}

func TestPrefetchModuleCancelledSkipsManifest(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, &fakeTTS{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := m.PrefetchModule(ctx, "mod-1", testContent(), kbVoice, false)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)

	_, err = os.Stat(filepath.Join(base, "mod-1", "manifest.json"))
	assert.True(t, os.IsNotExist(err), "cancelled runs must not write a manifest")
}

func TestGetAudioPathTraversal(t *testing.T) {
	m := NewManager(t.TempDir(), &fakeTTS{})

	cases := []struct {
		module, question string
	}{
		{"", "q1"},
		{"..", "q1"},
		{"mod-1", "../../etc"},
		{"mod/1", "q1"},
		{`mod\1`, "q1"},
		{"/abs", "q1"},
		{"mod-1", "q1/../.."},
	}
	for _, tc := range cases {
		_, err := m.GetAudio(tc.module, tc.question, SegmentQuestion, 0)
		assert.ErrorIs(t, err, ErrInvalidPath, "module=%q question=%q", tc.module, tc.question)
	}

	_, err := m.GetAudio("mod-1", "q1", SegmentType("secrets"), 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = m.GetAudio("mod-1", "q1", SegmentHint, -1)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestGetAudioRoundTrip(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, &fakeTTS{})

	_, err := m.PrefetchModule(context.Background(), "mod-1", testContent(), kbVoice, false)
	require.NoError(t, err)

	audio, err := m.GetAudio("mod-1", "q1", SegmentQuestion, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, audio)

	hint, err := m.GetAudio("mod-1", "q1", SegmentHint, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hint)
}

func TestFeedbackAudio(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, &fakeTTS{})

	require.NoError(t, m.GenerateFeedbackAudio(context.Background(), kbVoice))

	audio, err := m.GetFeedbackAudio(FeedbackCorrect)
	require.NoError(t, err)
	assert.NotEmpty(t, audio)

	_, err = m.GetFeedbackAudio(FeedbackType("../../etc/passwd"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCoverageStatus(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, &fakeTTS{})
	content := testContent()

	status, err := m.GetCoverageStatus("mod-1", content)
	require.NoError(t, err)
	assert.Equal(t, 6, status.Expected)
	assert.Equal(t, 0, status.Present)
	assert.Equal(t, 0.0, status.Percent)

	_, err = m.PrefetchModule(context.Background(), "mod-1", content, kbVoice, false)
	require.NoError(t, err)

	status, err = m.GetCoverageStatus("mod-1", content)
	require.NoError(t, err)
	assert.Equal(t, 6, status.Present)
	assert.Equal(t, 0, status.Missing)
	assert.Equal(t, 100.0, status.Percent)

	// Remove one file and the percentage drops.
	require.NoError(t, os.Remove(filepath.Join(base, "mod-1", "q2", "answer.wav")))
	status, err = m.GetCoverageStatus("mod-1", content)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Present)
	assert.InDelta(t, 83.3, status.Percent, 0.1)
}
