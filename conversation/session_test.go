package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/conversation/confidence"
)

func newTestSession(autoExpand bool) *Session {
	return NewSession(SessionOptions{
		CurriculumID:      "cur-1",
		ContextWindow:     200_000,
		BasePrompt:        "You are a patient voice tutor.",
		AutoExpandContext: autoExpand,
	})
}

func TestLifecycleTransitions(t *testing.T) {
	s := newTestSession(false)
	require.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Transition(StatePlaying))
	require.NoError(t, s.Transition(StatePaused))
	require.NoError(t, s.Transition(StatePlaying))
	require.NoError(t, s.Transition(StateUserSpeaking))
	require.NoError(t, s.Transition(StateAIThinking))
	require.NoError(t, s.Transition(StateAISpeaking))
	require.NoError(t, s.Transition(StateEnded))

	// Ended is terminal.
	assert.Error(t, s.Transition(StatePlaying))
}

func TestInvalidTransitionsRejected(t *testing.T) {
	s := newTestSession(false)

	assert.Error(t, s.Transition(StateAISpeaking), "idle cannot jump to ai_speaking")
	assert.Error(t, s.Transition(StatePaused), "idle cannot pause")
	assert.Equal(t, StateIdle, s.State())
}

func TestBargeInFeedsImmediateBufferAndCounter(t *testing.T) {
	s := newTestSession(false)

	s.AddUserTurn("tell me about cells", false)
	s.AddAssistantTurn("Cells are the basic unit of life.")
	s.AddUserTurn("wait, what's an organelle?", true)

	m := s.Metrics()
	assert.Equal(t, 3, m.TotalTurns)
	assert.Equal(t, 1, m.BargeInCount)

	messages := s.BuildMessages()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0].Content, "[USER INTERRUPTED]: wait, what's an organelle?")
}

func TestAssistantTurnClearsBargeIn(t *testing.T) {
	s := newTestSession(false)
	s.AddUserTurn("stop", true)
	s.AddAssistantTurn("Sure, let's pause there.")

	messages := s.BuildMessages()
	assert.NotContains(t, messages[0].Content, "[USER INTERRUPTED]")
}

func TestProcessResponseWithConfidence(t *testing.T) {
	s := newTestSession(true)

	analysis, rec := s.ProcessResponseWithConfidence("I don't have information about that specific topic.")
	require.NotNil(t, rec)
	assert.True(t, rec.ShouldExpand)
	assert.Equal(t, confidence.ScopeFullCurriculum, rec.Scope)
	assert.Less(t, analysis.Confidence, 0.5)
	assert.Equal(t, 1, s.Metrics().ExpansionCount)

	// Without auto-expansion no recommendation is produced.
	s2 := newTestSession(false)
	_, rec2 := s2.ProcessResponseWithConfidence("I don't have information about that.")
	assert.Nil(t, rec2)
	assert.Equal(t, 0, s2.Metrics().ExpansionCount)
}

var testVoice = provider.VoiceConfig{VoiceID: "nova", Provider: provider.VibeVoice, Speed: 1.0}

func TestOneActiveUserSessionPerUser(t *testing.T) {
	m := NewManager()

	first := m.CreateUserSession("user-1", testVoice)
	conv, err := m.StartConversation("user-1", SessionOptions{ContextWindow: 200_000})
	require.NoError(t, err)

	second := m.CreateUserSession("user-1", testVoice)
	assert.NotEqual(t, first.ID, second.ID)

	// Replacing the user session ends the prior conversation.
	assert.True(t, conv.Ended())

	got, ok := m.GetUserSession("user-1")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestHeartbeatUpdatesPlayback(t *testing.T) {
	m := NewManager()
	m.CreateUserSession("user-1", testVoice)

	err := m.Heartbeat("user-1", PlaybackState{
		CurriculumID: "cur-1", TopicID: "t3", SegmentIndex: 2, IsPlaying: true,
	})
	require.NoError(t, err)

	us, _ := m.GetUserSession("user-1")
	assert.Equal(t, "t3", us.Playback.TopicID)
	assert.False(t, us.Playback.LastHeartbeat.IsZero())

	assert.Error(t, m.Heartbeat("user-unknown", PlaybackState{}))
}

func TestCleanupInactiveUserSessions(t *testing.T) {
	m := NewManager()
	stale := m.CreateUserSession("user-stale", testVoice)
	stale.LastActiveAt = time.Now().Add(-2 * time.Hour)
	m.CreateUserSession("user-fresh", testVoice)

	removed := m.CleanupInactiveUserSessions(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := m.GetUserSession("user-stale")
	assert.False(t, ok)
	_, ok = m.GetUserSession("user-fresh")
	assert.True(t, ok)
}

func TestCleanupEndedSessions(t *testing.T) {
	m := NewManager()
	m.CreateUserSession("user-1", testVoice)
	conv, err := m.StartConversation("user-1", SessionOptions{ContextWindow: 200_000})
	require.NoError(t, err)

	// Still referenced by the user session: kept even after ending.
	require.NoError(t, conv.Transition(StateEnded))
	assert.Equal(t, 0, m.CleanupEndedSessions())

	// A new conversation orphans the old one.
	_, err = m.StartConversation("user-1", SessionOptions{ContextWindow: 200_000})
	require.NoError(t, err)
	assert.Equal(t, 1, m.CleanupEndedSessions())

	_, conversations := m.Counts()
	assert.Equal(t, 1, conversations)
}
