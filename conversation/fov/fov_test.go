package fov

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, TierCloud, TierForWindow(100_000))
	assert.Equal(t, TierMidRange, TierForWindow(99_999))
	assert.Equal(t, TierOnDevice, TierForWindow(8_000))
	assert.Equal(t, TierTiny, TierForWindow(7_999))
}

func TestBudgetsSumToTotal(t *testing.T) {
	for tier, b := range tierBudgets {
		sum := b.Immediate + b.Working + b.Episodic + b.Semantic
		assert.Equal(t, b.Total, sum, "tier %s", tier)
	}
}

func TestTruncatePolicy(t *testing.T) {
	long := strings.Repeat("a", 1000)

	out := truncate(long, 10)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, EstimateTokens(out), 10)
	assert.Len(t, out, 10*4)

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "", truncate(long, 0), "budget 0 renders empty")
}

func TestImmediateBufferPriorityOrder(t *testing.T) {
	b := &ImmediateBuffer{
		RecentTurns: []Turn{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "first answer"},
		},
		BargeInUtterance: "wait, stop",
		CurrentSegment:   "the mitochondrion is",
	}

	out := b.render(1000)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "[USER INTERRUPTED]: wait, stop", lines[0])
	assert.Equal(t, "[INTERRUPTED CONTENT]: the mitochondrion is", lines[1])
	// Turns render newest first so truncation drops the oldest.
	assert.Equal(t, "Tutor: first answer", lines[2])
	assert.Equal(t, "User: first question", lines[3])
}

func TestWorkingBufferCapsLists(t *testing.T) {
	b := &WorkingBuffer{
		TopicTitle:            "Cell Biology",
		GlossaryTerms:         []string{"a", "b", "c", "d", "e", "f", "g"},
		MisconceptionTriggers: []string{"m1", "m2", "m3", "m4"},
	}

	out := b.render(1000)
	assert.Contains(t, out, "KEY TERMS: a, b, c, d, e")
	assert.NotContains(t, out, "f")
	assert.Contains(t, out, "m3")
	assert.NotContains(t, out, "m4")
}

func TestSemanticBufferPosition(t *testing.T) {
	b := &SemanticBuffer{
		Position: Position{Title: "Intro Biology", CurrentTopicIndex: 3, TotalTopics: 10},
	}
	out := b.render(100)
	assert.Contains(t, out, "Topic 4/10")
}

func TestBuildMessagesTrimsAndBounds(t *testing.T) {
	m := NewManager(200_000, "You are a patient voice tutor.")
	require.Equal(t, TierCloud, m.Tier())

	m.SetCurriculumPosition(Position{
		Title: "Intro Biology", CurrentTopicIndex: 3, TotalTopics: 10,
	}, "", nil, nil)

	history := make([]Turn, 25)
	for i := range history {
		history[i] = Turn{Role: "user", Content: strings.Repeat("x", 200)}
	}

	messages := m.BuildMessagesForLLM(history, "")
	// 1 system + last 20 turns.
	require.Len(t, messages, 21)
	assert.Equal(t, "system", messages[0].Role)
	assert.LessOrEqual(t, len(messages[0].Content), 12000*4)
}

func TestBuildContextBargeIn(t *testing.T) {
	m := NewManager(200_000, "base")
	fc := m.BuildContext([]Turn{{Role: "user", Content: "hello"}}, "actually wait")
	assert.Contains(t, fc.Immediate, "[USER INTERRUPTED]: actually wait")

	sys := fc.SystemMessage()
	assert.Contains(t, sys, "=== IMMEDIATE CONTEXT ===")
	assert.True(t, strings.HasPrefix(sys, "base"))
}

func TestRenderedBuffersRespectBudgets(t *testing.T) {
	m := NewManager(4_096, "tiny tutor") // TINY tier
	require.Equal(t, TierTiny, m.Tier())

	m.SetCurrentTopic(Topic{
		ID: "t1", Title: "Photosynthesis", Content: strings.Repeat("chlorophyll ", 500),
	})
	for i := 0; i < 20; i++ {
		m.RecordUserQuestion(strings.Repeat("why ", 100))
	}

	fc := m.BuildContext(nil, "")
	b := m.Budgets()
	assert.LessOrEqual(t, EstimateTokens(fc.Working), b.Working)
	assert.LessOrEqual(t, EstimateTokens(fc.Episodic), b.Episodic)
	assert.LessOrEqual(t, EstimateTokens(fc.SystemMessage()), b.Total)
}

func TestEpisodicBounds(t *testing.T) {
	m := NewManager(200_000, "")
	for i := 0; i < 15; i++ {
		m.RecordTopicCompletion("t", "Topic", 0.9)
		m.RecordUserQuestion("q")
	}
	snap := m.StateSnapshot()
	assert.Equal(t, maxTopicSummaries, snap["topic_summaries"])
	assert.Equal(t, maxUserQuestions, snap["user_questions"])
}

func TestResetClearsBuffers(t *testing.T) {
	m := NewManager(200_000, "base")
	m.SetCurrentTopic(Topic{ID: "t1", Title: "Cells"})
	m.RecordBargeIn("stop")
	m.Reset()

	snap := m.StateSnapshot()
	assert.Equal(t, "", snap["current_topic"])
	assert.Equal(t, false, snap["barge_in"])
}
