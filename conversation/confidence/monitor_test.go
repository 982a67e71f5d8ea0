package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeutralResponseScoresFullConfidence(t *testing.T) {
	m := NewMonitor()
	a := m.Analyze("The mitochondrion produces ATP through cellular respiration.")

	assert.Equal(t, 1.0, a.Confidence)
	assert.Empty(t, a.Markers)

	rec := m.Recommend(a)
	assert.False(t, rec.ShouldExpand)
	assert.Equal(t, PriorityLow, rec.Priority)
	assert.Equal(t, ScopeCurrentTopic, rec.Scope)
}

func TestHedgingScoreIsMeanOfMatchedWeights(t *testing.T) {
	m := NewMonitor()
	// "i'm not sure" (0.8) and "maybe" (0.6) average to 0.7.
	a := m.Analyze("I'm not sure, maybe it's the cell wall.")

	assert.InDelta(t, 0.7, a.HedgingScore, 1e-9)
	assert.InDelta(t, 0.7*0.25, a.Uncertainty, 1e-9)
	assert.True(t, a.HasMarker(MarkerHedging))
}

func TestKnowledgeGapTriggersFullCurriculumExpansion(t *testing.T) {
	m := NewMonitor()
	a := m.Analyze("I don't have information about that specific topic.")

	assert.InDelta(t, knowledgeGapWeight, a.GapScore, 1e-9)
	assert.Less(t, a.Confidence, 0.5)
	require.True(t, a.HasMarker(MarkerKnowledgeGap))

	rec := m.Recommend(a)
	assert.True(t, rec.ShouldExpand)
	assert.Equal(t, PriorityHigh, rec.Priority)
	assert.Equal(t, ScopeFullCurriculum, rec.Scope)
}

func TestDeflectionTriggersRelatedTopics(t *testing.T) {
	m := NewMonitor()
	a := m.Analyze("That's beyond my scope for this lesson.")

	assert.InDelta(t, deflectionWeight, a.DeflectionScore, 1e-9)
	assert.True(t, a.HasMarker(MarkerOutOfScope))

	rec := m.Recommend(a)
	assert.True(t, rec.ShouldExpand)
	assert.Equal(t, ScopeRelatedTopics, rec.Scope)
}

func TestOutOfScopeOutranksKnowledgeGapForScope(t *testing.T) {
	m := NewMonitor()
	a := m.Analyze("That's beyond my scope and I don't have information about it either.")

	require.True(t, a.HasMarker(MarkerOutOfScope))
	require.True(t, a.HasMarker(MarkerKnowledgeGap))
	assert.Equal(t, ScopeRelatedTopics, m.Recommend(a).Scope)
}

func TestVagueLanguageNormalizedByLength(t *testing.T) {
	m := NewMonitor()
	a := m.Analyze("Some things are somehow stuff.")

	// some(0.1) + things(0.2) + somehow(0.3) + stuff(0.3) = 0.9,
	// normalized by 1 + 30/500.
	assert.InDelta(t, 0.9/(1+30.0/500), a.VagueScore, 1e-9)
	assert.True(t, a.HasMarker(MarkerVague))
}

func TestVagueWordCountCapsAtThree(t *testing.T) {
	m := NewMonitor()
	text := "stuff stuff stuff stuff stuff"
	a := m.Analyze(text)

	norm := 1 + float64(len(text))/500
	assert.InDelta(t, 0.3*3/norm, a.VagueScore, 1e-9)
}

func TestTrendDeclining(t *testing.T) {
	m := NewMonitor()
	confident := "The cell wall is rigid."
	uncertain := "I don't have information about that."

	for i := 0; i < 3; i++ {
		m.Analyze(confident)
	}
	var last Analysis
	for i := 0; i < 3; i++ {
		last = m.Analyze(uncertain)
	}

	assert.Equal(t, TrendDeclining, last.Trend)
	assert.Equal(t, ScopeFullCurriculum, m.Recommend(last).Scope, "gap scope wins over declining")
}

func TestTrendImproving(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		m.Analyze("I don't have information about that.")
	}
	for i := 0; i < 3; i++ {
		m.Analyze("The answer is photosynthesis.")
	}
	assert.Equal(t, TrendImproving, m.CurrentTrend())
}

func TestWindowIsBounded(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 15; i++ {
		m.Analyze("A plain answer.")
	}
	assert.Len(t, m.Window(), 10)
}

func TestDecliningTrendAloneExpandsToCurrentUnit(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		m.Analyze("A direct and complete answer.")
	}
	// Mild hedging drops confidence without any hard marker. Three in a row
	// turn the trend negative even though each score stays above threshold.
	var last Analysis
	for i := 0; i < 3; i++ {
		last = m.Analyze("I think it could be related to osmosis, maybe diffusion.")
	}

	require.Equal(t, TrendDeclining, last.Trend)
	require.False(t, last.HasMarker(MarkerKnowledgeGap))
	require.False(t, last.HasMarker(MarkerOutOfScope))
	assert.GreaterOrEqual(t, last.Confidence, 0.5)

	rec := m.Recommend(last)
	assert.True(t, rec.ShouldExpand)
	assert.Equal(t, ScopeCurrentUnit, rec.Scope)
}
