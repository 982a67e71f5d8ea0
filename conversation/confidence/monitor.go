// Package confidence scores LLM responses for uncertainty with hand-tuned
// lexical heuristics and recommends when the tutoring context should expand.
package confidence

import (
	"regexp"
	"strings"
	"sync"
)

type Marker string

const (
	MarkerHedging      Marker = "HEDGING"
	MarkerOutOfScope   Marker = "OUT_OF_SCOPE"
	MarkerKnowledgeGap Marker = "KNOWLEDGE_GAP"
	MarkerVague        Marker = "VAGUE_LANGUAGE"
)

type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendDeclining Trend = "DECLINING"
	TrendStable    Trend = "STABLE"
)

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

type Scope string

const (
	ScopeRelatedTopics  Scope = "RELATED_TOPICS"
	ScopeFullCurriculum Scope = "FULL_CURRICULUM"
	ScopeCurrentUnit    Scope = "CURRENT_UNIT"
	ScopeCurrentTopic   Scope = "CURRENT_TOPIC"
)

// hedgingWeights are per-phrase uncertainty contributions. The values are
// hand-tuned; tests assert them exactly.
var hedgingWeights = map[string]float64{
	"i'm not sure":     0.8,
	"i am not sure":    0.8,
	"not certain":      0.7,
	"maybe":            0.6,
	"perhaps":          0.6,
	"possibly":         0.6,
	"hard to say":      0.6,
	"it might be":      0.5,
	"i guess":          0.5,
	"i think":          0.4,
	"i believe":        0.4,
	"if i recall":      0.4,
	"as far as i know": 0.3,
}

const deflectionWeight = 0.8

var deflectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`i can'?t help with that`),
	regexp.MustCompile(`(outside|beyond) (my|the) scope`),
	regexp.MustCompile(`i'?m not able to (answer|help|assist)`),
	regexp.MustCompile(`that'?s not something i can`),
}

const knowledgeGapWeight = 0.9

var knowledgeGapPatterns = []*regexp.Regexp{
	regexp.MustCompile(`i don'?t have (information|data|details) (about|on)`),
	regexp.MustCompile(`i don'?t know (about|much about|anything about)`),
	regexp.MustCompile(`no (information|data) (about|on|available)`),
	regexp.MustCompile(`wasn'?t (covered|included) in`),
}

var vagueWeights = map[string]float64{
	"stuff":     0.3,
	"somehow":   0.3,
	"thing":     0.2,
	"things":    0.2,
	"something": 0.2,
	"generally": 0.2,
	"various":   0.2,
	"several":   0.1,
	"some":      0.1,
}

// Weights combine the four category scores into the composite uncertainty.
type Weights struct {
	Hedging    float64
	Deflection float64
	Gap        float64
	Vague      float64
}

var DefaultWeights = Weights{Hedging: 0.25, Deflection: 0.3, Gap: 0.35, Vague: 0.1}

const (
	DefaultExpansionThreshold = 0.5
	windowSize                = 10
	trendDelta                = 0.1
)

// Analysis is the scored breakdown of one response.
type Analysis struct {
	Confidence      float64  `json:"confidence"`
	Uncertainty     float64  `json:"uncertainty"`
	HedgingScore    float64  `json:"hedging_score"`
	DeflectionScore float64  `json:"deflection_score"`
	GapScore        float64  `json:"gap_score"`
	VagueScore      float64  `json:"vague_score"`
	Markers         []Marker `json:"markers"`
	Trend           Trend    `json:"trend"`
}

func (a Analysis) HasMarker(m Marker) bool {
	for _, got := range a.Markers {
		if got == m {
			return true
		}
	}
	return false
}

// Recommendation says whether and how far the context should expand.
type Recommendation struct {
	ShouldExpand bool     `json:"should_expand"`
	Priority     Priority `json:"priority"`
	Scope        Scope    `json:"scope"`
	Reason       string   `json:"reason"`
}

// Monitor keeps a rolling window of confidence scores. Safe for concurrent
// use; analysis never fails, worst case the scores come out neutral.
type Monitor struct {
	mu        sync.Mutex
	weights   Weights
	threshold float64
	window    []float64
}

func NewMonitor() *Monitor {
	return &Monitor{weights: DefaultWeights, threshold: DefaultExpansionThreshold}
}

func NewMonitorWithThreshold(threshold float64) *Monitor {
	return &Monitor{weights: DefaultWeights, threshold: threshold}
}

// Analyze scores one response and appends the confidence to the window.
func (m *Monitor) Analyze(text string) Analysis {
	lower := strings.ToLower(text)

	a := Analysis{
		HedgingScore:    hedgingScore(lower),
		DeflectionScore: deflectionScore(lower),
		GapScore:        knowledgeGapScore(lower),
		VagueScore:      vagueScore(lower),
	}

	if a.HedgingScore > 0 {
		a.Markers = append(a.Markers, MarkerHedging)
	}
	if a.DeflectionScore > 0 {
		a.Markers = append(a.Markers, MarkerOutOfScope)
	}
	if a.GapScore > 0 {
		a.Markers = append(a.Markers, MarkerKnowledgeGap)
	}
	if a.VagueScore > 0 {
		a.Markers = append(a.Markers, MarkerVague)
	}

	uncertainty := a.HedgingScore*m.weights.Hedging +
		a.DeflectionScore*m.weights.Deflection +
		a.GapScore*m.weights.Gap +
		a.VagueScore*m.weights.Vague
	// A deflection or knowledge-gap hit is a hard signal: the composite
	// must not dilute it below the marker's own score.
	if hard := max64(a.DeflectionScore, a.GapScore); hard > uncertainty {
		uncertainty = hard
	}
	a.Uncertainty = clamp01(uncertainty)
	a.Confidence = clamp01(1 - a.Uncertainty)

	m.mu.Lock()
	m.window = append(m.window, a.Confidence)
	if len(m.window) > windowSize {
		m.window = m.window[len(m.window)-windowSize:]
	}
	a.Trend = trendLocked(m.window)
	m.mu.Unlock()

	return a
}

// Recommend turns an analysis into an expansion decision.
func (m *Monitor) Recommend(a Analysis) Recommendation {
	highSignal := a.HasMarker(MarkerKnowledgeGap) || a.HasMarker(MarkerOutOfScope)
	declining := a.Trend == TrendDeclining

	rec := Recommendation{
		ShouldExpand: a.Confidence < m.threshold || highSignal || declining,
	}
	if !rec.ShouldExpand {
		rec.Priority = PriorityLow
		rec.Scope = ScopeCurrentTopic
		return rec
	}

	switch {
	case a.Confidence < 0.3:
		rec.Priority = PriorityHigh
	case a.Confidence < 0.5:
		rec.Priority = PriorityMedium
	default:
		rec.Priority = PriorityLow
	}

	switch {
	case a.HasMarker(MarkerOutOfScope):
		rec.Scope = ScopeRelatedTopics
		rec.Reason = "response deflected outside the current scope"
	case a.HasMarker(MarkerKnowledgeGap):
		rec.Scope = ScopeFullCurriculum
		rec.Reason = "response reported missing information"
	case declining:
		rec.Scope = ScopeCurrentUnit
		rec.Reason = "confidence trending down"
	default:
		rec.Scope = ScopeCurrentTopic
		rec.Reason = "confidence below threshold"
	}
	return rec
}

// CurrentTrend reports the trend over the rolling window.
func (m *Monitor) CurrentTrend() Trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return trendLocked(m.window)
}

// Window returns a copy of the rolling confidence scores.
func (m *Monitor) Window() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.window...)
}

func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = nil
}

// hedgingScore is the mean weight of the matched hedging phrases, capped at 1.
func hedgingScore(lower string) float64 {
	var sum float64
	matches := 0
	for phrase, weight := range hedgingWeights {
		if strings.Contains(lower, phrase) {
			sum += weight
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return clamp01(sum / float64(matches))
}

func deflectionScore(lower string) float64 {
	for _, re := range deflectionPatterns {
		if re.MatchString(lower) {
			return deflectionWeight
		}
	}
	return 0
}

func knowledgeGapScore(lower string) float64 {
	for _, re := range knowledgeGapPatterns {
		if re.MatchString(lower) {
			return knowledgeGapWeight
		}
	}
	return 0
}

// vagueScore sums per-word weights, counting each word at most three times,
// normalized by text length so long answers are not penalized for incidental
// filler.
func vagueScore(lower string) float64 {
	var sum float64
	words := strings.Fields(lower)
	counts := make(map[string]int)
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'")
		if _, ok := vagueWeights[w]; ok {
			counts[w]++
		}
	}
	for w, n := range counts {
		if n > 3 {
			n = 3
		}
		sum += vagueWeights[w] * float64(n)
	}
	norm := 1 + float64(min(500, len(lower)))/500
	return clamp01(sum / norm)
}

func trendLocked(window []float64) Trend {
	if len(window) < 3 {
		return TrendStable
	}
	recent := window[len(window)-3:]
	older := window[:len(window)-3]
	if len(older) == 0 {
		return TrendStable
	}
	diff := mean(recent) - mean(older)
	switch {
	case diff > trendDelta:
		return TrendImproving
	case diff < -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
