// Package fov builds bounded LLM prompts from a foveated view of the
// tutoring session: four buffers at decreasing resolution, each with its own
// token budget pinned by the model tier.
package fov

import "strings"

type Tier string

const (
	TierCloud    Tier = "CLOUD"
	TierMidRange Tier = "MID_RANGE"
	TierOnDevice Tier = "ON_DEVICE"
	TierTiny     Tier = "TINY"
)

// TierForWindow buckets a model context window into a tier.
func TierForWindow(contextWindow int) Tier {
	switch {
	case contextWindow >= 100_000:
		return TierCloud
	case contextWindow >= 32_000:
		return TierMidRange
	case contextWindow >= 8_000:
		return TierOnDevice
	default:
		return TierTiny
	}
}

// knownWindows maps model name fragments to context windows for callers that
// only know the model name. Unknown models fall back to an on-device window.
var knownWindows = []struct {
	fragment string
	window   int
}{
	{"claude", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4", 128_000},
	{"gemini", 128_000},
	{"qwen", 32_768},
	{"llama", 8_192},
	{"phi", 4_096},
}

// WindowForModel resolves a model name to its context window size.
func WindowForModel(model string) int {
	lower := strings.ToLower(model)
	for _, k := range knownWindows {
		if strings.Contains(lower, k.fragment) {
			return k.window
		}
	}
	return 8_192
}

func TierForModel(model string) Tier {
	return TierForWindow(WindowForModel(model))
}

// Budgets are per-buffer token allowances. Components sum exactly to Total.
type Budgets struct {
	Immediate int
	Working   int
	Episodic  int
	Semantic  int
	Total     int
	MaxTurns  int
}

var tierBudgets = map[Tier]Budgets{
	TierCloud:    {Immediate: 4000, Working: 4000, Episodic: 2500, Semantic: 1500, Total: 12000, MaxTurns: 20},
	TierMidRange: {Immediate: 3000, Working: 2500, Episodic: 1500, Semantic: 1000, Total: 8000, MaxTurns: 12},
	TierOnDevice: {Immediate: 1500, Working: 1500, Episodic: 700, Semantic: 300, Total: 4000, MaxTurns: 6},
	TierTiny:     {Immediate: 1000, Working: 600, Episodic: 300, Semantic: 100, Total: 2000, MaxTurns: 3},
}

func (t Tier) Budgets() Budgets {
	b, ok := tierBudgets[t]
	if !ok {
		return tierBudgets[TierTiny]
	}
	return b
}

// EstimateTokens approximates the token count as chars/4, rounded up.
func EstimateTokens(s string) int {
	return (len([]rune(s)) + 3) / 4
}

// truncate enforces a token budget: over-budget text is hard-cut at
// budget*4-3 chars with an ellipsis, so the result never exceeds the budget.
func truncate(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(s) <= budget {
		return s
	}
	runes := []rune(s)
	cut := budget*4 - 3
	if cut > len(runes) {
		cut = len(runes)
	}
	return string(runes[:cut]) + "..."
}
