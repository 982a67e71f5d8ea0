package fov

import (
	"fmt"
	"strings"
	"time"
)

// Turn is one exchange in the conversation history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsBargeIn bool      `json:"is_barge_in,omitempty"`
}

// ImmediateBuffer holds what the learner is reacting to right now.
type ImmediateBuffer struct {
	RecentTurns           []Turn
	BargeInUtterance      string
	CurrentSegment        string
	InterruptedAtPosition int
}

// render emits highest-priority content first so budget truncation sacrifices
// the oldest turns, not the interruption.
func (b *ImmediateBuffer) render(budget int) string {
	var parts []string
	if b.BargeInUtterance != "" {
		parts = append(parts, "[USER INTERRUPTED]: "+b.BargeInUtterance)
	}
	if b.CurrentSegment != "" {
		parts = append(parts, "[INTERRUPTED CONTENT]: "+b.CurrentSegment)
	}
	for i := len(b.RecentTurns) - 1; i >= 0; i-- {
		t := b.RecentTurns[i]
		label := "User"
		if t.Role == "assistant" {
			label = "Tutor"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, t.Content))
	}
	return truncate(strings.Join(parts, "\n"), budget)
}

// WorkingBuffer holds the topic currently being taught.
type WorkingBuffer struct {
	TopicID               string
	TopicTitle            string
	TopicContent          string
	LearningObjectives    []string
	GlossaryTerms         []string
	MisconceptionTriggers []string
}

func (b *WorkingBuffer) render(budget int) string {
	if b.TopicTitle == "" && b.TopicContent == "" {
		return ""
	}
	var sb strings.Builder
	if b.TopicTitle != "" {
		fmt.Fprintf(&sb, "CURRENT TOPIC: %s\n", b.TopicTitle)
	}
	if len(b.LearningObjectives) > 0 {
		sb.WriteString("LEARNING OBJECTIVES:\n")
		for _, obj := range b.LearningObjectives {
			fmt.Fprintf(&sb, "- %s\n", obj)
		}
	}
	if b.TopicContent != "" {
		fmt.Fprintf(&sb, "TOPIC OUTLINE:\n%s\n", b.TopicContent)
	}
	if len(b.GlossaryTerms) > 0 {
		terms := b.GlossaryTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		fmt.Fprintf(&sb, "KEY TERMS: %s\n", strings.Join(terms, ", "))
	}
	if len(b.MisconceptionTriggers) > 0 {
		triggers := b.MisconceptionTriggers
		if len(triggers) > 3 {
			triggers = triggers[:3]
		}
		sb.WriteString("COMMON MISCONCEPTIONS:\n")
		for _, m := range triggers {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}
	return truncate(strings.TrimRight(sb.String(), "\n"), budget)
}

// TopicSummary records a completed topic with its mastery estimate in [0,1].
type TopicSummary struct {
	TopicID string
	Title   string
	Mastery float64
}

// LearnerSignals are running counters of how the learner is doing.
type LearnerSignals struct {
	ClarificationRequests int
	RepetitionRequests    int
	ConfusionIndicators   int
	PacePreference        string
	TopicsMastered        []string
	StrugglingConcepts    []string
}

// EpisodicBuffer summarizes the session so far.
type EpisodicBuffer struct {
	TopicSummaries []TopicSummary
	UserQuestions  []string
	Signals        LearnerSignals
	SessionStart   time.Time
}

const (
	maxTopicSummaries = 10
	maxUserQuestions  = 10
)

func (b *EpisodicBuffer) render(budget int) string {
	var sb strings.Builder
	if !b.SessionStart.IsZero() {
		minutes := int(time.Since(b.SessionStart).Minutes())
		fmt.Fprintf(&sb, "Session started %s, running for %d minutes\n",
			b.SessionStart.Format("15:04"), minutes)
	}
	if b.Signals.ClarificationRequests > 0 {
		fmt.Fprintf(&sb, "Clarification requests: %d\n", b.Signals.ClarificationRequests)
	}
	if b.Signals.RepetitionRequests > 0 {
		fmt.Fprintf(&sb, "Repetition requests: %d\n", b.Signals.RepetitionRequests)
	}
	if b.Signals.ConfusionIndicators > 0 {
		fmt.Fprintf(&sb, "Confusion indicators: %d\n", b.Signals.ConfusionIndicators)
	}
	if b.Signals.PacePreference != "" {
		fmt.Fprintf(&sb, "Pace preference: %s\n", b.Signals.PacePreference)
	}
	if len(b.TopicSummaries) > 0 {
		sb.WriteString("Topics covered:\n")
		summaries := b.TopicSummaries
		if len(summaries) > 5 {
			summaries = summaries[len(summaries)-5:]
		}
		for _, ts := range summaries {
			fmt.Fprintf(&sb, "- %s: %.0f%% mastery\n", ts.Title, ts.Mastery*100)
		}
	}
	if len(b.UserQuestions) > 0 {
		sb.WriteString("Recent questions:\n")
		questions := b.UserQuestions
		if len(questions) > 3 {
			questions = questions[len(questions)-3:]
		}
		for _, q := range questions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	return truncate(strings.TrimRight(sb.String(), "\n"), budget)
}

// Position locates the session within the curriculum.
type Position struct {
	CurriculumID      string
	Title             string
	CurrentTopicIndex int
	TotalTopics       int
	UnitTitle         string
	ModuleTitle       string
}

// SemanticBuffer holds the coarse curriculum frame.
type SemanticBuffer struct {
	CurriculumOutline  string
	Position           Position
	PrerequisiteTopics []string
	UpcomingTopics     []string
}

func (b *SemanticBuffer) render(budget int) string {
	if b.Position.Title == "" && b.CurriculumOutline == "" {
		return ""
	}
	var sb strings.Builder
	if b.Position.Title != "" {
		fmt.Fprintf(&sb, "Curriculum: %s\n", b.Position.Title)
	}
	if b.Position.TotalTopics > 0 {
		fmt.Fprintf(&sb, "Topic %d/%d\n", b.Position.CurrentTopicIndex+1, b.Position.TotalTopics)
	}
	if b.Position.UnitTitle != "" {
		fmt.Fprintf(&sb, "Unit: %s\n", b.Position.UnitTitle)
	}
	if b.CurriculumOutline != "" {
		fmt.Fprintf(&sb, "%s\n", b.CurriculumOutline)
	}
	if len(b.PrerequisiteTopics) > 0 {
		topics := b.PrerequisiteTopics
		if len(topics) > 3 {
			topics = topics[:3]
		}
		fmt.Fprintf(&sb, "Prerequisites: %s\n", strings.Join(topics, ", "))
	}
	if len(b.UpcomingTopics) > 0 {
		topics := b.UpcomingTopics
		if len(topics) > 3 {
			topics = topics[:3]
		}
		fmt.Fprintf(&sb, "Coming up: %s\n", strings.Join(topics, ", "))
	}
	return truncate(strings.TrimRight(sb.String(), "\n"), budget)
}
