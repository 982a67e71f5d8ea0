package fov

import (
	"strings"
	"sync"
	"time"
)

// Context is one fully rendered prompt: the four buffer renderings plus the
// base system prompt, each already within its budget.
type Context struct {
	BasePrompt string
	Semantic   string
	Working    string
	Episodic   string
	Immediate  string

	totalBudget int
}

// SystemMessage concatenates the sections under labelled headers. The
// combined text is itself capped at the tier's total budget.
func (c Context) SystemMessage() string {
	var sb strings.Builder
	sb.WriteString(c.BasePrompt)
	write := func(header, body string) {
		if body == "" {
			return
		}
		sb.WriteString("\n\n=== " + header + " ===\n")
		sb.WriteString(body)
	}
	write("CURRICULUM CONTEXT", c.Semantic)
	write("CURRENT TOPIC", c.Working)
	write("SESSION CONTEXT", c.Episodic)
	write("IMMEDIATE CONTEXT", c.Immediate)
	return truncate(sb.String(), c.totalBudget)
}

// Message is the provider-neutral chat message shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Manager owns the four buffers and renders bounded prompts from them.
// It does no I/O; all methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	tier       Tier
	budgets    Budgets
	basePrompt string

	immediate ImmediateBuffer
	working   WorkingBuffer
	episodic  EpisodicBuffer
	semantic  SemanticBuffer
}

// NewManager derives the tier from the model's context window.
func NewManager(contextWindow int, basePrompt string) *Manager {
	tier := TierForWindow(contextWindow)
	return &Manager{
		tier:       tier,
		budgets:    tier.Budgets(),
		basePrompt: basePrompt,
		episodic:   EpisodicBuffer{SessionStart: time.Now()},
	}
}

// NewManagerForModel derives the tier from a model name.
func NewManagerForModel(model, basePrompt string) *Manager {
	tier := TierForModel(model)
	return &Manager{
		tier:       tier,
		budgets:    tier.Budgets(),
		basePrompt: basePrompt,
		episodic:   EpisodicBuffer{SessionStart: time.Now()},
	}
}

func (m *Manager) Tier() Tier       { return m.tier }
func (m *Manager) Budgets() Budgets { return m.budgets }

// BuildContext renders all four buffers against their budgets. The last
// maxTurns entries of history land in the immediate buffer; bargeIn, when
// non-empty, takes the top priority slot.
func (m *Manager) BuildContext(history []Turn, bargeIn string) Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(history) > m.budgets.MaxTurns {
		history = history[len(history)-m.budgets.MaxTurns:]
	}
	m.immediate.RecentTurns = append([]Turn(nil), history...)
	if bargeIn != "" {
		m.immediate.BargeInUtterance = bargeIn
	}

	return Context{
		BasePrompt:  m.basePrompt,
		Semantic:    m.semantic.render(m.budgets.Semantic),
		Working:     m.working.render(m.budgets.Working),
		Episodic:    m.episodic.render(m.budgets.Episodic),
		Immediate:   m.immediate.render(m.budgets.Immediate),
		totalBudget: m.budgets.Total,
	}
}

// BuildMessagesForLLM returns the system message followed by the trimmed
// history as chat messages.
func (m *Manager) BuildMessagesForLLM(history []Turn, bargeIn string) []Message {
	fc := m.BuildContext(history, bargeIn)

	if len(history) > m.budgets.MaxTurns {
		history = history[len(history)-m.budgets.MaxTurns:]
	}
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: fc.SystemMessage()})
	for _, t := range history {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

func (m *Manager) SetCurrentSegment(text string, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediate.CurrentSegment = text
	m.immediate.InterruptedAtPosition = position
}

func (m *Manager) ClearCurrentSegment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediate.CurrentSegment = ""
	m.immediate.InterruptedAtPosition = 0
}

// Topic is the working-buffer payload for the topic being taught.
type Topic struct {
	ID                    string
	Title                 string
	Content               string
	LearningObjectives    []string
	GlossaryTerms         []string
	MisconceptionTriggers []string
}

func (m *Manager) SetCurrentTopic(t Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working = WorkingBuffer{
		TopicID:               t.ID,
		TopicTitle:            t.Title,
		TopicContent:          t.Content,
		LearningObjectives:    t.LearningObjectives,
		GlossaryTerms:         t.GlossaryTerms,
		MisconceptionTriggers: t.MisconceptionTriggers,
	}
}

func (m *Manager) SetCurriculumPosition(pos Position, outline string, prerequisites, upcoming []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.semantic = SemanticBuffer{
		CurriculumOutline:  outline,
		Position:           pos,
		PrerequisiteTopics: prerequisites,
		UpcomingTopics:     upcoming,
	}
}

// RecordTopicCompletion appends a summary, keeping the most recent ten.
func (m *Manager) RecordTopicCompletion(topicID, title string, mastery float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.TopicSummaries = append(m.episodic.TopicSummaries, TopicSummary{
		TopicID: topicID, Title: title, Mastery: mastery,
	})
	if n := len(m.episodic.TopicSummaries); n > maxTopicSummaries {
		m.episodic.TopicSummaries = m.episodic.TopicSummaries[n-maxTopicSummaries:]
	}
	if mastery >= 0.8 {
		m.episodic.Signals.TopicsMastered = append(m.episodic.Signals.TopicsMastered, title)
	}
}

func (m *Manager) RecordUserQuestion(question string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.UserQuestions = append(m.episodic.UserQuestions, question)
	if n := len(m.episodic.UserQuestions); n > maxUserQuestions {
		m.episodic.UserQuestions = m.episodic.UserQuestions[n-maxUserQuestions:]
	}
}

func (m *Manager) RecordClarificationRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.Signals.ClarificationRequests++
}

func (m *Manager) RecordRepetitionRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.Signals.RepetitionRequests++
}

func (m *Manager) RecordConfusion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.Signals.ConfusionIndicators++
}

func (m *Manager) SetPacePreference(pace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.Signals.PacePreference = pace
}

func (m *Manager) RecordStrugglingConcept(concept string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodic.Signals.StrugglingConcepts = append(m.episodic.Signals.StrugglingConcepts, concept)
}

func (m *Manager) RecordBargeIn(utterance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediate.BargeInUtterance = utterance
}

func (m *Manager) ClearBargeIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediate.BargeInUtterance = ""
}

// Reset re-initializes all four buffers; the tier and base prompt stay.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immediate = ImmediateBuffer{}
	m.working = WorkingBuffer{}
	m.episodic = EpisodicBuffer{SessionStart: time.Now()}
	m.semantic = SemanticBuffer{}
}

// StateSnapshot returns a debug view of the manager's internals.
func (m *Manager) StateSnapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"tier":                m.tier,
		"budgets":             m.budgets,
		"recent_turns":        len(m.immediate.RecentTurns),
		"barge_in":            m.immediate.BargeInUtterance != "",
		"current_topic":       m.working.TopicTitle,
		"topic_summaries":     len(m.episodic.TopicSummaries),
		"user_questions":      len(m.episodic.UserQuestions),
		"learner_signals":     m.episodic.Signals,
		"curriculum_position": m.semantic.Position,
	}
}
