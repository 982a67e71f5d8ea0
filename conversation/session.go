// Package conversation ties a tutoring session together: state machine,
// conversation history, foveated context building, and confidence tracking.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/conversation/confidence"
	"github.com/voxlearn/voxlearn/conversation/fov"
	"github.com/voxlearn/voxlearn/shared/id"
)

type State string

const (
	StateIdle         State = "idle"
	StatePlaying      State = "playing"
	StateUserSpeaking State = "user_speaking"
	StateAIThinking   State = "ai_thinking"
	StateAISpeaking   State = "ai_speaking"
	StatePaused       State = "paused"
	StateEnded        State = "ended"
)

// transitions is the allowed lifecycle graph. Ended is terminal.
var transitions = map[State][]State{
	StateIdle:         {StatePlaying, StateEnded},
	StatePlaying:      {StatePaused, StateUserSpeaking, StateAIThinking, StateAISpeaking, StateEnded},
	StatePaused:       {StatePlaying, StateEnded},
	StateUserSpeaking: {StateAIThinking, StatePlaying, StateEnded},
	StateAIThinking:   {StateAISpeaking, StatePlaying, StateEnded},
	StateAISpeaking:   {StatePlaying, StateUserSpeaking, StateEnded},
	StateEnded:        {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event is one entry in the session's event log.
type Event struct {
	Type   string    `json:"type"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Metrics are per-session counters.
type Metrics struct {
	TotalTurns     int `json:"total_turns"`
	BargeInCount   int `json:"barge_in_count"`
	ExpansionCount int `json:"expansion_count"`
}

// Session is one live tutoring conversation.
type Session struct {
	ID           string
	CurriculumID string

	mu                sync.Mutex
	state             State
	context           *fov.Manager
	monitor           *confidence.Monitor
	history           []fov.Turn
	events            []Event
	metrics           Metrics
	autoExpandContext bool
	startedAt         time.Time
	endedAt           time.Time
}

// SessionOptions configure a new conversation session.
type SessionOptions struct {
	CurriculumID      string
	ContextWindow     int
	BasePrompt        string
	AutoExpandContext bool
}

func NewSession(opts SessionOptions) *Session {
	window := opts.ContextWindow
	if window <= 0 {
		window = 8_192
	}
	return &Session{
		ID:                id.NewSession(),
		CurriculumID:      opts.CurriculumID,
		state:             StateIdle,
		context:           fov.NewManager(window, opts.BasePrompt),
		monitor:           confidence.NewMonitor(),
		autoExpandContext: opts.AutoExpandContext,
		startedAt:         time.Now(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session along the lifecycle graph.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return fmt.Errorf("cannot transition session from %s to %s", s.state, to)
	}
	s.logEventLocked("state_change", fmt.Sprintf("%s -> %s", s.state, to))
	s.state = to
	if to == StateEnded {
		s.endedAt = time.Now()
	}
	return nil
}

// Context exposes the foveated context manager for topic and curriculum
// mutations.
func (s *Session) Context() *fov.Manager {
	return s.context
}

// AddUserTurn appends a user utterance. A barge-in also lands in the
// immediate buffer so the next prompt reflects the interruption.
func (s *Session) AddUserTurn(text string, bargeIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, fov.Turn{
		Role: "user", Content: text, Timestamp: time.Now(), IsBargeIn: bargeIn,
	})
	s.metrics.TotalTurns++
	if bargeIn {
		s.metrics.BargeInCount++
		s.context.RecordBargeIn(text)
		s.logEventLocked("barge_in", text)
	}
}

func (s *Session) AddAssistantTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, fov.Turn{
		Role: "assistant", Content: text, Timestamp: time.Now(),
	})
	s.metrics.TotalTurns++
	s.context.ClearBargeIn()
}

// BuildMessages renders the bounded prompt for the next LLM call.
func (s *Session) BuildMessages() []fov.Message {
	s.mu.Lock()
	history := append([]fov.Turn(nil), s.history...)
	s.mu.Unlock()
	return s.context.BuildMessagesForLLM(history, "")
}

// ProcessResponseWithConfidence scores an LLM response. The recommendation is
// non-nil only when auto-expansion is enabled.
func (s *Session) ProcessResponseWithConfidence(response string) (confidence.Analysis, *confidence.Recommendation) {
	analysis := s.monitor.Analyze(response)
	if !s.autoExpandContext {
		return analysis, nil
	}
	rec := s.monitor.Recommend(analysis)
	if rec.ShouldExpand {
		s.mu.Lock()
		s.metrics.ExpansionCount++
		s.logEventLocked("context_expansion", string(rec.Scope))
		s.mu.Unlock()
	}
	return analysis, &rec
}

func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateEnded
}

func (s *Session) logEventLocked(eventType, detail string) {
	s.events = append(s.events, Event{Type: eventType, Detail: detail, At: time.Now()})
}
