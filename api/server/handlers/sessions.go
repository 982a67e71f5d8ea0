package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/voxlearn/voxlearn/conversation"
	"github.com/voxlearn/voxlearn/conversation/fov"
)

// SessionsHandler manages user playback sessions and their tutoring
// conversations.
type SessionsHandler struct {
	sessions *conversation.Manager
}

func NewSessionsHandler(m *conversation.Manager) *SessionsHandler {
	return &SessionsHandler{sessions: m}
}

func (h *SessionsHandler) CreateUserSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		voiceRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	voice, err := req.toVoiceConfig()
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	us := h.sessions.CreateUserSession(req.UserID, voice)
	respondJSON(w, us, http.StatusCreated)
}

func (h *SessionsHandler) GetUserSession(w http.ResponseWriter, r *http.Request) {
	us, ok := h.sessions.GetUserSession(chi.URLParam(r, "userID"))
	if !ok {
		respondError(w, "session not found", http.StatusNotFound)
		return
	}
	respondJSON(w, us, http.StatusOK)
}

func (h *SessionsHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var playback conversation.PlaybackState
	if err := json.NewDecoder(r.Body).Decode(&playback); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.sessions.Heartbeat(chi.URLParam(r, "userID"), playback); err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *SessionsHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurriculumID      string `json:"curriculum_id"`
		ContextWindow     int    `json:"context_window"`
		Model             string `json:"model"`
		BasePrompt        string `json:"base_prompt"`
		AutoExpandContext bool   `json:"auto_expand_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	window := req.ContextWindow
	if window <= 0 && req.Model != "" {
		window = fov.WindowForModel(req.Model)
	}

	session, err := h.sessions.StartConversation(chi.URLParam(r, "userID"), conversation.SessionOptions{
		CurriculumID:      req.CurriculumID,
		ContextWindow:     window,
		BasePrompt:        req.BasePrompt,
		AutoExpandContext: req.AutoExpandContext,
	})
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, map[string]any{
		"session_id": session.ID,
		"state":      session.State(),
		"tier":       session.Context().Tier(),
		"budgets":    session.Context().Budgets(),
	}, http.StatusCreated)
}

func (h *SessionsHandler) conversationOr404(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	s, ok := h.sessions.GetConversation(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, "conversation not found", http.StatusNotFound)
	}
	return s, ok
}

func (h *SessionsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	respondJSON(w, map[string]any{
		"session_id": s.ID,
		"state":      s.State(),
		"metrics":    s.Metrics(),
		"context":    s.Context().StateSnapshot(),
	}, http.StatusOK)
}

func (h *SessionsHandler) UserTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		Text    string `json:"text"`
		BargeIn bool   `json:"barge_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	s.AddUserTurn(req.Text, req.BargeIn)
	respondJSON(w, map[string]string{"status": "recorded"}, http.StatusOK)
}

// AssistantTurn records the tutor's reply and returns its confidence
// analysis, with an expansion recommendation when auto-expand is on.
func (h *SessionsHandler) AssistantTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	s.AddAssistantTurn(req.Text)
	analysis, rec := s.ProcessResponseWithConfidence(req.Text)
	resp := map[string]any{"analysis": analysis}
	if rec != nil {
		resp["recommendation"] = rec
	}
	respondJSON(w, resp, http.StatusOK)
}

func (h *SessionsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	respondJSON(w, map[string]any{"messages": s.BuildMessages()}, http.StatusOK)
}

func (h *SessionsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		State conversation.State `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Transition(req.State); err != nil {
		respondError(w, err.Error(), http.StatusConflict)
		return
	}
	respondJSON(w, map[string]any{"state": s.State()}, http.StatusOK)
}

func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	if !s.Ended() {
		if err := s.Transition(conversation.StateEnded); err != nil {
			respondError(w, err.Error(), http.StatusConflict)
			return
		}
	}
	respondJSON(w, map[string]any{"state": s.State(), "metrics": s.Metrics()}, http.StatusOK)
}

func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	respondJSON(w, map[string]any{"events": s.Events()}, http.StatusOK)
}

func (h *SessionsHandler) SetTopic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		ID                    string   `json:"id"`
		Title                 string   `json:"title"`
		Content               string   `json:"content"`
		LearningObjectives    []string `json:"learning_objectives"`
		GlossaryTerms         []string `json:"glossary_terms"`
		MisconceptionTriggers []string `json:"misconception_triggers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.Context().SetCurrentTopic(fov.Topic{
		ID:                    req.ID,
		Title:                 req.Title,
		Content:               req.Content,
		LearningObjectives:    req.LearningObjectives,
		GlossaryTerms:         req.GlossaryTerms,
		MisconceptionTriggers: req.MisconceptionTriggers,
	})
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *SessionsHandler) SetCurriculum(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		CurriculumID      string   `json:"curriculum_id"`
		Title             string   `json:"title"`
		CurrentTopicIndex int      `json:"current_topic_index"`
		TotalTopics       int      `json:"total_topics"`
		UnitTitle         string   `json:"unit_title"`
		ModuleTitle       string   `json:"module_title"`
		Outline           string   `json:"outline"`
		Prerequisites     []string `json:"prerequisites"`
		Upcoming          []string `json:"upcoming"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.Context().SetCurriculumPosition(fov.Position{
		CurriculumID:      req.CurriculumID,
		Title:             req.Title,
		CurrentTopicIndex: req.CurrentTopicIndex,
		TotalTopics:       req.TotalTopics,
		UnitTitle:         req.UnitTitle,
		ModuleTitle:       req.ModuleTitle,
	}, req.Outline, req.Prerequisites, req.Upcoming)
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Signal folds a learning signal into the conversation's episodic memory.
func (h *SessionsHandler) Signal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.conversationOr404(w, r)
	if !ok {
		return
	}
	var req struct {
		Type     string  `json:"type"`
		TopicID  string  `json:"topic_id"`
		Title    string  `json:"title"`
		Mastery  float64 `json:"mastery"`
		Question string  `json:"question"`
		Pace     string  `json:"pace"`
		Concept  string  `json:"concept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fc := s.Context()
	switch req.Type {
	case "topic_completed":
		fc.RecordTopicCompletion(req.TopicID, req.Title, req.Mastery)
	case "question":
		fc.RecordUserQuestion(req.Question)
	case "clarification":
		fc.RecordClarificationRequest()
	case "repetition":
		fc.RecordRepetitionRequest()
	case "confusion":
		fc.RecordConfusion()
	case "pace":
		fc.SetPacePreference(req.Pace)
	case "struggling":
		fc.RecordStrugglingConcept(req.Concept)
	default:
		respondError(w, "unknown signal type: "+req.Type, http.StatusBadRequest)
		return
	}
	respondJSON(w, map[string]string{"status": "recorded"}, http.StatusOK)
}

func (h *SessionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	users, conversations := h.sessions.Counts()
	respondJSON(w, map[string]int{
		"user_sessions": users,
		"conversations": conversations,
	}, http.StatusOK)
}
