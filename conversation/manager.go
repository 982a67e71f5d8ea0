package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/voxlearn/voxlearn/audio/provider"
	"github.com/voxlearn/voxlearn/shared/id"
	"github.com/voxlearn/voxlearn/shared/metrics"
)

// PlaybackState is the client-reported playback position, refreshed by
// heartbeats.
type PlaybackState struct {
	CurriculumID    string    `json:"curriculum_id"`
	TopicID         string    `json:"topic_id"`
	SegmentIndex    int       `json:"segment_index"`
	SegmentOffsetMs int       `json:"segment_offset_ms"`
	IsPlaying       bool      `json:"is_playing"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
}

// UserSession binds a user to a voice configuration and playback position.
// Two users with identical voice configs share cache entries, which is the
// cross-user sharing guarantee.
type UserSession struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id"`
	VoiceConfig    provider.VoiceConfig `json:"voice_config"`
	Playback       PlaybackState        `json:"playback"`
	ConversationID string               `json:"conversation_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	LastActiveAt   time.Time            `json:"last_active_at"`
}

const DefaultMaxInactive = 60 * time.Minute

// Manager owns all live user and conversation sessions.
type Manager struct {
	mu            sync.Mutex
	users         map[string]*UserSession // keyed by user ID
	conversations map[string]*Session     // keyed by session ID
}

func NewManager() *Manager {
	return &Manager{
		users:         make(map[string]*UserSession),
		conversations: make(map[string]*Session),
	}
}

// CreateUserSession enforces one active session per user: an existing session
// is replaced, and its attached conversation is ended.
func (m *Manager) CreateUserSession(userID string, voice provider.VoiceConfig) *UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.users[userID]; ok {
		m.endConversationLocked(prior.ConversationID)
	}

	now := time.Now()
	us := &UserSession{
		ID:           id.NewUserSession(),
		UserID:       userID,
		VoiceConfig:  voice,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.users[userID] = us
	metrics.SessionsActive.Set(float64(len(m.users)))
	return us
}

func (m *Manager) GetUserSession(userID string) (*UserSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.users[userID]
	return us, ok
}

// Heartbeat refreshes a user session's playback state and activity clock.
func (m *Manager) Heartbeat(userID string, playback PlaybackState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("no session for user %s", userID)
	}
	playback.LastHeartbeat = time.Now()
	us.Playback = playback
	us.LastActiveAt = playback.LastHeartbeat
	return nil
}

// StartConversation creates a conversation session and attaches it to the
// user's session.
func (m *Manager) StartConversation(userID string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	us, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("no session for user %s", userID)
	}
	m.endConversationLocked(us.ConversationID)

	s := NewSession(opts)
	m.conversations[s.ID] = s
	us.ConversationID = s.ID
	us.LastActiveAt = time.Now()
	return s, nil
}

func (m *Manager) GetConversation(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.conversations[sessionID]
	return s, ok
}

func (m *Manager) endConversationLocked(sessionID string) {
	if sessionID == "" {
		return
	}
	if s, ok := m.conversations[sessionID]; ok && !s.Ended() {
		_ = s.Transition(StateEnded)
	}
}

// CleanupInactiveUserSessions evicts user sessions with no heartbeat within
// maxInactive and ends their conversations. Returns the eviction count.
func (m *Manager) CleanupInactiveUserSessions(maxInactive time.Duration) int {
	if maxInactive <= 0 {
		maxInactive = DefaultMaxInactive
	}
	cutoff := time.Now().Add(-maxInactive)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for userID, us := range m.users {
		if us.LastActiveAt.Before(cutoff) {
			m.endConversationLocked(us.ConversationID)
			delete(m.users, userID)
			removed++
		}
	}
	if removed > 0 {
		metrics.SessionsActive.Set(float64(len(m.users)))
	}
	return removed
}

// CleanupEndedSessions drops ended conversations that no user session still
// references.
func (m *Manager) CleanupEndedSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	referenced := make(map[string]bool, len(m.users))
	for _, us := range m.users {
		referenced[us.ConversationID] = true
	}

	removed := 0
	for sessionID, s := range m.conversations {
		if s.Ended() && !referenced[sessionID] {
			delete(m.conversations, sessionID)
			removed++
		}
	}
	return removed
}

// Counts reports the live session totals for the stats endpoint.
func (m *Manager) Counts() (users, conversations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), len(m.conversations)
}
