// Package session tracks the per-user conversational state machine.
package session

import (
	"strings"
	"sync"

	"github.com/clipfetch/clipfetch/internal/domain"
)

// State is a session state.
type State string

const (
	// StateIdle means the bot is waiting for the next command.
	StateIdle State = "idle"
	// StateAwaitingLink means a kind was chosen and the bot waits for a link.
	StateAwaitingLink State = "awaiting_link"
	// StateDownloading means a job is in flight; the session is locked.
	StateDownloading State = "downloading"
)

// Menu button labels. They double as the recognized text vocabulary.
const (
	ButtonVideo  = "🎥 Download video"
	ButtonAudio  = "🎵 Download audio"
	ButtonHelp   = "ℹ️ Help"
	ButtonCancel = "🚫 Cancel"
)

// ActionType tells the caller how to react to an input.
type ActionType int

const (
	// ActionMenu shows the welcome message and main menu.
	ActionMenu ActionType = iota
	// ActionUnknown re-prompts with the main menu after unrecognized input.
	ActionUnknown
	// ActionHelp shows usage help.
	ActionHelp
	// ActionAskLink prompts the user for a source link.
	ActionAskLink
	// ActionInvalidLink re-prompts after a text that is not a supported link.
	ActionInvalidLink
	// ActionSubmit carries a validated link to hand to the scheduler.
	ActionSubmit
	// ActionCancelled confirms a cancelled flow.
	ActionCancelled
	// ActionNothingToCancel reports that no flow was active.
	ActionNothingToCancel
	// ActionLocked means a download is in flight and the input is ignored.
	ActionLocked
)

// Action is the session machine's reaction to one input.
type Action struct {
	Type ActionType
	Kind domain.Kind
	URL  string
}

// Session holds one user's conversational state. RequestedKind is meaningful
// only in AwaitingLink/Downloading, StatusRef only in Downloading.
type Session struct {
	UserID        int64
	State         State
	RequestedKind domain.Kind
	StatusRef     domain.MessageRef
}

// Manager owns all sessions, one per user, created lazily.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	hosts    []string
}

// NewManager creates a session manager that accepts links containing one of
// the given host substrings.
func NewManager(hosts []string) *Manager {
	if len(hosts) == 0 {
		hosts = []string{"youtube.com", "youtu.be", "www.youtube.com"}
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		hosts:    hosts,
	}
}

// Handle classifies one text input against the user's current state and
// returns the resulting action. Transitions follow the session table; the
// jump to Downloading is not made here but via BeginDownload once the
// scheduler has accepted the job.
func (m *Manager) Handle(userID int64, text string) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(userID)
	text = strings.TrimSpace(text)

	// A locked session ignores everything until the job's finalizer
	// resets it; in-flight downloads are not interruptible.
	if s.State == StateDownloading {
		return Action{Type: ActionLocked}
	}

	switch {
	case isCommand(text, "start") || isCommand(text, "reset"):
		m.reset(s)
		return Action{Type: ActionMenu}

	case text == ButtonCancel || isCommand(text, "cancel"):
		if s.State == StateIdle {
			return Action{Type: ActionNothingToCancel}
		}
		m.reset(s)
		return Action{Type: ActionCancelled}
	}

	switch s.State {
	case StateAwaitingLink:
		if !m.isSupportedLink(text) {
			return Action{Type: ActionInvalidLink, Kind: s.RequestedKind}
		}
		return Action{Type: ActionSubmit, Kind: s.RequestedKind, URL: text}

	default: // StateIdle
		switch {
		case text == ButtonVideo || strings.EqualFold(text, "download video"):
			s.State = StateAwaitingLink
			s.RequestedKind = domain.KindVideo
			return Action{Type: ActionAskLink, Kind: domain.KindVideo}
		case text == ButtonAudio || strings.EqualFold(text, "download audio"):
			s.State = StateAwaitingLink
			s.RequestedKind = domain.KindAudio
			return Action{Type: ActionAskLink, Kind: domain.KindAudio}
		case text == ButtonHelp || isCommand(text, "help"):
			return Action{Type: ActionHelp}
		default:
			return Action{Type: ActionUnknown}
		}
	}
}

// BeginDownload locks the session for the accepted job and records the
// status message reference.
func (m *Manager) BeginDownload(userID int64, ref domain.MessageRef) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(userID)
	s.State = StateDownloading
	s.StatusRef = ref
}

// Reset returns the session to Idle and clears job-scoped fields. Called by
// the job finalizer on every outcome and safe to call repeatedly.
func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(m.session(userID))
}

// State returns the user's current state.
func (m *Manager) State(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session(userID).State
}

// StatusRef returns the in-flight status message reference, if any.
func (m *Manager) StatusRef(userID int64) domain.MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session(userID).StatusRef
}

func (m *Manager) session(userID int64) *Session {
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{UserID: userID, State: StateIdle}
		m.sessions[userID] = s
	}
	return s
}

func (m *Manager) reset(s *Session) {
	s.State = StateIdle
	s.RequestedKind = ""
	s.StatusRef = domain.MessageRef{}
}

// isSupportedLink is a syntactic pre-filter only; a link that passes can
// still fail to resolve later.
func (m *Manager) isSupportedLink(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, host := range m.hosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

func isCommand(text, name string) bool {
	return text == "/"+name
}
