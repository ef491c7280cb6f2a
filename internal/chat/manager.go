// Package chat maintains exactly one AI conversation thread per page visit,
// seeded by a specific AI result. The session lifecycle is an explicit state
// machine; first and follow-up sends carry different payloads by design.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"quizbox/internal/api"
	"quizbox/internal/model"
	"quizbox/internal/store"
)

// State is the session lifecycle position.
type State int

const (
	// NoSession: no page visit started yet.
	NoSession State = iota
	// SessionStarted: fresh session id exists, no thread yet; the next send
	// must supply a result id.
	SessionStarted
	// ThreadEstablished: the backend issued a thread slug; every further
	// send reuses it and must not resend the result id.
	ThreadEstablished
)

var (
	// ErrNoSession rejects sends before Start.
	ErrNoSession = errors.New("chat: no session started")
	// ErrNoResultID rejects a first send with no resolvable AI result to
	// seed the thread. Raised client-side, before any network call.
	ErrNoResultID = errors.New("chat: no result id for first message")
	// ErrEmptyMessage rejects blank sends.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// DefaultPrompt is the soft instruction sent with the first message.
const DefaultPrompt = "Rispondi in italiano, chiaro e sintetico. " +
	"Usa il contesto del summary. Se manca qualcosa, dai una risposta generale " +
	"e indica quali dati servono per personalizzare."

// ChatAPI is the slice of the backend client the manager needs.
type ChatAPI interface {
	SendChat(ctx context.Context, p api.ChatPayload) (model.ChatReply, error)
	LatestResultID(ctx context.Context, v model.Variant, userID, questionnaireID int) (int, error)
}

// Message is one transcript entry.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// cached is the last_premium_chat soft-cache shape.
type cached struct {
	SessionID  string    `json:"session_id"`
	ThreadSlug string    `json:"thread_slug"`
	ResultID   int       `json:"result_id"`
	At         time.Time `json:"at"`
}

// Manager drives one chat conversation.
type Manager struct {
	client ChatAPI
	store  store.Store
	log    *zap.Logger

	mu         sync.Mutex
	state      State
	sessionID  string
	threadSlug string
	resultID   int
	transcript []Message
}

// NewManager builds a Manager. The store may be nil (no soft caching).
func NewManager(client ChatAPI, st store.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{client: client, store: st, log: log}
}

// Start opens a fresh session (page entry). Any previous thread is gone;
// the next send needs a result id again.
func (m *Manager) Start(resultID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = SessionStarted
	m.sessionID = ulid.Make().String()
	m.threadSlug = ""
	m.resultID = resultID
	m.transcript = nil
}

// Reset is the explicit "new session" action: same page, new session id,
// thread reference cleared. The known result id is kept so the next first
// send can reuse it.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == NoSession {
		return
	}
	m.state = SessionStarted
	m.sessionID = ulid.Make().String()
	m.threadSlug = ""
	m.transcript = nil
}

// State returns the current lifecycle position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ThreadSlug returns the established thread reference, if any.
func (m *Manager) ThreadSlug() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threadSlug
}

// Transcript returns a copy of the conversation so far.
func (m *Manager) Transcript() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// ResolveResult fills the seed result id from the backend's latest result
// for the scope, when none was supplied at Start.
func (m *Manager) ResolveResult(ctx context.Context, v model.Variant, userID, questionnaireID int) error {
	m.mu.Lock()
	have := m.resultID
	m.mu.Unlock()
	if have > 0 {
		return nil
	}
	id, err := m.client.LatestResultID(ctx, v, userID, questionnaireID)
	if err != nil {
		return fmt.Errorf("resolve result id: %w", err)
	}
	m.mu.Lock()
	m.resultID = id
	m.mu.Unlock()
	return nil
}

// Send delivers one message. In SessionStarted it performs the first send:
// result id required, no thread reference. In ThreadEstablished it performs
// a follow-up: thread reference required, result id omitted.
func (m *Manager) Send(ctx context.Context, text string) (model.ChatReply, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return model.ChatReply{}, ErrEmptyMessage
	}

	m.mu.Lock()
	switch m.state {
	case NoSession:
		m.mu.Unlock()
		return model.ChatReply{}, ErrNoSession
	case SessionStarted:
		if m.resultID <= 0 {
			m.mu.Unlock()
			return model.ChatReply{}, ErrNoResultID
		}
	}
	payload := api.ChatPayload{
		SessionID: m.sessionID,
		Message:   trimmed,
	}
	if m.state == ThreadEstablished {
		payload.ThreadSlug = m.threadSlug
	} else {
		payload.ResultID = m.resultID
		payload.Prompt = DefaultPrompt
	}
	m.mu.Unlock()

	reply, err := m.client.SendChat(ctx, payload)
	if err != nil {
		return model.ChatReply{}, fmt.Errorf("send message: %w", err)
	}

	m.mu.Lock()
	m.transcript = append(m.transcript,
		Message{Role: "user", Content: trimmed},
		Message{Role: "assistant", Content: reply.Reply},
	)
	if m.state == SessionStarted && reply.ThreadSlug != "" {
		m.threadSlug = reply.ThreadSlug
		m.state = ThreadEstablished
	}
	snapshot := cached{
		SessionID:  m.sessionID,
		ThreadSlug: m.threadSlug,
		ResultID:   m.resultID,
		At:         time.Now(),
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Set(ctx, store.KeyLastPremiumChat, snapshot); err != nil {
			m.log.Debug("chat soft-cache write failed", zap.Error(err))
		}
	}
	return reply, nil
}
