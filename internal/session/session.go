// Package session holds the shared chat data model: transcript messages,
// catalog summaries, and the single in-memory active session. The active
// session is mutated by exactly one component at a time (directory on
// create/load/delete, poller during a send); the mutex only guards against
// accidental cross-goroutine reads, not concurrent writers.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript message. Wire values match the
// backend ("user" for the operator, "assistant" for the counterparty).
type Role string

const (
	RoleOperator  Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a negotiation transcript. Role and content are
// immutable once created.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with a freshly minted id.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
}

// Summary is an immutable snapshot of one persisted chat session as reported
// by the backend catalog. The authoritative copy lives server-side.
type Summary struct {
	ID              string
	GroupName       string
	Title           string
	MessageCount    int
	FirstMessage    string
	LastMessage     string
	MatchingContext string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active is the one in-memory chat session. Creating or loading a session
// replaces the previous contents wholesale; there is no merge.
type Active struct {
	mu            sync.RWMutex
	id            string // empty until the backend assigns one
	groupName     string
	messages      []Message
	pendingTaskID string
}

// NewActive returns an empty active session.
func NewActive() *Active {
	return &Active{}
}

// ID returns the backend session id, or "" for a session that has not yet
// completed its first round-trip.
func (a *Active) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

// GroupName returns the negotiation counterparty for the current session.
func (a *Active) GroupName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.groupName
}

// Messages returns a copy of the transcript in order.
func (a *Active) Messages() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Len returns the transcript length.
func (a *Active) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.messages)
}

// PendingTaskID returns the task id of an in-flight send, or "".
func (a *Active) PendingTaskID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pendingTaskID
}

// SetPendingTaskID records (or clears, with "") the in-flight task id.
func (a *Active) SetPendingTaskID(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingTaskID = taskID
}

// Reset replaces the session wholesale. Used by load and create; the previous
// in-memory copy is discarded.
func (a *Active) Reset(id, groupName string, messages []Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.id = id
	a.groupName = groupName
	a.messages = append([]Message(nil), messages...)
	a.pendingTaskID = ""
}

// Clear empties the session entirely.
func (a *Active) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.id = ""
	a.groupName = ""
	a.messages = nil
	a.pendingTaskID = ""
}

// AdoptID records a backend-assigned session id. It is a no-op when an id is
// already known; the first id wins. Returns true if the id was adopted.
func (a *Active) AdoptID(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id != "" || id == "" {
		return false
	}
	a.id = id
	return true
}

// Append adds a message to the end of the transcript. The transcript is
// append-only while a send is in flight.
func (a *Active) Append(msg Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

// AppendTo appends a message only if the session still carries the given id.
// A reply that resolves after the operator switched sessions must land in its
// originating transcript or nowhere, never in whichever session happens to be
// active. Returns false when the message was discarded.
func (a *Active) AppendTo(originID string, msg Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id != originID {
		return false
	}
	a.messages = append(a.messages, msg)
	return true
}
