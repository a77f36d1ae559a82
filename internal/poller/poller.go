// Package poller dispatches outgoing messages and retrieves the
// asynchronously computed replies behind them. Replies are not returned
// synchronously: the submission endpoint hands back a task id, and the
// poller watches task status at a fixed interval until a terminal state.
//
// Polling rather than a push channel keeps the client decoupled from the
// backend worker queue and bounds the request rate; the interval trades a
// little latency for that.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

// Precondition failures: nothing is sent.
var (
	ErrReplyPending = errors.New("a reply is already pending for this session")
	ErrEmptyMessage = errors.New("message must not be empty")
	ErrNoGroup      = errors.New("no active session group; create or load a session first")
)

// State of the reply state machine. Queued, processing, and waiting statuses
// are all collapsed into StateInFlight; completion and failure return the
// machine to StateIdle, which is the only state a new dispatch may start
// from.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateDispatching:
		return "dispatching"
	case StateInFlight:
		return "in-flight"
	default:
		return "idle"
	}
}

// Identity gates dispatch on bootstrap completion. Implemented by
// auth.Identity.
type Identity interface {
	Ready() bool
}

// Defaults supplies the credential/endpoint/model sent with every dispatch.
// Implemented by settings.Sync.
type Defaults interface {
	Defaults() (credential, endpoint, model string)
}

// Poller is the reply retrieval component. One poll loop per active session
// at a time; a dispatch while one is in flight fails the precondition check.
type Poller struct {
	client   *api.Client
	identity Identity
	active   *session.Active
	defaults Defaults
	logger   *zap.Logger

	// OnSessionAdopted fires when a dispatch returns a session id for a
	// session the client did not know was persisted yet. Used to refresh the
	// directory catalog.
	OnSessionAdopted func(ctx context.Context)

	mu       sync.Mutex
	state    State
	interval time.Duration
}

// New creates a poller with the standard 1s interval.
func New(client *api.Client, identity Identity, active *session.Active, defaults Defaults, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		identity: identity,
		active:   active,
		defaults: defaults,
		logger:   logger,
		interval: time.Second,
	}
}

// SetInterval overrides the poll interval. Called from config reload, so it
// may race with an in-flight poll loop; the new interval applies from the
// next dispatch.
func (p *Poller) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// State returns the current machine state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a send is in flight.
func (p *Poller) Busy() bool {
	return p.State() != StateIdle
}

// Send dispatches one operator message and blocks until the reply resolves.
//
// The operator message is appended to the transcript optimistically, before
// the network round-trip starts; on failure it stays (the transcript is
// append-only while a send is in flight) and no assistant message is added.
// On success exactly one assistant message is appended, routed to the
// session the dispatch originated from: if the operator has since moved to a
// different session, the reply is discarded rather than appended to whatever
// is active.
func (p *Poller) Send(ctx context.Context, text string) (session.Message, error) {
	var none session.Message
	if !p.identity.Ready() {
		return none, auth.ErrNotReady
	}
	if text == "" {
		return none, ErrEmptyMessage
	}
	group := p.active.GroupName()
	if group == "" {
		return none, ErrNoGroup
	}

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return none, ErrReplyPending
	}
	p.state = StateDispatching
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		p.active.SetPendingTaskID("")
	}()

	// Transcript snapshot strictly precedes the optimistic append: the
	// dispatched history excludes the message being sent.
	history := historyFrom(p.active.Messages())
	p.active.Append(session.NewMessage(session.RoleOperator, text))

	credential, endpoint, model := p.defaults.Defaults()
	resp, err := p.client.SubmitMessage(ctx, api.SubmitRequest{
		SessionID: p.active.ID(),
		APIKey:    credential,
		BaseURL:   endpoint,
		Model:     model,
		GroupName: group,
		Message:   text,
		History:   history,
	})
	if err != nil {
		return none, fmt.Errorf("failed to dispatch message: %w", err)
	}

	// Session creation can be implicit in the first send. Adopt the minted
	// id and let the directory catch up.
	if p.active.AdoptID(resp.SessionID) {
		p.logger.Info("adopted session id from dispatch", zap.String("session_id", resp.SessionID))
		if p.OnSessionAdopted != nil {
			p.OnSessionAdopted(ctx)
		}
	}
	originID := resp.SessionID

	p.mu.Lock()
	p.state = StateInFlight
	p.mu.Unlock()
	p.active.SetPendingTaskID(resp.TaskID)

	return p.poll(ctx, resp.TaskID, originID)
}

// poll drives the loop: one status query per tick until a terminal status.
// There is no attempt cap; a transport failure aborts immediately and is not
// retried.
func (p *Poller) poll(ctx context.Context, taskID, originID string) (session.Message, error) {
	var none session.Message
	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return none, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.client.PollTask(ctx, taskID)
		if err != nil {
			return none, fmt.Errorf("failed to check message status: %w", err)
		}

		switch status.Status {
		case api.TaskCompleted:
			reply := session.NewMessage(session.RoleAssistant, status.Response)
			if !p.active.AppendTo(originID, reply) {
				p.logger.Warn("discarding reply for session no longer active",
					zap.String("origin_session", originID),
					zap.String("task_id", taskID))
			}
			return reply, nil
		case api.TaskFailed:
			msg := status.Error
			if msg == "" {
				msg = "failed to get a response"
			}
			return none, &api.BackendError{Message: msg}
		default:
			// queued / processing / waiting: still in flight.
			p.logger.Debug("task in flight",
				zap.String("task_id", taskID),
				zap.String("status", status.Status))
		}
	}
}

func historyFrom(messages []session.Message) []api.HistoryEntry {
	out := make([]api.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.HistoryEntry{Role: string(m.Role), Content: m.Content})
	}
	return out
}
