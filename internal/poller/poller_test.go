package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type readyIdentity struct{ ready bool }

func (r readyIdentity) Ready() bool { return r.ready }

type fixedDefaults struct {
	credential, endpoint, model string
}

func (f fixedDefaults) Defaults() (string, string, string) {
	return f.credential, f.endpoint, f.model
}

// taskBackend scripts the submit and poll endpoints. Poll responses are
// consumed in order; the last one repeats.
type taskBackend struct {
	mu sync.Mutex

	submitResp  api.SubmitResponse
	submitFail  bool
	lastSubmit  api.SubmitRequest
	submitCalls int

	pollResps []api.TaskStatus
	pollFail  bool
	pollCalls int
}

func (b *taskBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/async", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.submitCalls++
		json.NewDecoder(r.Body).Decode(&b.lastSubmit)
		if b.submitFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(b.submitResp)
	})
	mux.HandleFunc("/api/chat/status/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.pollCalls++
		if b.pollFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		idx := b.pollCalls - 1
		if idx >= len(b.pollResps) {
			idx = len(b.pollResps) - 1
		}
		json.NewEncoder(w).Encode(b.pollResps[idx])
	})
	return mux
}

func (b *taskBackend) submitted() api.SubmitRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSubmit
}

func (b *taskBackend) polls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pollCalls
}

func newPoller(t *testing.T, b *taskBackend) (*Poller, *session.Active) {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	client, err := api.New(api.Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("api.New() failed: %v", err)
	}
	active := session.NewActive()
	p := New(client, readyIdentity{ready: true}, active, fixedDefaults{
		credential: "sk-1", endpoint: "https://api.example.com", model: "gpt-4o",
	}, nil)
	p.SetInterval(time.Millisecond)
	return p, active
}

func TestSendFullRoundTrip(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1", Status: "queued"},
		pollResps: []api.TaskStatus{
			{Status: api.TaskProcessing},
			{Status: api.TaskProcessing},
			{Status: api.TaskCompleted, Response: "Hi there", SessionID: "s1"},
		},
	}
	p, active := newPoller(t, b)
	active.Reset("", "lockbit", nil)

	adoptions := 0
	p.OnSessionAdopted = func(ctx context.Context) { adoptions++ }

	reply, err := p.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if reply.Content != "Hi there" || reply.Role != session.RoleAssistant {
		t.Errorf("reply = %+v, want assistant %q", reply, "Hi there")
	}
	if active.ID() != "s1" {
		t.Errorf("session id = %q, want adopted %q", active.ID(), "s1")
	}
	if adoptions != 1 {
		t.Errorf("adoption hook fired %d times, want 1", adoptions)
	}
	if got := b.polls(); got != 3 {
		t.Errorf("status endpoint polled %d times, want 3", got)
	}

	msgs := active.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != session.RoleOperator || msgs[0].Content != "Hello" {
		t.Errorf("first message = %+v, want operator Hello", msgs[0])
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "Hi there" {
		t.Errorf("second message = %+v, want assistant Hi there", msgs[1])
	}

	if active.PendingTaskID() != "" {
		t.Error("pending task id should clear when the send resolves")
	}
	if p.Busy() {
		t.Error("poller should return to idle")
	}
}

func TestSendHistoryExcludesOutgoingMessage(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollResps:  []api.TaskStatus{{Status: api.TaskCompleted, Response: "ok", SessionID: "s1"}},
	}
	p, active := newPoller(t, b)
	active.Reset("s1", "lockbit", []session.Message{
		session.NewMessage(session.RoleAssistant, "welcome"),
		session.NewMessage(session.RoleOperator, "first"),
	})

	if _, err := p.Send(context.Background(), "second"); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	req := b.submitted()
	if len(req.History) != 2 {
		t.Fatalf("history length = %d, want 2 (outgoing message excluded)", len(req.History))
	}
	if req.History[1].Content != "first" {
		t.Errorf("history[1] = %+v, want the prior operator message", req.History[1])
	}
	if req.Message != "second" {
		t.Errorf("message = %q, want %q", req.Message, "second")
	}
	if req.APIKey != "sk-1" || req.BaseURL != "https://api.example.com" || req.Model != "gpt-4o" {
		t.Errorf("dispatch did not carry the current defaults: %+v", req)
	}
}

func TestSendPreconditions(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollResps:  []api.TaskStatus{{Status: api.TaskCompleted, SessionID: "s1"}},
	}
	p, active := newPoller(t, b)

	if _, err := p.Send(context.Background(), ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send(\"\") = %v, want ErrEmptyMessage", err)
	}
	if _, err := p.Send(context.Background(), "hi"); !errors.Is(err, ErrNoGroup) {
		t.Errorf("Send() without a group = %v, want ErrNoGroup", err)
	}
	if active.Len() != 0 {
		t.Error("failed preconditions must not touch the transcript")
	}
	if b.submitCalls != 0 {
		t.Errorf("backend saw %d submits before preconditions passed", b.submitCalls)
	}
}

func TestSendRequiresReadyIdentity(t *testing.T) {
	b := &taskBackend{}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	client, err := api.New(api.Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("api.New() failed: %v", err)
	}
	active := session.NewActive()
	active.Reset("s1", "lockbit", nil)
	p := New(client, readyIdentity{ready: false}, active, fixedDefaults{}, nil)

	if _, err := p.Send(context.Background(), "hi"); !errors.Is(err, auth.ErrNotReady) {
		t.Fatalf("Send() = %v, want ErrNotReady", err)
	}
}

func TestSendRejectsConcurrentDispatch(t *testing.T) {
	release := make(chan struct{})
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/async", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(b.submitResp)
	})
	mux.HandleFunc("/api/chat/status/", func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(api.TaskStatus{Status: api.TaskCompleted, Response: "ok", SessionID: "s1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := api.New(api.Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("api.New() failed: %v", err)
	}
	active := session.NewActive()
	active.Reset("s1", "lockbit", nil)
	p := New(client, readyIdentity{ready: true}, active, fixedDefaults{credential: "sk-1"}, nil)
	p.SetInterval(time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), "first")
		done <- err
	}()

	// Wait for the first send to reach the in-flight state.
	deadline := time.After(2 * time.Second)
	for p.State() != StateInFlight {
		select {
		case <-deadline:
			t.Fatal("first send never reached the in-flight state")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := p.Send(context.Background(), "second"); !errors.Is(err, ErrReplyPending) {
		t.Errorf("concurrent Send() = %v, want ErrReplyPending", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Send() failed: %v", err)
	}
}

func TestSendTransportFailureAbortsPolling(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollFail:   true,
	}
	p, active := newPoller(t, b)
	active.Reset("s1", "lockbit", nil)

	_, err := p.Send(context.Background(), "hi")
	if err == nil {
		t.Fatal("Send() should abort when a status check fails")
	}
	if got := b.polls(); got != 1 {
		t.Errorf("status endpoint polled %d times after failure, want 1", got)
	}
	// The optimistic operator message stays; no assistant reply is added.
	msgs := active.Messages()
	if len(msgs) != 1 || msgs[0].Role != session.RoleOperator {
		t.Errorf("transcript after abort = %+v, want the operator message alone", msgs)
	}
	if p.Busy() {
		t.Error("poller should return to idle after an abort")
	}
}

func TestSendBackendTaskError(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollResps:  []api.TaskStatus{{Status: api.TaskFailed, Error: "model refused"}},
	}
	p, active := newPoller(t, b)
	active.Reset("s1", "lockbit", nil)

	_, err := p.Send(context.Background(), "hi")
	var be *api.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Send() = %v, want *BackendError", err)
	}
	if be.Message != "model refused" {
		t.Errorf("Message = %q, want %q", be.Message, "model refused")
	}
	if active.Len() != 1 {
		t.Errorf("transcript length = %d, want the operator message alone", active.Len())
	}
}

func TestSendStaleReplyIsDiscarded(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollResps:  []api.TaskStatus{{Status: api.TaskProcessing}},
	}
	p, active := newPoller(t, b)
	active.Reset("s1", "lockbit", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		reply, err := p.Send(context.Background(), "hi")
		if err != nil {
			t.Errorf("Send() failed: %v", err)
			return
		}
		if reply.Content != "late reply" {
			t.Errorf("reply = %+v, want the resolved content", reply)
		}
	}()

	// After the first in-flight observation, switch the active session and
	// let the task complete.
	deadline := time.After(2 * time.Second)
	for b.polls() == 0 {
		select {
		case <-deadline:
			t.Fatal("poll loop never started")
		case <-time.After(time.Millisecond):
		}
	}
	active.Reset("s2", "conti", nil)
	b.mu.Lock()
	b.pollResps = append(b.pollResps, api.TaskStatus{
		Status: api.TaskCompleted, Response: "late reply", SessionID: "s1",
	})
	b.mu.Unlock()
	<-done

	if active.ID() != "s2" || active.Len() != 0 {
		t.Errorf("stale reply landed in the wrong session: id=%q len=%d", active.ID(), active.Len())
	}
}

func TestSendNoAdoptionForKnownSession(t *testing.T) {
	b := &taskBackend{
		submitResp: api.SubmitResponse{TaskID: "t1", SessionID: "s1"},
		pollResps:  []api.TaskStatus{{Status: api.TaskCompleted, Response: "ok", SessionID: "s1"}},
	}
	p, active := newPoller(t, b)
	active.Reset("s1", "lockbit", nil)

	fired := false
	p.OnSessionAdopted = func(ctx context.Context) { fired = true }

	if _, err := p.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if fired {
		t.Error("adoption hook must not fire for an already-identified session")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateDispatching, "dispatching"},
		{StateInFlight, "in-flight"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
