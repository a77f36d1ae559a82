package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return client, srv
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("New() with empty base URL should fail")
	}
}

func TestFetchToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/accounts/csrf" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"csrfToken": "tok-123"})
	}))

	token, err := client.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("FetchToken() failed: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want %q", token, "tok-123")
	}
}

func TestFetchTokenRejectsEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"csrfToken": ""})
	}))

	if _, err := client.FetchToken(context.Background()); err == nil {
		t.Fatal("FetchToken() should reject an empty token")
	}
}

func TestMutatingRequestsCarrySigningToken(t *testing.T) {
	var gotHeader string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRFToken")
		json.NewEncoder(w).Encode(map[string]string{
			"task_id": "t1", "session_id": "s1", "status": "queued",
		})
	}))
	client.SetToken("tok-abc")

	_, err := client.SubmitMessage(context.Background(), SubmitRequest{
		GroupName: "lockbit", Message: "hi",
	})
	if err != nil {
		t.Fatalf("SubmitMessage() failed: %v", err)
	}
	if gotHeader != "tok-abc" {
		t.Errorf("X-CSRFToken = %q, want %q", gotHeader, "tok-abc")
	}
}

func TestGetRequestsOmitSigningToken(t *testing.T) {
	var sawHeader bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["X-Csrftoken"]
		json.NewEncoder(w).Encode(map[string]bool{"isLoggedIn": true})
	}))
	client.SetToken("tok-abc")

	if _, err := client.AuthStatus(context.Background()); err != nil {
		t.Fatalf("AuthStatus() failed: %v", err)
	}
	if sawHeader {
		t.Error("GET request should not carry the signing token header")
	}
}

func TestBackendErrorDecoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "group not found"})
	}))

	_, err := client.InitChat(context.Background(), InitRequest{GroupName: "nope"})
	if err == nil {
		t.Fatal("InitChat() should surface the backend error")
	}
	be, ok := err.(*BackendError)
	if !ok {
		t.Fatalf("error type = %T, want *BackendError", err)
	}
	if be.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", be.StatusCode)
	}
	if be.Message != "group not found" {
		t.Errorf("Message = %q, want %q", be.Message, "group not found")
	}
}

func TestBackendErrorWithoutBody(t *testing.T) {
	be := &BackendError{StatusCode: 502}
	if be.Error() != "backend returned status 502" {
		t.Errorf("Error() = %q", be.Error())
	}
}

func TestSubmitMessageRejectsMissingTaskID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"session_id": "s1", "status": "queued"})
	}))

	if _, err := client.SubmitMessage(context.Background(), SubmitRequest{Message: "hi"}); err == nil {
		t.Fatal("SubmitMessage() should reject a response with no task id")
	}
}

func TestSubmitRequestOmitsEmptySessionID(t *testing.T) {
	var body map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{
			"task_id": "t1", "session_id": "s1", "status": "queued",
		})
	}))

	_, err := client.SubmitMessage(context.Background(), SubmitRequest{
		GroupName: "lockbit", Message: "hi", History: []HistoryEntry{},
	})
	if err != nil {
		t.Fatalf("SubmitMessage() failed: %v", err)
	}
	if _, present := body["session_id"]; present {
		t.Error("empty session_id should be omitted so the backend mints one")
	}
}

func TestPollTaskStatuses(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskProcessing, false},
		{TaskWaiting, false},
		{TaskQueued, false},
	}
	for _, tt := range tests {
		s := &TaskStatus{Status: tt.status}
		if got := s.Terminal(); got != tt.terminal {
			t.Errorf("Terminal() for %q = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestSearchChatsEscapesQuery(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string][]ChatSummary{"chats": {}})
	}))

	if _, err := client.SearchChats(context.Background(), "ransom & payment"); err != nil {
		t.Fatalf("SearchChats() failed: %v", err)
	}
	if gotQuery != "ransom & payment" {
		t.Errorf("query = %q, want round-tripped original", gotQuery)
	}
}

func TestDeleteChatPath(t *testing.T) {
	var gotMethod, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.DeleteChat(context.Background(), "abc"); err != nil {
		t.Fatalf("DeleteChat() failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/chats/abc/delete" {
		t.Errorf("request = %s %s, want DELETE /api/chats/abc/delete", gotMethod, gotPath)
	}
}

func TestPutSettingsSendsAllFields(t *testing.T) {
	var body map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.PutSettings(context.Background(), SettingsPayload{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("PutSettings() failed: %v", err)
	}
	for _, field := range []string{"api_key", "base_url", "model"} {
		if _, present := body[field]; !present {
			t.Errorf("field %q missing from payload; empty values must still be sent", field)
		}
	}
}

func TestCookiesPersistAcrossRequests(t *testing.T) {
	var gotCookie string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/accounts/csrf":
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "cookie-1"})
			json.NewEncoder(w).Encode(map[string]string{"csrfToken": "tok"})
		case "/api/accounts/status":
			if c, err := r.Cookie("sessionid"); err == nil {
				gotCookie = c.Value
			}
			json.NewEncoder(w).Encode(map[string]bool{"isLoggedIn": true})
		}
	}))

	if _, err := client.FetchToken(context.Background()); err != nil {
		t.Fatalf("FetchToken() failed: %v", err)
	}
	if _, err := client.AuthStatus(context.Background()); err != nil {
		t.Fatalf("AuthStatus() failed: %v", err)
	}
	if gotCookie != "cookie-1" {
		t.Errorf("session cookie did not persist, got %q", gotCookie)
	}
}
