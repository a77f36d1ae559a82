// Package directory owns the catalog of chat sessions and the lifecycle of
// the one active session: list, search, create, load, delete. The local
// catalog is a cache of server truth, replaced wholesale on every operation
// that touches it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

// Precondition failures: the request is never sent.
var (
	ErrEmptyGroup         = errors.New("a negotiation group must be selected")
	ErrCredentialRequired = errors.New("a credential is required for non-local endpoints; configure one in settings")
)

// Identity gates directory operations on bootstrap completion. Implemented
// by auth.Identity.
type Identity interface {
	Ready() bool
}

// Defaults supplies the current credential/endpoint/model for session
// creation. Implemented by settings.Sync.
type Defaults interface {
	Defaults() (credential, endpoint, model string)
}

// CatalogStore mirrors wholesale catalog refreshes to local storage so
// listing can degrade gracefully when the backend is unreachable.
// Implemented by store.Catalog; may be nil.
type CatalogStore interface {
	ReplaceAll(summaries []session.Summary) error
}

// Directory is the session catalog component.
type Directory struct {
	client   *api.Client
	identity Identity
	active   *session.Active
	defaults Defaults
	store    CatalogStore
	logger   *zap.Logger

	chats      map[string]session.Summary
	searchMode bool
}

// New creates a directory bound to the shared identity and active session.
// store may be nil to disable the offline mirror.
func New(client *api.Client, identity Identity, active *session.Active, defaults Defaults, store CatalogStore, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		client:   client,
		identity: identity,
		active:   active,
		defaults: defaults,
		store:    store,
		logger:   logger,
		chats:    make(map[string]session.Summary),
	}
}

// List fetches the full catalog and replaces the local cache wholesale.
// Prior state is left untouched on failure.
func (d *Directory) List(ctx context.Context) error {
	if !d.identity.Ready() {
		return auth.ErrNotReady
	}
	summaries, err := d.client.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	d.replaceCache(summaries, false)
	return nil
}

// Search fetches sessions matching the query. An empty or whitespace query
// behaves exactly like List and clears search mode.
func (d *Directory) Search(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return d.List(ctx)
	}
	if !d.identity.Ready() {
		return auth.ErrNotReady
	}
	summaries, err := d.client.SearchChats(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to search sessions: %w", err)
	}
	d.replaceCache(summaries, true)
	return nil
}

// CreateParams configures a new session. Company name and revenue are
// optional hints; the backend generates defaults when blank.
type CreateParams struct {
	GroupName   string
	CompanyName string
	Revenue     string
}

// Create starts a new persisted session with the current defaults and makes
// it the active session, seeded with the opening assistant message.
//
// Guards (checked before any network call): the group must be non-empty, and
// a credential is required unless the endpoint is a local unauthenticated
// backend.
func (d *Directory) Create(ctx context.Context, params CreateParams) error {
	if !d.identity.Ready() {
		return auth.ErrNotReady
	}
	if strings.TrimSpace(params.GroupName) == "" {
		return ErrEmptyGroup
	}
	credential, endpoint, model := d.defaults.Defaults()
	if credential == "" && !isLoopback(endpoint) {
		return ErrCredentialRequired
	}

	resp, err := d.client.InitChat(ctx, api.InitRequest{
		GroupName:   params.GroupName,
		APIKey:      credential,
		BaseURL:     endpoint,
		Model:       model,
		SaveSession: true,
		CompanyName: params.CompanyName,
		Revenue:     params.Revenue,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	welcome := session.NewMessage(session.RoleAssistant, resp.WelcomeMessage)
	d.active.Reset(resp.SessionID, params.GroupName, []session.Message{welcome})
	d.logger.Info("session created",
		zap.String("session_id", resp.SessionID),
		zap.String("group", params.GroupName))

	// Catalog refresh is best-effort; the session itself already exists.
	if err := d.List(ctx); err != nil {
		d.logger.Warn("catalog refresh after create failed", zap.Error(err))
	}
	return nil
}

// Load fetches a full session record and replaces the active session
// wholesale. Backend-supplied roles and content are trusted as-is.
func (d *Directory) Load(ctx context.Context, sessionID string) error {
	if !d.identity.Ready() {
		return auth.ErrNotReady
	}
	record, err := d.client.GetChat(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	messages := make([]session.Message, 0, len(record.Messages))
	for _, m := range record.Messages {
		messages = append(messages, session.Message{
			ID:      m.ID,
			Role:    session.Role(m.Role),
			Content: m.Content,
		})
	}
	d.active.Reset(record.ID, record.GroupName, messages)
	d.logger.Info("session loaded",
		zap.String("session_id", record.ID),
		zap.Int("messages", len(messages)))
	return nil
}

// Delete requests deletion of a session. If it is the active session, the
// active session is cleared. The catalog refresh afterward is unconditional:
// the backend may have partially succeeded even when the delete call failed.
func (d *Directory) Delete(ctx context.Context, sessionID string) error {
	if !d.identity.Ready() {
		return auth.ErrNotReady
	}
	deleteErr := d.client.DeleteChat(ctx, sessionID)

	if d.active.ID() == sessionID {
		d.active.Clear()
	}

	if err := d.List(ctx); err != nil {
		d.logger.Warn("catalog refresh after delete failed", zap.Error(err))
	}

	if deleteErr != nil {
		return fmt.Errorf("failed to delete session: %w", deleteErr)
	}
	return nil
}

// Snapshot returns the cached catalog rows. Order is whatever the backend
// returned last.
func (d *Directory) Snapshot() []session.Summary {
	out := make([]session.Summary, 0, len(d.chats))
	for _, s := range d.chats {
		out = append(out, s)
	}
	return out
}

// SearchMode reports whether the cache holds search results rather than the
// full catalog. Affects only the empty-state message shown to the operator.
func (d *Directory) SearchMode() bool {
	return d.searchMode
}

// replaceCache swaps in a fresh catalog and mirrors it to local storage.
func (d *Directory) replaceCache(summaries []api.ChatSummary, searchMode bool) {
	chats := make(map[string]session.Summary, len(summaries))
	mirror := make([]session.Summary, 0, len(summaries))
	for _, s := range summaries {
		summary := toSummary(s)
		chats[s.ID] = summary
		mirror = append(mirror, summary)
	}
	d.chats = chats
	d.searchMode = searchMode

	if d.store != nil && !searchMode {
		if err := d.store.ReplaceAll(mirror); err != nil {
			d.logger.Warn("offline catalog mirror failed", zap.Error(err))
		}
	}
}

func toSummary(s api.ChatSummary) session.Summary {
	return session.Summary{
		ID:              s.ID,
		GroupName:       s.GroupName,
		Title:           s.Title,
		MessageCount:    s.MessageCount,
		FirstMessage:    s.FirstMessage,
		LastMessage:     s.LastMessage,
		MatchingContext: s.MatchingContext,
		CreatedAt:       parseTime(s.CreatedAt),
		UpdatedAt:       parseTime(s.UpdatedAt),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isLoopback reports whether the endpoint denotes a local unauthenticated
// backend, for which a credential is optional.
func isLoopback(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		// Scheme-less endpoints like localhost:11434/v1 parse the host as a
		// scheme (or fail outright); re-parse host-first.
		u, err = url.Parse("http://" + endpoint)
		if err != nil {
			return false
		}
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
