// Package settings reads and writes the operator-level defaults: endpoint,
// model, and credential. The credential needs care because the backend
// redacts it on read; a redacted placeholder must never round-trip back as if
// it were a real secret.
package settings

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
	"github.com/fish-not-phish/RansomNegotiator/internal/auth"
)

// Draft is the working copy of the operator defaults. The working credential
// is empty when the stored one arrived redacted or absent; Touched
// distinguishes "operator typed a new value" from "value as loaded".
type Draft struct {
	Endpoint   string
	Model      string
	Credential string
	Touched    bool
}

// Identity gates settings round-trips on bootstrap completion and receives
// the credential-on-file flag after a save. Implemented by auth.Identity.
type Identity interface {
	Ready() bool
	SetHasCredentialOnFile(has bool)
}

// Sync owns the settings draft and its round-trips to the backend.
type Sync struct {
	client   *api.Client
	identity Identity
	logger   *zap.Logger

	mu     sync.Mutex
	draft  Draft
	stored Credential // credential state as last loaded from the backend
}

// New creates a settings sync bound to the shared identity context.
func New(client *api.Client, identity Identity, logger *zap.Logger) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{
		client:   client,
		identity: identity,
		logger:   logger,
		stored:   AbsentCredential(),
	}
}

// Load fetches operator defaults and replaces the draft. A redacted stored
// credential leaves the working value empty rather than substituting the
// placeholder.
func (s *Sync) Load(ctx context.Context) error {
	if !s.identity.Ready() {
		return auth.ErrNotReady
	}

	payload, err := s.client.GetSettings(ctx)
	if err != nil {
		return err
	}

	cred := credentialFromWire(payload.APIKey)
	working := ""
	if secret, ok := cred.Secret(); ok {
		working = secret
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = cred
	s.draft = Draft{
		Endpoint:   payload.BaseURL,
		Model:      payload.Model,
		Credential: working,
	}
	s.logger.Debug("settings loaded",
		zap.String("endpoint", payload.BaseURL),
		zap.String("model", payload.Model),
		zap.Bool("credential_redacted", cred.IsRedacted()))
	return nil
}

// Draft returns a copy of the current working draft.
func (s *Sync) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// StoredCredential returns the credential state as last loaded.
func (s *Sync) StoredCredential() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored
}

// SetEndpoint updates the draft endpoint.
func (s *Sync) SetEndpoint(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Endpoint = endpoint
}

// SetModel updates the draft model.
func (s *Sync) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Model = model
}

// SetCredential replaces the working credential with an operator-typed value.
func (s *Sync) SetCredential(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Credential = secret
	s.draft.Touched = true
}

// Save submits the draft. All three fields are always sent: backend
// semantics are overwrite-always, and an empty credential is a meaningful
// value for backends that require none. After a successful save the
// credential-on-file flag on the identity context reflects whether the
// submitted credential was non-empty.
func (s *Sync) Save(ctx context.Context) error {
	if !s.identity.Ready() {
		return auth.ErrNotReady
	}

	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()

	err := s.client.PutSettings(ctx, api.SettingsPayload{
		APIKey:  draft.Credential,
		BaseURL: draft.Endpoint,
		Model:   draft.Model,
	})
	if err != nil {
		return err
	}

	hasCred := draft.Credential != ""
	s.identity.SetHasCredentialOnFile(hasCred)

	s.mu.Lock()
	if hasCred {
		s.stored = PresentCredential(draft.Credential)
	} else {
		s.stored = AbsentCredential()
	}
	s.draft.Touched = false
	s.mu.Unlock()

	s.logger.Info("settings saved",
		zap.String("endpoint", draft.Endpoint),
		zap.String("model", draft.Model),
		zap.Bool("has_credential", hasCred))
	return nil
}

// Defaults exposes the working credential/endpoint/model for dispatch and
// session creation. The credential is "" when redacted or absent.
func (s *Sync) Defaults() (credential, endpoint, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Credential, s.draft.Endpoint, s.draft.Model
}
