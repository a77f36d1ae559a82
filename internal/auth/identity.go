package auth

import (
	"sync"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
)

// Identity is the process-wide identity context. There is exactly one
// instance; the bootstrapper is its only writer until logout, except for the
// credential-on-file flag which settings sync updates after a save.
//
// Login state is tri-valued: unknown until the first status check resolves,
// then true or false. "Not yet checked" and "checked and rejected" must stay
// distinguishable.
type Identity struct {
	mu          sync.RWMutex
	token       string
	loggedIn    bool
	loginKnown  bool
	loading     bool
	profile     *api.Profile
	hasCredSet  bool
	hasCredFile bool
}

// NewIdentity returns an identity context in its initial loading state.
func NewIdentity() *Identity {
	return &Identity{loading: true}
}

// Token returns the signing token, or "" before bootstrap acquires one.
func (id *Identity) Token() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.token
}

func (id *Identity) setToken(token string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.token = token
}

// IsLoading reports whether bootstrap is still in progress. No mutating
// request may be issued while true.
func (id *Identity) IsLoading() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.loading
}

// LoggedIn returns the authentication state and whether it is known yet.
func (id *Identity) LoggedIn() (loggedIn, known bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.loggedIn, id.loginKnown
}

func (id *Identity) setLoggedIn(v bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.loggedIn = v
	id.loginKnown = true
}

// Profile returns the operator profile, or nil when the fetch failed or has
// not happened. Consumers treat absent fields as unknown, not empty.
func (id *Identity) Profile() *api.Profile {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.profile
}

func (id *Identity) setProfile(p *api.Profile) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.profile = p
	if p != nil {
		id.hasCredFile = p.HasAPIKey
		id.hasCredSet = true
	}
}

func (id *Identity) finishLoading() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.loading = false
}

// Ready reports whether bootstrap completed on the authenticated path.
// Every other component gates its requests on this.
func (id *Identity) Ready() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return !id.loading && id.loginKnown && id.loggedIn
}

// HasCredentialOnFile reports whether the backend holds a stored credential
// for the operator, and whether that is known at all.
func (id *Identity) HasCredentialOnFile() (has, known bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.hasCredFile, id.hasCredSet
}

// SetHasCredentialOnFile records the credential-on-file state after a
// settings save.
func (id *Identity) SetHasCredentialOnFile(has bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.hasCredFile = has
	id.hasCredSet = true
}
