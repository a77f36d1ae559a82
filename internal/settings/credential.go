package settings

import "strings"

// redactionMarker is what the backend substitutes into a stored credential on
// read. A value containing it is a placeholder, never a usable secret.
const redactionMarker = "****"

type credKind int

const (
	credAbsent credKind = iota
	credRedacted
	credPresent
)

// Credential is a tagged credential value from the backend contract:
// Present(secret), Redacted, or Absent. The tag removes any ambiguity about
// what a masked string looks like; nothing downstream sniffs string contents.
type Credential struct {
	kind   credKind
	secret string
}

// PresentCredential wraps a literal usable secret.
func PresentCredential(secret string) Credential {
	return Credential{kind: credPresent, secret: secret}
}

// RedactedCredential marks a credential the backend holds but will not
// return.
func RedactedCredential() Credential {
	return Credential{kind: credRedacted}
}

// AbsentCredential marks no credential at all.
func AbsentCredential() Credential {
	return Credential{kind: credAbsent}
}

// credentialFromWire classifies the api_key field of a settings read. The
// wire format has no tag, so classification happens exactly once, here.
func credentialFromWire(s string) Credential {
	switch {
	case s == "":
		return AbsentCredential()
	case strings.Contains(s, redactionMarker):
		return RedactedCredential()
	default:
		return PresentCredential(s)
	}
}

// Secret returns the usable secret. ok is false for redacted or absent
// credentials; the returned string is then always empty.
func (c Credential) Secret() (secret string, ok bool) {
	if c.kind != credPresent {
		return "", false
	}
	return c.secret, true
}

// IsPresent reports whether a literal usable secret is held.
func (c Credential) IsPresent() bool { return c.kind == credPresent }

// IsRedacted reports whether the backend holds a secret it will not return.
func (c Credential) IsRedacted() bool { return c.kind == credRedacted }

// IsAbsent reports whether no credential exists at all.
func (c Credential) IsAbsent() bool { return c.kind == credAbsent }
