package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialFromWire(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Credential
	}{
		{"empty means absent", "", AbsentCredential()},
		{"bare marker", "****", RedactedCredential()},
		{"masked with prefix", "sk-a****xyz", RedactedCredential()},
		{"usable secret", "sk-abcdef", PresentCredential("sk-abcdef")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, credentialFromWire(tt.wire))
		})
	}
}

func TestCredentialSecret(t *testing.T) {
	secret, ok := PresentCredential("sk-1").Secret()
	assert.True(t, ok)
	assert.Equal(t, "sk-1", secret)

	secret, ok = RedactedCredential().Secret()
	assert.False(t, ok, "a redacted credential must never yield a secret")
	assert.Empty(t, secret)

	secret, ok = AbsentCredential().Secret()
	assert.False(t, ok)
	assert.Empty(t, secret)
}

func TestCredentialKindPredicates(t *testing.T) {
	assert.True(t, PresentCredential("x").IsPresent())
	assert.True(t, RedactedCredential().IsRedacted())
	assert.True(t, AbsentCredential().IsAbsent())

	assert.False(t, RedactedCredential().IsPresent())
	assert.False(t, AbsentCredential().IsRedacted())
}
