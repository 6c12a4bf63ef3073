package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{" HTTPS://Plant.Example.com ", "not a url", ""}, discardLogger())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"allowed origin", "https://plant.example.com", true},
		{"allowed origin different case", "https://PLANT.example.com", true},
		{"scheme mismatch", "http://plant.example.com", false},
		{"other host", "https://evil.example.com", false},
		{"malformed origin", "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.check(r))
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, discardLogger())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example.org")
	assert.True(t, policy.check(r))
}

func TestOriginPolicyEmptyList(t *testing.T) {
	policy := newOriginPolicy(nil, discardLogger())

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, policy.isAllowed(r))

	r.Header.Set("Origin", "https://plant.example.com")
	assert.False(t, policy.isAllowed(r))
}

func TestNormalizeOrigin(t *testing.T) {
	got, ok := normalizeOrigin("HTTP://LocalHost:3043")
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:3043", got)

	_, ok = normalizeOrigin("localhost:3043/path")
	assert.False(t, ok)
}
