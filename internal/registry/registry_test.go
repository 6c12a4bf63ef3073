package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) Send([]byte) error { return nil }

func newTestSession() *Session {
	return NewSession(nopConn{})
}

// TestValidateIdentifier verifies the dash-segment format rule.
func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"", ErrEmptyIdentifier},
		{"abc", ErrMalformedIdentifier},
		{"abc-def", ErrMalformedIdentifier},
		{"abc-def-ghi", nil},
		{"cost-2-2408", nil},
		{"a-b-c-d-e", nil},
		{"a--b", nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.id), func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestRegisterFormatValidation verifies that malformed identifiers never create entries.
func TestRegisterFormatValidation(t *testing.T) {
	reg := New()

	assert.ErrorIs(t, reg.Register("abc", newTestSession()), ErrMalformedIdentifier)
	assert.ErrorIs(t, reg.Register("abc-def", newTestSession()), ErrMalformedIdentifier)
	assert.ErrorIs(t, reg.Register("", newTestSession()), ErrEmptyIdentifier)
	assert.Equal(t, 0, reg.Len())

	s := newTestSession()
	require.NoError(t, reg.Register("abc-def-ghi", s))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "abc-def-ghi", s.Identifier())
}

// TestRegisterFirstWriterWins verifies that a second session cannot take over
// an identifier that is already registered.
func TestRegisterFirstWriterWins(t *testing.T) {
	reg := New()
	first := newTestSession()
	second := newTestSession()

	require.NoError(t, reg.Register("shop-floor-7", first))
	assert.ErrorIs(t, reg.Register("shop-floor-7", second), ErrDuplicate)
	assert.ErrorIs(t, reg.Register("shop-floor-7", first), ErrDuplicate)

	got, ok := reg.Lookup("shop-floor-7")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Empty(t, second.Identifier())
	assert.Equal(t, 1, reg.Len())
}

// TestRegisterOneIdentifierPerSession verifies that a session owns at most one entry.
func TestRegisterOneIdentifierPerSession(t *testing.T) {
	reg := New()
	s := newTestSession()

	require.NoError(t, reg.Register("line-a-01", s))
	assert.ErrorIs(t, reg.Register("line-b-02", s), ErrSessionBound)

	_, ok := reg.Lookup("line-b-02")
	assert.False(t, ok)
	assert.Equal(t, "line-a-01", s.Identifier())
}

// TestRemoveBySession verifies removal on close and that removal is idempotent.
func TestRemoveBySession(t *testing.T) {
	reg := New()
	s := newTestSession()
	other := newTestSession()
	require.NoError(t, reg.Register("cost-2-2408", s))
	require.NoError(t, reg.Register("cost-3-0001", other))

	assert.True(t, reg.RemoveBySession(s))
	_, ok := reg.Lookup("cost-2-2408")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())

	assert.False(t, reg.RemoveBySession(s))
	assert.Equal(t, 1, reg.Len())

	assert.False(t, reg.RemoveBySession(newTestSession()))
	assert.False(t, reg.RemoveBySession(nil))
	assert.Equal(t, 1, reg.Len())
}

// TestRemoveThenReRegister verifies an identifier is free again once its owner is gone.
func TestRemoveThenReRegister(t *testing.T) {
	reg := New()
	first := newTestSession()
	require.NoError(t, reg.Register("cost-2-2408", first))
	require.True(t, reg.RemoveBySession(first))

	second := newTestSession()
	require.NoError(t, reg.Register("cost-2-2408", second))

	// A stale removal from the first owner must not evict the new one.
	assert.False(t, reg.RemoveBySession(first))
	got, ok := reg.Lookup("cost-2-2408")
	require.True(t, ok)
	assert.Same(t, second, got)
}

// TestSessionIDsAreUnique verifies every session gets its own id.
func TestSessionIDsAreUnique(t *testing.T) {
	a, b := newTestSession(), newTestSession()
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

// TestConcurrentRegistration verifies that exactly one of many racing sessions
// wins an identifier and that parallel register/remove keeps the count consistent.
func TestConcurrentRegistration(t *testing.T) {
	reg := New()

	const racers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.Register("contended-id-000", newTestSession()) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	sessions := make([]*Session, racers)
	for i := range sessions {
		sessions[i] = newTestSession()
	}
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			id := fmt.Sprintf("line-%d-station", i)
			if err := reg.Register(id, s); err != nil {
				t.Errorf("Register(%q) failed: %v", id, err)
				return
			}
			_, _ = reg.Lookup(id)
			if i%2 == 0 {
				reg.RemoveBySession(s)
			}
		}(i, s)
	}
	wg.Wait()

	assert.Equal(t, 1+racers/2, reg.Len())
}
