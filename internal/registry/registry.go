// Package registry maps self-asserted client identifiers to the live sessions
// that registered them.
package registry

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MinIdentifierSegments is the minimum number of dash-separated segments a
// client identifier must have.
const MinIdentifierSegments = 3

var (
	// ErrEmptyIdentifier is returned when a registration carries no identifier.
	ErrEmptyIdentifier = errors.New("identifier is empty")
	// ErrMalformedIdentifier is returned when an identifier has too few segments.
	ErrMalformedIdentifier = errors.New("identifier must have at least 3 dash-separated segments")
	// ErrDuplicate is returned when the identifier is owned by another session.
	ErrDuplicate = errors.New("identifier already registered")
	// ErrSessionBound is returned when the session already owns an identifier.
	ErrSessionBound = errors.New("session already registered under another identifier")
	// ErrNotFound reports a lookup for an identifier nobody registered.
	ErrNotFound = errors.New("identifier not registered")
)

// Conn is the outbound side of a client connection.
type Conn interface {
	Send(data []byte) error
}

// Session is the server-side state of one connection. It records the
// identifier the connection registered, if any.
type Session struct {
	id   string
	conn Conn

	mu         sync.RWMutex
	identifier string
}

// NewSession wraps conn in a fresh session with a random session id.
func NewSession(conn Conn) *Session {
	return &Session{
		id:   uuid.NewString(),
		conn: conn,
	}
}

// ID returns the session id. It identifies the connection in logs whether or
// not it ever registers.
func (s *Session) ID() string {
	return s.id
}

// Identifier returns the client identifier this session registered, or "".
func (s *Session) Identifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier
}

// Send delivers data on the session's connection.
func (s *Session) Send(data []byte) error {
	return s.conn.Send(data)
}

func (s *Session) setIdentifier(id string) {
	s.mu.Lock()
	s.identifier = id
	s.mu.Unlock()
}

// Registry is the set of registered sessions keyed by client identifier.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Session)}
}

// ValidateIdentifier checks the structural format of a client identifier.
func ValidateIdentifier(id string) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	if len(strings.Split(id, "-")) < MinIdentifierSegments {
		return ErrMalformedIdentifier
	}
	return nil
}

// Register binds id to s. The first session to register an identifier keeps it
// until it is removed; later attempts fail with ErrDuplicate.
func (r *Registry) Register(id string, s *Session) error {
	if err := ValidateIdentifier(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return ErrDuplicate
	}
	if current := s.Identifier(); current != "" && r.entries[current] == s {
		return ErrSessionBound
	}

	r.entries[id] = s
	s.setIdentifier(id)
	return nil
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[id]
	return s, ok
}

// RemoveBySession deletes the entry owned by s. It reports whether an entry was
// removed; sessions that never registered, or were already removed, are a no-op.
func (r *Registry) RemoveBySession(s *Session) bool {
	if s == nil {
		return false
	}
	id := s.Identifier()
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[id] != s {
		return false
	}
	delete(r.entries, id)
	return true
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
