package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/taktrelay/internal/registry"
)

var (
	// ErrConnectionClosed is returned by Client.Send once the client is closed.
	ErrConnectionClosed = errors.New("client connection is closed")
	// ErrSendBufferFull is returned by Client.Send when the outbound buffer is full.
	ErrSendBufferFull = errors.New("client send buffer is full")
)

// Dispatcher handles inbound frames for a session.
type Dispatcher interface {
	Dispatch(origin *registry.Session, data []byte)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
