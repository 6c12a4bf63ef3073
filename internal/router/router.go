// Package router dispatches decoded envelopes: it registers clients, relays
// takt alerts to their addressee, and answers pings.
//
// The router never reports a failure to the sender. Every dropped envelope is
// recorded as a structured log entry tagged with its kind.
package router

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/taktrelay/internal/envelope"
	"github.com/Tyrowin/taktrelay/internal/metrics"
	"github.com/Tyrowin/taktrelay/internal/registry"
)

// Drop kinds, used as the "kind" log attribute and metric label.
const (
	KindDecode     = "decode"
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindDuplicate  = "duplicate"
	KindDelivery   = "delivery"
)

// ErrDelivery wraps a failed send to an outbound connection.
var ErrDelivery = errors.New("delivery failed")

// Router routes envelopes between sessions held in a Registry. It keeps no
// state of its own and is safe for concurrent use.
type Router struct {
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for dispatch records.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated on every dispatch.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New returns a Router over reg.
func New(reg *registry.Registry, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch handles one inbound frame from origin. Errors are logged and
// swallowed; nothing is sent back to origin except a pong.
func (r *Router) Dispatch(origin *registry.Session, data []byte) {
	msg, err := envelope.Decode(data)
	if err != nil {
		r.drop(origin, "", err)
		return
	}

	_, known := msg.(envelope.Unknown)
	r.metrics.MessageReceived(msg.Type(), !known)

	if err := r.route(origin, msg); err != nil {
		r.drop(origin, msg.Type(), err)
	}
}

func (r *Router) route(origin *registry.Session, msg envelope.Message) error {
	switch m := msg.(type) {
	case envelope.Register:
		return r.register(origin, m)
	case envelope.TaktViewer:
		return r.relayTakt(m)
	case envelope.RepositoraAnswer:
		// Confirming or denying a sewing ticket is not implemented yet; the
		// answer is accepted and discarded.
		return nil
	case envelope.Ping:
		return r.reply(origin, envelope.Pong{})
	default:
		r.logger.Debug("ignoring envelope", "session", origin.ID(), "type", msg.Type())
		return nil
	}
}

func (r *Router) register(origin *registry.Session, m envelope.Register) error {
	if err := r.registry.Register(m.ID, origin); err != nil {
		if errors.Is(err, registry.ErrEmptyIdentifier) || errors.Is(err, registry.ErrMalformedIdentifier) {
			return &envelope.ValidationError{
				Type:   envelope.TypeRegister,
				Field:  "payload.id",
				Reason: "is invalid",
				Err:    err,
			}
		}
		return fmt.Errorf("register %q: %w", m.ID, err)
	}

	r.logger.Info("client registered",
		"session", origin.ID(),
		"client_id", m.ID,
		"total", r.registry.Len(),
	)
	return nil
}

func (r *Router) relayTakt(m envelope.TaktViewer) error {
	if m.ClientID == "" {
		return &envelope.ValidationError{Type: envelope.TypeTaktViewer, Field: "clientId", Reason: "is missing"}
	}

	target, ok := r.registry.Lookup(m.ClientID)
	if !ok {
		return fmt.Errorf("taktViewer target %q: %w", m.ClientID, registry.ErrNotFound)
	}

	if envelope.IsBlank(m.TaktTime) {
		return &envelope.ValidationError{Type: envelope.TypeTaktViewer, Field: "payload.takt_time", Reason: "is missing"}
	}

	data, err := envelope.Encode(envelope.TaktAlert{
		Text:     m.Text,
		TaktTime: m.TaktTime,
		ClientID: target.Identifier(),
	})
	if err != nil {
		return err
	}
	if err := target.Send(data); err != nil {
		return fmt.Errorf("%w: taktAlert to %q: %w", ErrDelivery, m.ClientID, err)
	}

	r.metrics.Relayed()
	r.logger.Info("takt alert relayed",
		"target_session", target.ID(),
		"client_id", target.Identifier(),
		"takt_time", string(m.TaktTime),
	)
	return nil
}

func (r *Router) reply(origin *registry.Session, msg envelope.Message) error {
	data, err := envelope.Encode(msg)
	if err != nil {
		return err
	}
	if err := origin.Send(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDelivery, msg.Type(), err)
	}
	return nil
}

// Kind classifies a dispatch error into one of the drop kinds. It returns ""
// for errors outside the taxonomy.
func Kind(err error) string {
	var decodeErr *envelope.DecodeError
	var validationErr *envelope.ValidationError

	switch {
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, registry.ErrNotFound):
		return KindNotFound
	case errors.Is(err, registry.ErrDuplicate), errors.Is(err, registry.ErrSessionBound):
		return KindDuplicate
	case errors.Is(err, ErrDelivery):
		return KindDelivery
	default:
		return ""
	}
}

func (r *Router) drop(origin *registry.Session, msgType string, err error) {
	kind := Kind(err)
	label := kind
	if label == "" {
		label = "internal"
	}
	r.metrics.Dropped(label)

	attrs := []any{
		"kind", label,
		"session", origin.ID(),
		"error", err,
	}
	if id := origin.Identifier(); id != "" {
		attrs = append(attrs, "client_id", id)
	}
	if msgType != "" {
		attrs = append(attrs, "type", msgType)
	}

	switch kind {
	case KindDuplicate:
		r.logger.Debug("dropping envelope", attrs...)
	case "":
		r.logger.Error("dropping envelope", attrs...)
	default:
		r.logger.Warn("dropping envelope", attrs...)
	}
}
