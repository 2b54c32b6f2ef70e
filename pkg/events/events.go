// Package events carries the notifications emitted by a sync run.
//
// The engine never writes records itself. Each new record is handed to a
// Notifier as a RecordAdded event; the persistence collaborator behind the
// Notifier appends it. A RunCompleted event is sent once a run finishes
// successfully and never after a failed run.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event types as they appear on the wire.
const (
	TypeRecordAdded  = "handle-update"
	TypeRunCompleted = "handle-update-complete"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "connsync_events_total",
	Help: "Notifications delivered by notifier, type and result",
}, []string{"notifier", "type", "result"})

// RecordAdded announces one new record. Record is the serialized
// records.Record.
type RecordAdded struct {
	Tenant   string          `json:"tenant"`
	Subject  string          `json:"subject"`
	Platform string          `json:"platform"`
	Record   json.RawMessage `json:"record"`
	RunID    string          `json:"run_id"`
}

// RunCompleted announces the successful end of a run.
type RunCompleted struct {
	RunID    string `json:"run_id"`
	Platform string `json:"platform"`
	Tenant   string `json:"tenant"`
	Subject  string `json:"subject"`
}

// Notifier delivers run notifications. Implementations must be safe for
// concurrent use by different runs.
type Notifier interface {
	RecordAdded(ctx context.Context, ev RecordAdded) error
	RunComplete(ctx context.Context, ev RunCompleted) error
}

// Envelope is the queued form of an event.
type Envelope struct {
	Type         string        `json:"type"`
	At           time.Time     `json:"at"`
	RecordAdded  *RecordAdded  `json:"record_added,omitempty"`
	RunCompleted *RunCompleted `json:"run_completed,omitempty"`
}

var (
	// ErrUnknownEvent is returned when decoding an envelope of an unknown type.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrMalformedEvent is returned when an envelope is not valid JSON.
	ErrMalformedEvent = errors.New("malformed event")
)

// DecodeEnvelope parses a queued envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	switch {
	case env.Type == TypeRecordAdded && env.RecordAdded != nil:
	case env.Type == TypeRunCompleted && env.RunCompleted != nil:
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return env, nil
}

func recordEnvelope(ev RecordAdded) Envelope {
	return Envelope{Type: TypeRecordAdded, At: time.Now().UTC(), RecordAdded: &ev}
}

func completedEnvelope(ev RunCompleted) Envelope {
	return Envelope{Type: TypeRunCompleted, At: time.Now().UTC(), RunCompleted: &ev}
}

func observe(notifier, eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsTotal.WithLabelValues(notifier, eventType, result).Inc()
}

// Multi fans each event out to every notifier in order. All notifiers are
// attempted; their errors are joined.
type Multi []Notifier

// RecordAdded implements Notifier.
func (m Multi) RecordAdded(ctx context.Context, ev RecordAdded) error {
	var errs []error
	for _, n := range m {
		if err := n.RecordAdded(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunComplete implements Notifier.
func (m Multi) RunComplete(ctx context.Context, ev RunCompleted) error {
	var errs []error
	for _, n := range m {
		if err := n.RunComplete(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers a decoded envelope to n.
func Dispatch(ctx context.Context, n Notifier, env Envelope) error {
	switch {
	case env.Type == TypeRecordAdded && env.RecordAdded != nil:
		return n.RecordAdded(ctx, *env.RecordAdded)
	case env.Type == TypeRunCompleted && env.RunCompleted != nil:
		return n.RunComplete(ctx, *env.RunCompleted)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}
