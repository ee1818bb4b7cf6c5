// Package events publishes action lifecycle changes for listeners outside
// the process (dashboards, notification services).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectActionStatus carries every status and progress change.
const SubjectActionStatus = "aiassist.actions.status"

// ActionEvent is the JSON body published for each change.
type ActionEvent struct {
	ActionID   int64     `json:"action_id"`
	ContextID  int64     `json:"context_id"`
	UserID     int64     `json:"user_id"`
	ActionName string    `json:"action_name"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	StatusText string    `json:"status_text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers action events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishAction(ctx context.Context, ev ActionEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishAction(context.Context, ActionEvent) error { return nil }

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. The connection retries in the
// background, so a broker that is down at startup does not fail the caller.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("aiassist"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, subject: SubjectActionStatus}, nil
}

func (p *NATSPublisher) PublishAction(_ context.Context, ev ActionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling action event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev ActionEvent) error

func (f PublisherFunc) PublishAction(ctx context.Context, ev ActionEvent) error { return f(ctx, ev) }

// Log writes every event to logger at debug level.
func Log(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return PublisherFunc(func(ctx context.Context, ev ActionEvent) error {
		logger.DebugContext(ctx, "action event",
			"action_id", ev.ActionID,
			"context_id", ev.ContextID,
			"status", ev.Status,
			"progress", ev.Progress,
			"status_text", ev.StatusText)
		return nil
	})
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) PublishAction(ctx context.Context, ev ActionEvent) error {
	var first error
	for _, p := range m {
		if err := p.PublishAction(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every member that has a Close method.
func (m Multi) Close() error {
	var first error
	for _, p := range m {
		c, ok := p.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ActionEvent
}

func (r *Recorder) PublishAction(_ context.Context, ev ActionEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []ActionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActionEvent, len(r.events))
	copy(out, r.events)
	return out
}
