// Package poller follows an action's status the way a client UI does:
// it polls at a fixed interval and reports each change until the action
// reaches a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultMaxErrors = 3
)

// ErrNotFound is returned by a Fetcher when the action does not exist.
// Watch stops at once instead of retrying.
var ErrNotFound = errors.New("action not found")

// Status is the client-visible state of an action.
type Status struct {
	ID          int64
	Status      string
	Progress    int
	StatusText  string
	Description string
}

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	switch s.Status {
	case "finished", "error", "cancelled":
		return true
	}
	return false
}

// Failed reports whether the action ended without finishing.
func (s Status) Failed() bool {
	return s.Status == "error" || s.Status == "cancelled"
}

// Fetcher reads the current status of an action.
type Fetcher interface {
	FetchStatus(ctx context.Context, id int64) (Status, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id int64) (Status, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, id int64) (Status, error) {
	return f(ctx, id)
}

type Poller struct {
	Fetcher Fetcher
	// Interval between polls. Defaults to DefaultInterval.
	Interval time.Duration
	// MaxErrors is the number of consecutive fetch errors tolerated.
	// Defaults to DefaultMaxErrors.
	MaxErrors int
	Logger    *slog.Logger
}

func New(f Fetcher) *Poller {
	return &Poller{Fetcher: f, Interval: DefaultInterval, MaxErrors: DefaultMaxErrors}
}

// Watch polls action id until it is terminal, calling onUpdate for the first
// status and for every status that differs from the previous one. It returns
// the terminal status.
func (p *Poller) Watch(ctx context.Context, id int64, onUpdate func(Status)) (Status, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxErrors := p.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		last     Status
		seen     bool
		failures int
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := p.Fetcher.FetchStatus(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if errors.Is(err, ErrNotFound) {
				return last, fmt.Errorf("polling action %d: %w", id, err)
			}
			failures++
			logger.Warn("status poll failed", "action_id", id, "attempt", failures, "error", err)
			if failures >= maxErrors {
				return last, fmt.Errorf("polling action %d: giving up after %d errors: %w", id, failures, err)
			}
		default:
			failures = 0
			if !seen || st != last {
				seen = true
				last = st
				if onUpdate != nil {
					onUpdate(st)
				}
			}
			if st.Terminal() {
				return st, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
