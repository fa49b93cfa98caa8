package query

import (
	"context"
	"sync"

	"catalog-frontend/internal/util"
)

// MutationStatus is the state of a mutation.
type MutationStatus int

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "idle"
	}
}

// MutationConfig holds the hooks of a Mutation. All fields are optional.
type MutationConfig[In, Out any] struct {
	// Invalidates lists the keys to invalidate after a success.
	Invalidates func(in In, out Out) []Key
	OnSuccess   func(ctx context.Context, in In, out Out)
	OnError     func(ctx context.Context, in In, err error)
}

// Mutation wraps a write against the remote API. A success invalidates the
// configured keys exactly once each; nothing is written into the cache
// optimistically.
type Mutation[In, Out any] struct {
	name   string
	client *Client
	fn     func(ctx context.Context, in In) (Out, error)
	cfg    MutationConfig[In, Out]

	mu      sync.Mutex
	status  MutationStatus
	lastErr error
}

// NewMutation creates a new mutation named name (used as a metric label).
func NewMutation[In, Out any](name string, client *Client, fn func(ctx context.Context, in In) (Out, error), cfg MutationConfig[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		name:   name,
		client: client,
		fn:     fn,
		cfg:    cfg,
	}
}

// Mutate runs the mutation.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	m.setStatus(MutationPending, nil)

	out, err := m.fn(ctx, in)
	if err != nil {
		m.setStatus(MutationError, err)
		util.MutationsTotal.WithLabelValues(m.name, "error").Inc()
		if m.cfg.OnError != nil {
			m.cfg.OnError(ctx, in, err)
		}
		return out, err
	}

	m.setStatus(MutationSuccess, nil)
	util.MutationsTotal.WithLabelValues(m.name, "success").Inc()

	if m.cfg.Invalidates != nil && m.client != nil {
		seen := make(map[Key]struct{})
		var keys []Key
		for _, k := range m.cfg.Invalidates(in, out) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		m.client.Invalidate(keys...)
	}
	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx, in, out)
	}
	return out, nil
}

// Status returns the state of the latest Mutate call and its error.
func (m *Mutation[In, Out]) Status() (MutationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.lastErr
}

func (m *Mutation[In, Out]) setStatus(s MutationStatus, err error) {
	m.mu.Lock()
	m.status = s
	m.lastErr = err
	m.mu.Unlock()
}
