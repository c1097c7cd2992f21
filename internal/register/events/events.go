// Package events fans attendance change payloads out to subscribed
// viewers. The reconciler produces the payload; delivery is this
// package's collaborators' job, and a delivery failure never fails the
// write that produced it.
package events

import (
	"context"
	"sync"

	"rollbook/internal/register/models"
)

// Publisher delivers change events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Close()
}

// Memory captures events in process, for tests and single-node dev mode.
type Memory struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, event models.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (m *Memory) Events() []models.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChangeEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Close() {}
