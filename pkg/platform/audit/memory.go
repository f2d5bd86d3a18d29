package audit

import (
	"context"
	"sync"

	id "gradegate/pkg/domain"
)

// Memory keeps every event in process, unbounded. Tests read it back.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// ListByLearner returns the learner's events in emission order.
func (m *Memory) ListByLearner(_ context.Context, learnerID id.LearnerID) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.LearnerID == learnerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListAll(_ context.Context) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event{}, m.events...), nil
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *Memory) Close() error { return nil }
