package chain

import (
	"context"
	"errors"
	"sync"
)

// MultiClient fans address generation over several service endpoints.
// It sticks to the current endpoint until it accumulates failThreshold
// consecutive failures, then rotates to the next one. With more than
// one endpoint a failed call also tries the remaining endpoints before
// giving up.
type MultiClient struct {
	clients       []*Client
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(clients []*Client, failThreshold int) (*MultiClient, error) {
	if len(clients) == 0 {
		return nil, errors.New("address service endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	return &MultiClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) GenerateReceivingAddress(ctx context.Context, callbackURL string) (*ReceivingAddress, error) {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.current()
		out, err := client.GenerateReceivingAddress(ctx, callbackURL)
		if err == nil {
			m.resetFailures(idx)
			return out, nil
		}
		lastErr = err
		if m.noteFailure(idx) || len(m.clients) > 1 {
			m.rotate()
		}
	}
	return nil, lastErr
}

func (m *MultiClient) current() (*Client, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

// noteFailure records a failure and reports whether the threshold was hit.
func (m *MultiClient) noteFailure(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != idx {
		return false
	}
	m.failCount++
	return m.failCount >= m.failThreshold
}

func (m *MultiClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}
