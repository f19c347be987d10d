// Package pubsub fans updated invoice records out to in-process
// subscribers, keyed by receiving address. It feeds the websocket
// status stream.
package pubsub

import (
	"sync"

	"github.com/google/uuid"

	"BTCPayGateway/internal/invoice"
)

const subscriberBuffer = 8

type PubSub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan invoice.Record
}

func New() *PubSub {
	return &PubSub{subs: make(map[string]map[string]chan invoice.Record)}
}

// Subscribe registers interest in one address. The returned channel is
// closed on Unsubscribe.
func (ps *PubSub) Subscribe(address string) (id string, ch chan invoice.Record) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.subs[address] == nil {
		ps.subs[address] = make(map[string]chan invoice.Record)
	}
	id = uuid.NewString()
	ch = make(chan invoice.Record, subscriberBuffer)
	ps.subs[address][id] = ch
	return id, ch
}

func (ps *PubSub) Unsubscribe(address, id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.subs[address] == nil || ps.subs[address][id] == nil {
		return
	}
	close(ps.subs[address][id])
	delete(ps.subs[address], id)
	if len(ps.subs[address]) == 0 {
		delete(ps.subs, address)
	}
}

// Publish delivers a record to every subscriber of the address. A full
// subscriber buffer drops the record instead of blocking the publisher:
// reconciliation must never stall on a slow websocket.
func (ps *PubSub) Publish(address string, rec invoice.Record) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, ch := range ps.subs[address] {
		select {
		case ch <- rec:
		default:
		}
	}
}
