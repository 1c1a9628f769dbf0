package sse

import (
	"context"
	"sync"

	"ms-scanning/internal/models"
)

// AllSlots subscribes to scans of every slot.
const AllSlots int64 = 0

// CounterEmitter fans committed scans out to live counter subscribers.
type CounterEmitter struct {
	mu      sync.RWMutex
	clients map[int64][]chan models.ScanRecordedMessage
	closed  bool
}

func NewCounterEmitter() *CounterEmitter {
	return &CounterEmitter{clients: make(map[int64][]chan models.ScanRecordedMessage)}
}

// Subscribe registers a client for slotID (or AllSlots). The channel is
// closed once ctx is done or the emitter is closed.
func (e *CounterEmitter) Subscribe(ctx context.Context, slotID int64) <-chan models.ScanRecordedMessage {
	ch := make(chan models.ScanRecordedMessage, 16)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	e.clients[slotID] = append(e.clients[slotID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(slotID, ch)
	}()
	return ch
}

// PublishScanRecorded delivers msg to the slot's subscribers and to
// AllSlots subscribers. Slow clients miss updates instead of blocking scans.
func (e *CounterEmitter) PublishScanRecorded(ctx context.Context, msg models.ScanRecordedMessage) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, key := range []int64{msg.QRSlotID, AllSlots} {
		for _, ch := range e.clients[key] {
			select {
			case ch <- msg:
			default:
			}
		}
	}
	return nil
}

func (e *CounterEmitter) remove(slotID int64, ch chan models.ScanRecordedMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[slotID]
	for i, c := range clients {
		if c == ch {
			e.clients[slotID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[slotID]) == 0 {
		delete(e.clients, slotID)
	}
}

// Close ends every subscription so open streams return. Later subscribers
// get an already closed channel.
func (e *CounterEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for slotID, clients := range e.clients {
		for _, ch := range clients {
			close(ch)
		}
		delete(e.clients, slotID)
	}
}

// ClientCount returns the number of subscribers of slotID.
func (e *CounterEmitter) ClientCount(slotID int64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[slotID])
}
