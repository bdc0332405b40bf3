package sse

import (
	"context"
	"sync"
)

// Broker fans values out to subscribers grouped by key (a terminal session,
// a participant). Sends never block: a client with a full buffer misses the
// value.
type Broker[T any] struct {
	mu      sync.RWMutex
	clients map[string][]chan T
	buffer  int
}

func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = 10
	}
	return &Broker[T]{
		clients: make(map[string][]chan T),
		buffer:  buffer,
	}
}

// Subscribe registers a client for key until ctx is done, at which point the
// returned channel is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, key string) <-chan T {
	clientChan := make(chan T, b.buffer)

	b.mu.Lock()
	b.clients[key] = append(b.clients[key], clientChan)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(key, clientChan)
	}()

	return clientChan
}

// Publish delivers v to every client subscribed to key.
func (b *Broker[T]) Publish(key string, v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, clientChan := range b.clients[key] {
		select {
		case clientChan <- v:
		default:
		}
	}
}

// CloseKey disconnects every client of key.
func (b *Broker[T]) CloseKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clientChan := range b.clients[key] {
		close(clientChan)
	}
	delete(b.clients, key)
}

func (b *Broker[T]) ClientCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[key])
}

func (b *Broker[T]) remove(key string, clientChan chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[key]
	for i, ch := range clients {
		if ch == clientChan {
			b.clients[key] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(b.clients[key]) == 0 {
		delete(b.clients, key)
	}
}
