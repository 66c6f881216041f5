package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

var (
	ErrBackendClosed  = errors.New("mq backend closed")
	ErrSubscriberFull = errors.New("mq subscriber buffer full")
)

// MemoryBackend delivers messages to subscribers in the same process. Messages
// published while nobody subscribes to the channel are dropped, and Publish
// never blocks on a slow subscriber.
type MemoryBackend struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{subs: make(map[string][]chan Message)}
}

func (b *MemoryBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return "", ErrBackendClosed
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	for _, sub := range b.subs[channel] {
		select {
		case sub <- msg:
		default:
			return "", ErrSubscriberFull
		}
	}
	return msg.ID, nil
}

// Subscribe blocks until ctx is done or the backend is closed. Failed messages
// are retried once before being dropped.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	sub := make(chan Message, memoryBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	defer b.unsubscribe(channel, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return ErrBackendClosed
			}
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (b *MemoryBackend) unsubscribe(channel string, sub chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, s := range subs {
		if s == sub {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, sub := range subs {
			close(sub)
		}
		delete(b.subs, channel)
	}
	return nil
}
