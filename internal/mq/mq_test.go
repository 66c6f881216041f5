package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/types"
)

// recordingBackend keeps published messages and replays them to Subscribe.
type recordingBackend struct {
	mu        sync.Mutex
	published []Message
	channels  []string
	err       error
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.channels = append(b.channels, channel)
	b.published = append(b.published, Message{ID: "m-1", Data: data, Attributes: attrs})
	return "m-1", nil
}

func (b *recordingBackend) Subscribe(ctx context.Context, _ string, handler Handler) error {
	b.mu.Lock()
	msgs := append([]Message(nil), b.published...)
	b.mu.Unlock()
	for _, msg := range msgs {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func TestPublishEventRoundTrip(t *testing.T) {
	backend := &recordingBackend{}
	queue := New(backend, "account-events", nil)

	err := queue.PublishEvent(context.Background(), types.AccountEvent{
		Type:  types.EventVerificationCode,
		Email: "bob@example.com",
		Code:  "123456",
	})
	require.NoError(t, err)

	require.Len(t, backend.published, 1)
	assert.Equal(t, []string{"account-events"}, backend.channels)
	assert.Equal(t, types.EventVerificationCode, backend.published[0].Attributes["type"])

	var got []types.AccountEvent
	err = queue.SubscribeEvents(context.Background(), func(_ context.Context, event types.AccountEvent) error {
		got = append(got, event)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "123456", got[0].Code)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].OccurredAt.IsZero())
}

func TestPublishEventBackendError(t *testing.T) {
	queue := New(&recordingBackend{err: errors.New("broker down")}, "account-events", nil)
	err := queue.PublishEvent(context.Background(), types.AccountEvent{Type: types.EventUserDeleted})
	assert.ErrorContains(t, err, "broker down")
}

func TestSubscribeEventsDropsMalformed(t *testing.T) {
	backend := &recordingBackend{published: []Message{{ID: "bad", Data: []byte("{not json")}}}
	queue := New(backend, "account-events", nil)

	called := false
	err := queue.SubscribeEvents(context.Background(), func(context.Context, types.AccountEvent) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestMemoryBackendDelivers(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- backend.Subscribe(ctx, "events", func(_ context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()

	// wait for the subscription to register
	require.Eventually(t, func() bool {
		backend.mu.RLock()
		defer backend.mu.RUnlock()
		return len(backend.subs["events"]) == 1
	}, time.Second, 5*time.Millisecond)

	id, err := backend.Publish(context.Background(), "events", []byte("hello"), map[string]string{"type": "x"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, "hello", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMemoryBackendClosed(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	_, err := backend.Publish(context.Background(), "events", nil, nil)
	assert.ErrorIs(t, err, ErrBackendClosed)
	assert.ErrorIs(t, backend.Subscribe(context.Background(), "events", nil), ErrBackendClosed)
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{Backend: "memory", Channel: "events"}, nil)
	require.NoError(t, err)
	require.NoError(t, queue.Close())

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"}, nil)
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))
	assert.Equal(t, map[string]string{
		"type":  "user.deleted",
		"raw":   "bytes",
		"count": "3",
	}, headersToAttributes(amqp.Table{
		"type":  "user.deleted",
		"raw":   []byte("bytes"),
		"count": int32(3),
	}))
}
