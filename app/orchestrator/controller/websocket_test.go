package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []ServerMessage
	failWith error
}

func (w *recordingWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failWith != nil {
		return w.failWith
	}
	w.messages = append(w.messages, v.(ServerMessage))
	return nil
}

func (w *recordingWriter) SetWriteDeadline(time.Time) error { return nil }

func (w *recordingWriter) snapshot() []ServerMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ServerMessage, len(w.messages))
	copy(out, w.messages)
	return out
}

func TestClientSubscriptions(t *testing.T) {
	subs := newClientSubscriptions()

	assert.False(t, subs.IsSubscribed("acme"))

	subs.Subscribe("acme")
	assert.True(t, subs.IsSubscribed("acme"))
	assert.False(t, subs.IsSubscribed("globex"))

	subs.Unsubscribe("acme")
	assert.False(t, subs.IsSubscribed("acme"))

	// Wildcard matches every tenant.
	subs.Subscribe("*")
	assert.True(t, subs.IsSubscribed("acme"))
	assert.True(t, subs.IsSubscribed("globex"))

	subs.Unsubscribe("*")
	assert.False(t, subs.IsSubscribed("acme"))
}

// TestWriteLoopDrainsThenExitsOnCancel covers connection teardown: pending
// messages reach the peer and cancellation ends the loop without closing the
// send channel out from under the producers.
func TestWriteLoopDrainsThenExitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan ServerMessage, 8)
	send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"tenantId": "acme"}}

	writer := &recordingWriter{}
	done := make(chan struct{})
	go func() {
		writeLoop(ctx, writer, cancel, send)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(writer.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write loop did not exit after cancellation")
	}

	msgs := writer.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscribed", msgs[0].Type)
}

func TestWriteLoopCancelsOnWriteError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan ServerMessage, 1)
	send <- ServerMessage{Type: "status", Payload: nil}

	writer := &recordingWriter{failWith: assert.AnError}
	done := make(chan struct{})
	go func() {
		writeLoop(ctx, writer, cancel, send)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write loop did not exit on write error")
	}
	assert.Error(t, ctx.Err(), "a failed write must cancel the connection context")
}

// TestConnectionTeardownWithActiveProducers exercises the shutdown ordering
// the handler relies on: producers still firing into send while the reader
// goes away must not bring the process down, and both loops must drain out
// once the context is cancelled.
func TestConnectionTeardownWithActiveProducers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	send := make(chan ServerMessage, 256)
	writer := &recordingWriter{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pingLoop(ctx, send, time.Millisecond)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeLoop(ctx, writer, cancel, send)
	}()

	// Let pings flow for a moment, then tear down mid-stream.
	require.Eventually(t, func() bool {
		return len(writer.snapshot()) > 0
	}, time.Second, time.Millisecond)

	cancel()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("goroutines did not exit after cancellation")
	}

	for _, msg := range writer.snapshot() {
		assert.Equal(t, "ping", msg.Type)
	}
}
