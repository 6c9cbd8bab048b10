package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMirror struct {
	mu      sync.Mutex
	added   int
	removed int
}

func (m *countingMirror) AddConnection(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added++
	return nil
}

func (m *countingMirror) RemoveConnection(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed++
	return nil
}

func newTestServer() (*Server, *presence.Registry, *countingMirror) {
	reg := presence.NewRegistry()
	mirror := &countingMirror{}
	return NewServer(reg, mirror, metrics.NewNop(), Config{}, zap.NewNop().Sugar()), reg, mirror
}

func TestAttachRegistersPresence(t *testing.T) {
	s, reg, mirror := newTestServer()
	c := newConnection(nil, "h1", "bob", s)
	s.attach(c)

	assert.Equal(t, []string{"h1"}, reg.ActiveHandles("bob"))
	assert.Equal(t, 1, mirror.added)
}

func TestCloseUnregistersExactlyOnce(t *testing.T) {
	s, reg, mirror := newTestServer()
	c1 := newConnection(nil, "h1", "bob", s)
	c2 := newConnection(nil, "h2", "bob", s)
	s.attach(c1)
	s.attach(c2)

	c1.close()
	c1.close()

	assert.Equal(t, []string{"h2"}, reg.ActiveHandles("bob"))
	assert.Equal(t, 1, mirror.removed)

	s.CloseAll()
	assert.False(t, reg.Online("bob"))
	assert.Equal(t, 2, mirror.removed)
}

func TestEmitQueuesSignal(t *testing.T) {
	s, _, _ := newTestServer()
	c := newConnection(nil, "h1", "bob", s)
	s.attach(c)

	require.NoError(t, s.Emit("h1", "newMessageSignal"))
	var env Envelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, "newMessageSignal", env.Type)

	assert.ErrorIs(t, s.Emit("nope", "newMessageSignal"), ErrUnknownHandle)

	c.close()
	assert.ErrorIs(t, s.Emit("h1", "newMessageSignal"), ErrUnknownHandle)
}

func TestEmitSlowConsumer(t *testing.T) {
	s, _, _ := newTestServer()
	c := newConnection(nil, "h1", "bob", s)
	s.attach(c)

	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, s.Emit("h1", "newMessageSignal"))
	}
	assert.ErrorIs(t, s.Emit("h1", "newMessageSignal"), ErrSlowConsumer)
}
