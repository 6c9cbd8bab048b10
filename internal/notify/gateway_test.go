package notify

import (
	"context"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogGatewayAcceptsAll(t *testing.T) {
	g := NewLogGateway(zap.NewNop().Sugar())
	out, err := g.SendMulticast(context.Background(), []string{"a", "b"}, Notification{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, out)
}

func TestBuildMulticastCarriesBadge(t *testing.T) {
	m := buildMulticast([]string{"a"}, Notification{
		Title: "New message",
		Body:  "hello",
		Data:  map[string]string{"type": "chat_message"},
		Badge: 4,
	})
	assert.Equal(t, []string{"a"}, m.Tokens)
	assert.Equal(t, "hello", m.Notification.Body)
	assert.Equal(t, "chat_message", m.Data["type"])
	require.NotNil(t, m.APNS.Payload.Aps.Badge)
	assert.Equal(t, 4, *m.APNS.Payload.Aps.Badge)
	assert.Equal(t, "default", m.APNS.Payload.Aps.Sound)
}

func TestBatchesSplitAtLimit(t *testing.T) {
	tokens := make([]string, 1001)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	got := batches(tokens, maxMulticastTokens)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 500)
	assert.Len(t, got[1], 500)
	assert.Equal(t, []string{"tok-1000"}, got[2])
	assert.Equal(t, "tok-500", got[1][0])

	assert.Len(t, batches(tokens[:500], maxMulticastTokens), 1)
	assert.Empty(t, batches(nil, maxMulticastTokens))
}

func TestOutcomesFollowBatchOrder(t *testing.T) {
	br := &messaging.BatchResponse{Responses: []*messaging.SendResponse{
		{Success: true}, {Success: false}, {Success: true},
	}}
	assert.Equal(t, []bool{true, false, true}, outcomes([]string{"a", "b", "c"}, br))
	assert.Equal(t, []bool{true, false, true, false}, outcomes([]string{"a", "b", "c", "d"}, br))
}
