package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seedMessage(t *testing.T, msgs *MemoryMessageRepo, id, from, to string, offset int, content domain.Content) {
	t.Helper()
	require.NoError(t, msgs.Create(context.Background(), &domain.Message{
		ID: id, SenderID: from, ReceiverID: to, Content: content,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
	}))
}

func TestAppendCountsUnreadForReceiverOnly(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, boxes.Append(ctx, "alice", "bob", id, false))
		require.NoError(t, boxes.Append(ctx, "bob", "alice", id, true))
	}

	sender, err := boxes.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, sender.UnreadCount)
	assert.Equal(t, "m3", sender.LastReadMessageID)

	receiver, err := boxes.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, receiver.UnreadCount)
	assert.Empty(t, receiver.LastReadMessageID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, receiver.Messages)
}

func TestAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()

	require.NoError(t, boxes.Append(ctx, "bob", "alice", "m1", true))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "m1", true))

	mb, err := boxes.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, mb.Messages)
	assert.Equal(t, 1, mb.UnreadCount)
}

func TestListVisibleNewestFirstAndMarksRead(t *testing.T) {
	ctx := context.Background()
	msgs := NewMemoryMessageRepo()
	boxes := NewMemoryMailboxRepo()

	for i, id := range []string{"m1", "m2", "m3"} {
		seedMessage(t, msgs, id, "alice", "bob", i, domain.TextContent("hi "+id))
		require.NoError(t, boxes.Append(ctx, "bob", "alice", id, true))
	}

	out, err := ListVisible(ctx, boxes, msgs, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "m3", out[0].ID)
	assert.Equal(t, "m1", out[2].ID)

	mb, err := boxes.Get(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, mb.UnreadCount)
	assert.Equal(t, "m3", mb.LastReadMessageID)
}

func TestListVisibleHonoursTruncationBoundary(t *testing.T) {
	ctx := context.Background()
	msgs := NewMemoryMessageRepo()
	boxes := NewMemoryMailboxRepo()

	seedMessage(t, msgs, "old", "alice", "bob", 0, domain.TextContent("old"))
	seedMessage(t, msgs, "new", "alice", "bob", 10, domain.TextContent("new"))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "old", true))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "new", true))
	boxes.boxes[pairKey{"bob", "alice"}].TruncationBoundary = base

	out, err := ListVisible(ctx, boxes, msgs, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].ID)
}

func TestListVisibleEmptyLeavesCursor(t *testing.T) {
	ctx := context.Background()
	msgs := NewMemoryMessageRepo()
	boxes := NewMemoryMailboxRepo()
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "gone", true))

	out, err := ListVisible(ctx, boxes, msgs, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, out)

	mb, _ := boxes.Get(ctx, "bob", "alice")
	assert.Equal(t, 1, mb.UnreadCount)
}

func TestListVisibleMissingMailbox(t *testing.T) {
	_, err := ListVisible(context.Background(), NewMemoryMailboxRepo(), NewMemoryMessageRepo(), "bob", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTruncateSplitsAtMessage(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, boxes.Append(ctx, "bob", "alice", id, true))
	}

	removed, err := boxes.Truncate(ctx, "bob", "alice", "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, removed)

	mb, _ := boxes.Get(ctx, "bob", "alice")
	assert.Equal(t, []string{"m3"}, mb.Messages)
	assert.Equal(t, 0, mb.UnreadCount)
}

func TestTruncateToEmptyClearsCursor(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()
	require.NoError(t, boxes.Append(ctx, "alice", "bob", "m1", false))

	_, err := boxes.Truncate(ctx, "alice", "bob", "m1")
	require.NoError(t, err)

	mb, _ := boxes.Get(ctx, "alice", "bob")
	assert.Empty(t, mb.Messages)
	assert.Empty(t, mb.LastReadMessageID)
}

func TestTruncateUnknownMessage(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()
	require.NoError(t, boxes.Append(ctx, "alice", "bob", "m1", false))

	_, err := boxes.Truncate(ctx, "alice", "bob", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContainsAndDeletePair(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()
	require.NoError(t, boxes.Append(ctx, "alice", "bob", "m1", false))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "m1", true))

	kept, err := boxes.Contains(ctx, "bob", "alice", []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"m1": true}, kept)

	require.NoError(t, boxes.DeletePair(ctx, "bob", "alice"))
	_, err = boxes.Get(ctx, "alice", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = boxes.Contains(ctx, "bob", "alice", []string{"m1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTotalUnreadAndListForOwner(t *testing.T) {
	ctx := context.Background()
	boxes := NewMemoryMailboxRepo()
	tick := base
	boxes.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	require.NoError(t, boxes.Append(ctx, "bob", "carol", "c1", false))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "a1", true))
	require.NoError(t, boxes.Append(ctx, "bob", "alice", "a2", true))
	require.NoError(t, boxes.Append(ctx, "bob", "dave", "d1", true))

	total, err := boxes.TotalUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	list, err := boxes.ListForOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Partner)
	assert.Equal(t, "dave", list[1].Partner)
	assert.Equal(t, "carol", list[2].Partner)
}

func TestCountImageRefs(t *testing.T) {
	ctx := context.Background()
	msgs := NewMemoryMessageRepo()
	seedMessage(t, msgs, "i1", "alice", "bob", 0, domain.ImageContent([]string{"a.jpg", "b.jpg"}))
	seedMessage(t, msgs, "i2", "alice", "bob", 1, domain.ImageContent([]string{"a.jpg"}))

	n, err := msgs.CountImageRefs(ctx, "a.jpg")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := msgs.DeleteMany(ctx, []string{"i1", "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	n, _ = msgs.CountImageRefs(ctx, "b.jpg")
	assert.Zero(t, n)
}

func TestIDsBetweenEitherDirection(t *testing.T) {
	msgs := NewMemoryMessageRepo()
	seedMessage(t, msgs, "p1", "alice", "bob", 0, domain.TextContent("a"))
	seedMessage(t, msgs, "p2", "bob", "alice", 1, domain.TextContent("b"))
	seedMessage(t, msgs, "p3", "alice", "carol", 2, domain.TextContent("c"))

	ids, err := msgs.IDsBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestTokenUpsertAndPrune(t *testing.T) {
	ctx := context.Background()
	tokens := NewMemoryTokenRepo()

	created, err := tokens.Upsert(ctx, "bob", "tok-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	dev, ok := tokens.Device("bob", "tok-1")
	require.True(t, ok)
	assert.Equal(t, "unknown", dev.Device)

	created, err = tokens.Upsert(ctx, "bob", "tok-1", "pixel")
	require.NoError(t, err)
	assert.False(t, created)
	dev, _ = tokens.Device("bob", "tok-1")
	assert.Equal(t, "pixel", dev.Device)

	_, _ = tokens.Upsert(ctx, "bob", "tok-2", "ipad")
	n, err := tokens.Prune(ctx, "bob", []string{"tok-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, _ := tokens.ListTokens(ctx, "bob")
	assert.Equal(t, []string{"tok-2"}, list)

	require.NoError(t, tokens.Delete(ctx, "bob", "tok-2"))
	list, _ = tokens.ListTokens(ctx, "bob")
	assert.Empty(t, list)
}
