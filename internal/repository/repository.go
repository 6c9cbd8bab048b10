package repository

import (
	"context"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
)

// MessageRepository is the append-only Message Store. Messages are never
// updated; DeleteMany is reserved for the collector.
type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindManyByID(ctx context.Context, ids []string) ([]*domain.Message, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	CountImageRefs(ctx context.Context, ref string) (int64, error)
	// IDsBetween lists every message exchanged between a and b in either direction.
	IDsBetween(ctx context.Context, a, b string) ([]string, error)
}

// MailboxRepository stores one mailbox per ordered (owner, partner) pair.
type MailboxRepository interface {
	// Append creates the mailbox if needed and adds messageID once. Receivers
	// get an unread increment; senders get their read cursor moved.
	Append(ctx context.Context, owner, partner, messageID string, isReceiver bool) error
	Get(ctx context.Context, owner, partner string) (*domain.Mailbox, error)
	MarkRead(ctx context.Context, owner, partner, lastReadID string) error
	// Truncate drops every reference up to and including messageID and returns them.
	Truncate(ctx context.Context, owner, partner, messageID string) ([]string, error)
	// Contains returns the subset of ids still listed in the mailbox.
	Contains(ctx context.Context, owner, partner string, ids []string) (map[string]bool, error)
	DeletePair(ctx context.Context, a, b string) error
	TotalUnread(ctx context.Context, owner string) (int, error)
	ListForOwner(ctx context.Context, owner string) ([]domain.Summary, error)
}

type TokenRepository interface {
	Upsert(ctx context.Context, owner, token, device string) (created bool, err error)
	Delete(ctx context.Context, owner, token string) error
	ListTokens(ctx context.Context, owner string) ([]string, error)
	Prune(ctx context.Context, owner string, tokens []string) (int64, error)
}

// Transactor runs fn atomically when the backing store supports it. When
// Atomic is true fn must not issue concurrent store calls.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Atomic() bool
}

// NoTx runs fn directly.
type NoTx struct{}

func (NoTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
func (NoTx) Atomic() bool                                                       { return false }
