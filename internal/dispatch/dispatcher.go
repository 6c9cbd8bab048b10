package dispatch

import (
	"context"

	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/notify"
	"go.uber.org/zap"
)

// Transport delivers a named event to one open connection, at most once.
type Transport interface {
	Emit(handle, event string) error
}

type Presence interface {
	ActiveHandles(userID string) []string
}

type TokenStore interface {
	ListTokens(ctx context.Context, owner string) ([]string, error)
	Prune(ctx context.Context, owner string, tokens []string) (int64, error)
}

type UnreadCounter interface {
	TotalUnread(ctx context.Context, owner string) (int, error)
}

type Path string

const (
	PathRealtime Path = "realtime"
	PathPush     Path = "push"
	PathNone     Path = "none"
)

type Dispatcher struct {
	presence  Presence
	transport Transport
	tokens    TokenStore
	unread    UnreadCounter
	gateway   notify.Gateway
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

func New(p Presence, t Transport, tokens TokenStore, unread UnreadCounter, g notify.Gateway, m *metrics.Metrics, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{presence: p, transport: t, tokens: tokens, unread: unread, gateway: g, metrics: m, log: log}
}

// Dispatch signals every open connection of receiverID, or falls back to a
// push notification when there are none. Failures are logged, never returned:
// the client can always pull state later.
func (d *Dispatcher) Dispatch(ctx context.Context, receiverID, signal string, n notify.Notification) Path {
	path := d.dispatch(ctx, receiverID, signal, n)
	d.metrics.Dispatches.WithLabelValues(string(path)).Inc()
	return path
}

func (d *Dispatcher) dispatch(ctx context.Context, receiverID, signal string, n notify.Notification) Path {
	if handles := d.presence.ActiveHandles(receiverID); len(handles) > 0 {
		for _, h := range handles {
			if err := d.transport.Emit(h, signal); err != nil {
				d.log.Warnw("emit failed", "user", receiverID, "handle", h, "err", err)
			}
		}
		return PathRealtime
	}

	tokens, err := d.tokens.ListTokens(ctx, receiverID)
	if err != nil {
		d.log.Errorw("list device tokens", "user", receiverID, "err", err)
		return PathNone
	}
	if len(tokens) == 0 {
		return PathNone
	}

	n.Title = capTitle(n.Title)
	n.Body = TruncateBody(n.Body)
	if total, err := d.unread.TotalUnread(ctx, receiverID); err != nil {
		d.log.Warnw("badge count", "user", receiverID, "err", err)
	} else {
		n.Badge = total
	}

	outcomes, err := d.gateway.SendMulticast(ctx, tokens, n)
	if err != nil {
		d.log.Errorw("push send failed", "user", receiverID, "tokens", len(tokens), "err", err)
		return PathPush
	}
	d.pruneTokens(ctx, receiverID, tokens, outcomes)
	return PathPush
}

func (d *Dispatcher) pruneTokens(ctx context.Context, owner string, tokens []string, outcomes []bool) {
	var failed []string
	for i, tok := range tokens {
		if i < len(outcomes) && !outcomes[i] {
			failed = append(failed, tok)
		}
	}
	if len(failed) == 0 {
		return
	}
	n, err := d.tokens.Prune(ctx, owner, failed)
	if err != nil {
		d.log.Errorw("prune tokens", "user", owner, "err", err)
		return
	}
	d.metrics.TokensPruned.Add(float64(n))
	d.log.Infow("pruned stale tokens", "user", owner, "count", n)
}
