package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/mailbox-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type BlockHandler interface {
	OnBlock(ctx context.Context, a, b string) error
}

// BlockEvent is what the relationship service publishes when one user blocks another.
type BlockEvent struct {
	Type      string `json:"type"`
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
}

// Consumer turns relationship.blocked events into conversation severance.
type Consumer struct {
	reader     *kafkago.Reader
	handler    BlockHandler
	maxRetries int
	retryDelay time.Duration
	log        *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID string, h BlockHandler, maxRetries, retryBackoffMs int, log *zap.SugaredLogger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: r, handler: h,
		maxRetries: maxRetries, retryDelay: time.Duration(retryBackoffMs) * time.Millisecond,
		log: log,
	}
}

// Run reads until ctx is cancelled. Offsets are committed after handling,
// including for events that could not be processed after all retries.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Errorw("kafka fetch", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if err := c.handle(ctx, m.Value); err != nil {
			c.log.Errorw("drop block event", "offset", m.Offset, "partition", m.Partition, "err", err)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warnw("kafka commit", "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw []byte) error {
	var ev BlockEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if ev.Type != "" && ev.Type != domain.EventRelationshipBlocked {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	op := func() error {
		err := c.handler.OnBlock(ctx, ev.BlockerID, ev.BlockedID)
		if errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.log.Warnw("block handling failed, retrying", "blocker", ev.BlockerID, "blocked", ev.BlockedID, "err", err)
		}
		return err
	}
	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(c.maxRetries))
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
