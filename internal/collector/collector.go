package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/repository"
	"github.com/fathima-sithara/mailbox-service/internal/storage"
	"go.uber.org/zap"
)

// Collector physically deletes messages and image files once no mailbox
// references them. Callers must hold the pair lock for (owner, partner).
type Collector struct {
	msgs    repository.MessageRepository
	boxes   repository.MailboxRepository
	files   storage.FileStore
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func New(msgs repository.MessageRepository, boxes repository.MailboxRepository, files storage.FileStore, m *metrics.Metrics, log *zap.SugaredLogger) *Collector {
	return &Collector{msgs: msgs, boxes: boxes, files: files, metrics: m, log: log}
}

// Collect deletes the candidates the partner's mailbox no longer lists and
// returns how many messages were removed.
func (c *Collector) Collect(ctx context.Context, candidates []string, owner, partner string) (int64, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	kept, err := c.boxes.Contains(ctx, partner, owner, candidates)
	if errors.Is(err, domain.ErrNotFound) {
		c.log.Warnw("skip collection", "owner", owner, "partner", partner,
			"err", fmt.Errorf("%w: partner mailbox missing", domain.ErrConsistency))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	victims := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !kept[id] {
			victims = append(victims, id)
		}
	}
	return c.purge(ctx, victims)
}

// CollectForSeverance destroys the whole conversation between a and b:
// every message either mailbox references or the pair exchanged, both
// mailboxes and orphaned files.
func (c *Collector) CollectForSeverance(ctx context.Context, a, b string) (int64, error) {
	seen := make(map[string]struct{})
	var union []string
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				union = append(union, id)
			}
		}
	}
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		mb, err := c.boxes.Get(ctx, pair[0], pair[1])
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		add(mb.Messages)
	}
	// messages left behind by a collect that skipped a missing mailbox
	stray, err := c.msgs.IDsBetween(ctx, a, b)
	if err != nil {
		return 0, err
	}
	add(stray)

	n, err := c.purge(ctx, union)
	if err != nil {
		return n, err
	}
	if err := c.boxes.DeletePair(ctx, a, b); err != nil {
		return n, err
	}
	return n, nil
}

func (c *Collector) purge(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	doomed, err := c.msgs.FindManyByID(ctx, ids)
	if err != nil {
		return 0, err
	}
	var refs []string
	for _, m := range doomed {
		refs = append(refs, m.Content.Images...)
	}

	n, err := c.msgs.DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	c.metrics.MessagesCollected.Add(float64(n))
	c.cleanupFiles(ctx, refs)
	return n, nil
}

// cleanupFiles removes files no remaining message points at. Failures are
// logged and never abort the caller.
func (c *Collector) cleanupFiles(ctx context.Context, refs []string) {
	done := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := done[ref]; ok {
			continue
		}
		done[ref] = struct{}{}

		n, err := c.msgs.CountImageRefs(ctx, ref)
		if err != nil {
			c.log.Errorw("count image refs", "ref", ref, "err", err)
			continue
		}
		if n > 0 {
			continue
		}
		if err := c.files.Delete(ctx, ref); err != nil {
			c.log.Errorw("delete image file", "ref", ref, "err", err)
			continue
		}
		c.metrics.FilesCollected.Inc()
	}
}
