package repository

import (
	"context"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
)

// ListVisible returns the owner's visible messages newest first and marks the
// mailbox read up to the newest one. Reading is not side-effect free.
func ListVisible(ctx context.Context, boxes MailboxRepository, msgs MessageRepository, owner, partner string) ([]*domain.Message, error) {
	mb, err := boxes.Get(ctx, owner, partner)
	if err != nil {
		return nil, err
	}
	if len(mb.Messages) == 0 {
		return []*domain.Message{}, nil
	}
	found, err := msgs.FindManyByID(ctx, mb.Messages)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Message, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}

	// reference order is chronological; walk it backwards
	out := make([]*domain.Message, 0, len(found))
	for i := len(mb.Messages) - 1; i >= 0; i-- {
		m, ok := byID[mb.Messages[i]]
		if !ok || !mb.Visible(m.CreatedAt) {
			continue
		}
		out = append(out, m)
	}
	if len(out) > 0 {
		if err := boxes.MarkRead(ctx, owner, partner, out[0].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
