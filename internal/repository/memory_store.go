package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
)

// MemoryMessageRepo keeps messages in process memory. Used by tests and local runs.
type MemoryMessageRepo struct {
	mu   sync.RWMutex
	msgs map[string]*domain.Message
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{msgs: make(map[string]*domain.Message)}
}

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	c.Content.Images = append([]string(nil), m.Content.Images...)
	return &c
}

func (r *MemoryMessageRepo) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[m.ID]; ok {
		return fmt.Errorf("message %s exists: %w", m.ID, domain.ErrStore)
	}
	r.msgs[m.ID] = cloneMessage(m)
	return nil
}

func (r *MemoryMessageRepo) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return cloneMessage(m), nil
}

func (r *MemoryMessageRepo) FindManyByID(_ context.Context, ids []string) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Message{}
	for _, id := range ids {
		if m, ok := r.msgs[id]; ok {
			out = append(out, cloneMessage(m))
		}
	}
	return out, nil
}

func (r *MemoryMessageRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.msgs[id]; ok {
			delete(r.msgs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepo) CountImageRefs(_ context.Context, ref string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, m := range r.msgs {
		for _, img := range m.Content.Images {
			if img == ref {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *MemoryMessageRepo) IDsBetween(_ context.Context, a, b string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for id, m := range r.msgs {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

type pairKey struct{ owner, partner string }

type MemoryMailboxRepo struct {
	mu    sync.RWMutex
	boxes map[pairKey]*domain.Mailbox
	now   func() time.Time
}

func NewMemoryMailboxRepo() *MemoryMailboxRepo {
	return &MemoryMailboxRepo{boxes: make(map[pairKey]*domain.Mailbox), now: time.Now}
}

func cloneMailbox(mb *domain.Mailbox) *domain.Mailbox {
	c := *mb
	c.Messages = append([]string{}, mb.Messages...)
	return &c
}

func (r *MemoryMailboxRepo) Append(_ context.Context, owner, partner, messageID string, isReceiver bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey{owner, partner}
	mb, ok := r.boxes[k]
	if !ok {
		mb = &domain.Mailbox{Owner: owner, Partner: partner, Messages: []string{}}
		r.boxes[k] = mb
	}
	if mb.IndexOf(messageID) >= 0 {
		return nil
	}
	mb.Messages = append(mb.Messages, messageID)
	if isReceiver {
		mb.UnreadCount++
	} else {
		mb.LastReadMessageID = messageID
	}
	mb.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryMailboxRepo) Get(_ context.Context, owner, partner string) (*domain.Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.boxes[pairKey{owner, partner}]
	if !ok {
		return nil, fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	return cloneMailbox(mb), nil
}

func (r *MemoryMailboxRepo) MarkRead(_ context.Context, owner, partner, lastReadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.boxes[pairKey{owner, partner}]
	if !ok {
		return fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	mb.UnreadCount = 0
	mb.LastReadMessageID = lastReadID
	return nil
}

func (r *MemoryMailboxRepo) Truncate(_ context.Context, owner, partner, messageID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.boxes[pairKey{owner, partner}]
	if !ok {
		return nil, fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	idx := mb.IndexOf(messageID)
	if idx < 0 {
		return nil, fmt.Errorf("message %s in mailbox %s/%s: %w", messageID, owner, partner, domain.ErrNotFound)
	}
	removed := append([]string(nil), mb.Messages[:idx+1]...)
	mb.Messages = append([]string{}, mb.Messages[idx+1:]...)
	mb.UnreadCount = 0
	if len(mb.Messages) == 0 {
		mb.LastReadMessageID = ""
	}
	mb.UpdatedAt = r.now().UTC()
	return removed, nil
}

func (r *MemoryMailboxRepo) Contains(_ context.Context, owner, partner string, ids []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.boxes[pairKey{owner, partner}]
	if !ok {
		return nil, fmt.Errorf("mailbox %s/%s: %w", owner, partner, domain.ErrNotFound)
	}
	listed := make(map[string]struct{}, len(mb.Messages))
	for _, id := range mb.Messages {
		listed[id] = struct{}{}
	}
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := listed[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *MemoryMailboxRepo) DeletePair(_ context.Context, a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boxes, pairKey{a, b})
	delete(r.boxes, pairKey{b, a})
	return nil
}

func (r *MemoryMailboxRepo) TotalUnread(_ context.Context, owner string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for k, mb := range r.boxes {
		if k.owner == owner {
			total += mb.UnreadCount
		}
	}
	return total, nil
}

func (r *MemoryMailboxRepo) ListForOwner(_ context.Context, owner string) ([]domain.Summary, error) {
	r.mu.RLock()
	out := []domain.Summary{}
	for k, mb := range r.boxes {
		if k.owner == owner {
			out = append(out, domain.Summary{Partner: mb.Partner, UnreadCount: mb.UnreadCount, UpdatedAt: mb.UpdatedAt})
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UnreadCount != out[j].UnreadCount {
			return out[i].UnreadCount > out[j].UnreadCount
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

type MemoryTokenRepo struct {
	mu     sync.RWMutex
	tokens map[string][]domain.DeviceToken
	now    func() time.Time
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[string][]domain.DeviceToken), now: time.Now}
}

func (r *MemoryTokenRepo) Upsert(_ context.Context, owner, token, device string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	list := r.tokens[owner]
	for i := range list {
		if list[i].Token == token {
			if device != "" {
				list[i].Device = device
			}
			list[i].UpdatedAt = now
			return false, nil
		}
	}
	if device == "" {
		device = defaultDevice
	}
	r.tokens[owner] = append(list, domain.DeviceToken{OwnerID: owner, Token: token, Device: device, UpdatedAt: now})
	return true, nil
}

func (r *MemoryTokenRepo) Delete(_ context.Context, owner, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[owner] = without(r.tokens[owner], map[string]struct{}{token: {}})
	return nil
}

func (r *MemoryTokenRepo) ListTokens(_ context.Context, owner string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens[owner]))
	for _, t := range r.tokens[owner] {
		out = append(out, t.Token)
	}
	return out, nil
}

// Device returns the stored registration for token, if any.
func (r *MemoryTokenRepo) Device(owner, token string) (domain.DeviceToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens[owner] {
		if t.Token == token {
			return t, true
		}
	}
	return domain.DeviceToken{}, false
}

func (r *MemoryTokenRepo) Prune(_ context.Context, owner string, tokens []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		drop[t] = struct{}{}
	}
	before := len(r.tokens[owner])
	r.tokens[owner] = without(r.tokens[owner], drop)
	return int64(before - len(r.tokens[owner])), nil
}

func without(list []domain.DeviceToken, drop map[string]struct{}) []domain.DeviceToken {
	out := list[:0]
	for _, t := range list {
		if _, ok := drop[t.Token]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Count returns how many messages are stored.
func (r *MemoryMessageRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.msgs)
}
