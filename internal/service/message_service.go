package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fathima-sithara/mailbox-service/internal/dispatch"
	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/lock"
	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/notify"
	"github.com/fathima-sithara/mailbox-service/internal/repository"
	"github.com/fathima-sithara/mailbox-service/internal/storage"
	"github.com/fathima-sithara/mailbox-service/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, receiverID, signal string, n notify.Notification) dispatch.Path
}

type Collector interface {
	Collect(ctx context.Context, candidates []string, owner, partner string) (int64, error)
	CollectForSeverance(ctx context.Context, a, b string) (int64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type Deps struct {
	Messages   repository.MessageRepository
	Mailboxes  repository.MailboxRepository
	Tokens     repository.TokenRepository
	Tx         repository.Transactor
	Locker     lock.Locker
	Dispatcher Dispatcher
	Collector  Collector
	Files      storage.FileStore
	Events     EventPublisher
	Clock      *utils.Clock
	Metrics    *metrics.Metrics
	Log        *zap.SugaredLogger

	PushTitle   string
	MaxImages   int
	MaxImageDim int
}

type MessageService struct {
	msgs       repository.MessageRepository
	boxes      repository.MailboxRepository
	tokens     repository.TokenRepository
	tx         repository.Transactor
	locker     lock.Locker
	dispatcher Dispatcher
	collector  Collector
	files      storage.FileStore
	events     EventPublisher
	clock      *utils.Clock
	metrics    *metrics.Metrics
	log        *zap.SugaredLogger

	pushTitle   string
	maxImages   int
	maxImageDim int
}

func New(d Deps) *MessageService {
	s := &MessageService{
		msgs: d.Messages, boxes: d.Mailboxes, tokens: d.Tokens,
		tx: d.Tx, locker: d.Locker,
		dispatcher: d.Dispatcher, collector: d.Collector,
		files: d.Files, events: d.Events,
		clock: d.Clock, metrics: d.Metrics, log: d.Log,
		pushTitle: d.PushTitle, maxImages: d.MaxImages, maxImageDim: d.MaxImageDim,
	}
	if s.tx == nil {
		s.tx = repository.NoTx{}
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.clock == nil {
		s.clock = utils.NewClock()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.pushTitle == "" {
		s.pushTitle = "New message"
	}
	return s
}

func (s *MessageService) SendMessage(ctx context.Context, sender, receiver, text string) (*domain.Message, error) {
	return s.send(ctx, sender, receiver, domain.TextContent(text))
}

// SendImages records a message whose body is already-stored file references.
func (s *MessageService) SendImages(ctx context.Context, sender, receiver string, refs []string) (*domain.Message, error) {
	if s.maxImages > 0 && len(refs) > s.maxImages {
		return nil, fmt.Errorf("%w: at most %d images per message", domain.ErrValidation, s.maxImages)
	}
	return s.send(ctx, sender, receiver, domain.ImageContent(refs))
}

// send validates, then writes the message and both mailbox references under
// the pair lock. Delivery happens after the lock is released and never fails
// the send.
func (s *MessageService) send(ctx context.Context, sender, receiver string, content domain.Content) (*domain.Message, error) {
	if err := domain.ValidateParticipants(sender, receiver); err != nil {
		return nil, err
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.PairKey(sender, receiver))
	if err != nil {
		return nil, err
	}
	m := &domain.Message{
		ID:         utils.NewID(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  s.clock.Now(),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.msgs.Create(ctx, m); err != nil {
			return err
		}
		return s.appendBoth(ctx, m)
	})
	unlock()
	if err != nil {
		s.log.Errorw("send failed", "sender", sender, "receiver", receiver, "message", m.ID, "err", err)
		return nil, err
	}
	s.metrics.MessagesSent.WithLabelValues(string(content.Kind)).Inc()

	s.dispatcher.Dispatch(ctx, receiver, dispatch.SignalNewMessage, dispatch.NotificationFor(s.pushTitle, m))
	s.publish(ctx, domain.Event{Type: domain.EventMessageSent, UserID: sender, PartnerID: receiver, MessageIDs: []string{m.ID}})
	return m, nil
}

// appendBoth updates the sender's and receiver's mailboxes. A transaction
// session cannot be shared between goroutines, so atomic writes go in order.
func (s *MessageService) appendBoth(ctx context.Context, m *domain.Message) error {
	senderSide := func(ctx context.Context) error {
		return s.boxes.Append(ctx, m.SenderID, m.ReceiverID, m.ID, false)
	}
	receiverSide := func(ctx context.Context) error {
		return s.boxes.Append(ctx, m.ReceiverID, m.SenderID, m.ID, true)
	}
	if s.tx.Atomic() {
		if err := senderSide(ctx); err != nil {
			return err
		}
		return receiverSide(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return senderSide(gctx) })
	g.Go(func() error { return receiverSide(gctx) })
	return g.Wait()
}

// GetMessages returns owner's visible messages with partner, newest first.
// Reading marks the mailbox as read.
func (s *MessageService) GetMessages(ctx context.Context, owner, partner string) ([]*domain.Message, error) {
	if owner == "" || partner == "" {
		return nil, fmt.Errorf("%w: owner and partner required", domain.ErrValidation)
	}
	unlock, err := s.locker.Lock(ctx, lock.PairKey(owner, partner))
	if err != nil {
		return nil, err
	}
	defer unlock()
	return repository.ListVisible(ctx, s.boxes, s.msgs, owner, partner)
}

// DeleteMessages drops boundaryID and everything older from owner's view and
// collects whatever the partner no longer references either.
func (s *MessageService) DeleteMessages(ctx context.Context, owner, boundaryID string) error {
	if owner == "" || boundaryID == "" {
		return fmt.Errorf("%w: owner and message id required", domain.ErrValidation)
	}
	m, err := s.msgs.FindByID(ctx, boundaryID)
	if err != nil {
		return err
	}
	partner, ok := m.Partner(owner)
	if !ok {
		return fmt.Errorf("message %s for %s: %w", boundaryID, owner, domain.ErrNotFound)
	}

	unlock, err := s.locker.Lock(ctx, lock.PairKey(owner, partner))
	if err != nil {
		return err
	}
	removed, err := s.boxes.Truncate(ctx, owner, partner, boundaryID)
	if err != nil {
		unlock()
		return err
	}
	n, err := s.collector.Collect(ctx, removed, owner, partner)
	unlock()
	if err != nil {
		return err
	}

	s.log.Infow("mailbox truncated", "owner", owner, "partner", partner, "removed", len(removed), "collected", n)
	s.publish(ctx, domain.Event{Type: domain.EventMessagesTruncated, UserID: owner, PartnerID: partner, MessageIDs: removed, Collected: n})
	return nil
}

// OnBlock destroys the conversation between a and b on both sides.
func (s *MessageService) OnBlock(ctx context.Context, a, b string) error {
	if err := domain.ValidateParticipants(a, b); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, lock.PairKey(a, b))
	if err != nil {
		return err
	}
	n, err := s.collector.CollectForSeverance(ctx, a, b)
	unlock()
	if err != nil {
		return err
	}
	s.log.Infow("relationship severed", "a", a, "b", b, "collected", n)
	s.publish(ctx, domain.Event{Type: domain.EventRelationshipSevered, UserID: a, PartnerID: b, Collected: n})
	return nil
}

func (s *MessageService) RegisterToken(ctx context.Context, owner, token, device string) error {
	token = strings.TrimSpace(token)
	if owner == "" || token == "" {
		return fmt.Errorf("%w: token required", domain.ErrValidation)
	}
	created, err := s.tokens.Upsert(ctx, owner, token, strings.TrimSpace(device))
	if err != nil {
		return err
	}
	s.log.Debugw("device token registered", "owner", owner, "new", created)
	return nil
}

func (s *MessageService) DeleteToken(ctx context.Context, owner, token string) error {
	if owner == "" || token == "" {
		return fmt.Errorf("%w: token required", domain.ErrValidation)
	}
	return s.tokens.Delete(ctx, owner, token)
}

// Conversations lists owner's mailboxes, most unread first.
func (s *MessageService) Conversations(ctx context.Context, owner string) ([]domain.Summary, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", domain.ErrValidation)
	}
	return s.boxes.ListForOwner(ctx, owner)
}

func (s *MessageService) publish(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	ev.At = s.clock.Now()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warnw("publish event", "type", ev.Type, "err", err)
	}
}
