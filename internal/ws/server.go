package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/presence"
	"github.com/fathima-sithara/mailbox-service/internal/utils"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var (
	ErrUnknownHandle = errors.New("unknown connection handle")
	ErrSlowConsumer  = errors.New("connection send buffer full")
)

// PresenceMirror publishes online state for other services. Optional.
type PresenceMirror interface {
	AddConnection(ctx context.Context, user, handle string) error
	RemoveConnection(ctx context.Context, user, handle string) error
}

type Config struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

// Server owns every websocket connection of this process. It registers each
// one with the presence registry and is the dispatcher's Transport.
type Server struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	registry *presence.Registry
	mirror   PresenceMirror
	metrics  *metrics.Metrics
	cfg      Config
	log      *zap.SugaredLogger
}

func NewServer(reg *presence.Registry, mirror PresenceMirror, m *metrics.Metrics, cfg Config, log *zap.SugaredLogger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return &Server{
		conns:    make(map[string]*Connection),
		registry: reg,
		mirror:   mirror,
		metrics:  m,
		cfg:      cfg,
		log:      log,
	}
}

// Handler is mounted behind websocket.New; the auth middleware has already
// stored the user id in Locals.
func (s *Server) Handler() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		c := newConnection(conn, utils.NewID(), userID, s)
		s.attach(c)
		go c.writePump()
		c.readPump()
	}
}

func (s *Server) attach(c *Connection) {
	s.mu.Lock()
	s.conns[c.handle] = c
	s.mu.Unlock()
	s.registry.Register(c.userID, c.handle)
	s.metrics.Connections.Inc()

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.mirror.AddConnection(ctx, c.userID, c.handle); err != nil {
			s.log.Warnw("presence mirror add", "user", c.userID, "err", err)
		}
	}
	s.log.Debugw("ws connected", "user", c.userID, "handle", c.handle)
}

func (s *Server) detach(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.handle)
	s.mu.Unlock()
	s.registry.Unregister(c.userID, c.handle)
	s.metrics.Connections.Dec()

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.mirror.RemoveConnection(ctx, c.userID, c.handle); err != nil {
			s.log.Warnw("presence mirror remove", "user", c.userID, "err", err)
		}
	}
	s.log.Debugw("ws disconnected", "user", c.userID, "handle", c.handle)
}

// Emit queues event for one connection. Delivery is at most once.
func (s *Server) Emit(handle, event string) error {
	s.mu.RLock()
	c, ok := s.conns[handle]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	b, err := json.Marshal(Envelope{Type: event, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	if !c.enqueue(b) {
		return fmt.Errorf("%w: %s", ErrSlowConsumer, handle)
	}
	return nil
}

// CloseAll disconnects every client, used on shutdown.
func (s *Server) CloseAll() {
	s.mu.RLock()
	all := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		all = append(all, c)
	}
	s.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}
