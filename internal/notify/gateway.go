package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notification is the push payload handed to a Gateway.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
	Badge int
}

// Gateway delivers one notification to many device tokens. The returned slice
// is aligned with tokens: true means the token accepted the message. Partial
// failure is normal and is not an error.
type Gateway interface {
	SendMulticast(ctx context.Context, tokens []string, n Notification) ([]bool, error)
}

// LogGateway only logs. Used in development when no push credentials exist.
type LogGateway struct {
	log *zap.SugaredLogger
}

func NewLogGateway(log *zap.SugaredLogger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) SendMulticast(_ context.Context, tokens []string, n Notification) ([]bool, error) {
	g.log.Infow("push notification", "tokens", len(tokens), "title", n.Title, "body", n.Body, "badge", n.Badge, "data", n.Data)
	out := make([]bool, len(tokens))
	for i := range out {
		out[i] = true
	}
	return out, nil
}
