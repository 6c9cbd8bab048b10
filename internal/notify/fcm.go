package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"google.golang.org/api/option"
)

// FCMGateway sends through Firebase Cloud Messaging.
type FCMGateway struct {
	client *messaging.Client
}

func NewFCMGateway(ctx context.Context, credentialsFile string) (*FCMGateway, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCMGateway{client: client}, nil
}

func buildMulticast(tokens []string, n Notification) *messaging.MulticastMessage {
	badge := n.Badge
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Badge: &badge, Sound: "default"},
			},
		},
	}
}

// maxMulticastTokens is the FCM limit per SendEachForMulticast call.
const maxMulticastTokens = 500

func batches(tokens []string, size int) [][]string {
	var out [][]string
	for len(tokens) > size {
		out = append(out, tokens[:size:size])
		tokens = tokens[size:]
	}
	if len(tokens) > 0 {
		out = append(out, tokens)
	}
	return out
}

// SendMulticast sends in batches of maxMulticastTokens and returns outcomes in
// token order. A failed batch aborts the rest.
func (g *FCMGateway) SendMulticast(ctx context.Context, tokens []string, n Notification) ([]bool, error) {
	out := make([]bool, 0, len(tokens))
	for _, batch := range batches(tokens, maxMulticastTokens) {
		br, err := g.client.SendEachForMulticast(ctx, buildMulticast(batch, n))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
		}
		out = append(out, outcomes(batch, br)...)
	}
	return out, nil
}

func outcomes(batch []string, br *messaging.BatchResponse) []bool {
	res := make([]bool, len(batch))
	for i, r := range br.Responses {
		if i < len(res) {
			res[i] = r.Success
		}
	}
	return res
}
