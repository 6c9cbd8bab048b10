package domain

import (
	"fmt"
	"strings"
	"time"
)

type ContentKind string

const (
	KindText   ContentKind = "text"
	KindImages ContentKind = "images"
)

// Content is the body of a message: either text or an ordered list of image
// file references, never both.
type Content struct {
	Kind   ContentKind `bson:"kind" json:"kind"`
	Text   string      `bson:"text,omitempty" json:"text,omitempty"`
	Images []string    `bson:"images,omitempty" json:"images,omitempty"`
}

func TextContent(s string) Content { return Content{Kind: KindText, Text: s} }

func ImageContent(refs []string) Content {
	return Content{Kind: KindImages, Images: append([]string(nil), refs...)}
}

func (c Content) Validate() error {
	switch c.Kind {
	case KindText:
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w: message text is empty", ErrValidation)
		}
		if len(c.Images) > 0 {
			return fmt.Errorf("%w: text message cannot carry images", ErrValidation)
		}
	case KindImages:
		if len(c.Images) == 0 {
			return fmt.Errorf("%w: no images attached", ErrValidation)
		}
		if c.Text != "" {
			return fmt.Errorf("%w: image message cannot carry text", ErrValidation)
		}
		for _, ref := range c.Images {
			if ref == "" {
				return fmt.Errorf("%w: empty image reference", ErrValidation)
			}
		}
	default:
		return fmt.Errorf("%w: unknown content kind %q", ErrValidation, c.Kind)
	}
	return nil
}

// Message is immutable once stored. It is shared by the two mailboxes of a
// conversation and removed only when neither references it.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	ReceiverID string    `bson:"receiver_id" json:"receiver_id"`
	Content    Content   `bson:"content" json:"content"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Partner returns the other participant from userID's point of view.
func (m *Message) Partner(userID string) (string, bool) {
	switch userID {
	case m.SenderID:
		return m.ReceiverID, true
	case m.ReceiverID:
		return m.SenderID, true
	}
	return "", false
}

// ValidateParticipants rejects missing ids and self-addressed messages.
func ValidateParticipants(sender, receiver string) error {
	if sender == "" || receiver == "" {
		return fmt.Errorf("%w: sender and receiver required", ErrValidation)
	}
	if sender == receiver {
		return fmt.Errorf("%w: cannot send a message to yourself", ErrValidation)
	}
	return nil
}
