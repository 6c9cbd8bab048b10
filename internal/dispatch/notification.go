package dispatch

import (
	"fmt"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/notify"
)

const (
	SignalNewMessage = "newMessageSignal"

	maxBodyRunes  = 20
	keptBodyRunes = 17
	maxTitleRunes = 64
)

// TruncateBody keeps bodies of up to 20 characters and cuts longer ones to
// their first 17 characters plus "...". Clients rely on the exact length.
func TruncateBody(s string) string {
	r := []rune(s)
	if len(r) <= maxBodyRunes {
		return s
	}
	return string(r[:keptBodyRunes]) + "..."
}

func capTitle(s string) string {
	r := []rune(s)
	if len(r) <= maxTitleRunes {
		return s
	}
	return string(r[:maxTitleRunes])
}

// NotificationFor builds the push payload for a freshly sent message.
func NotificationFor(title string, m *domain.Message) notify.Notification {
	n := notify.Notification{
		Title: title,
		Data: map[string]string{
			"messageId": m.ID,
			"senderId":  m.SenderID,
		},
	}
	switch m.Content.Kind {
	case domain.KindImages:
		n.Body = fmt.Sprintf("Received %d image(s)", len(m.Content.Images))
		n.Data["type"] = "chat_image"
	default:
		n.Body = m.Content.Text
		n.Data["type"] = "chat_message"
	}
	return n
}
