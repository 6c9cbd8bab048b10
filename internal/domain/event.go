package domain

import "time"

const (
	EventMessageSent         = "message.sent"
	EventMessagesTruncated   = "messages.truncated"
	EventRelationshipSevered = "relationship.severed"
	EventRelationshipBlocked = "relationship.blocked"
)

// Event is published after a mailbox mutation commits. UserID is the acting
// user; PartnerID the other side of the conversation.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	PartnerID  string    `json:"partner_id"`
	MessageIDs []string  `json:"message_ids,omitempty"`
	Collected  int64     `json:"collected,omitempty"`
	At         time.Time `json:"at"`
}
