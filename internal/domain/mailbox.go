package domain

import "time"

// Mailbox is one owner's private view of the conversation with partner.
// Unread count and read cursor never reflect the partner's state.
type Mailbox struct {
	Owner              string    `bson:"owner" json:"owner"`
	Partner            string    `bson:"partner" json:"partner"`
	Messages           []string  `bson:"messages" json:"messages"`
	UnreadCount        int       `bson:"unread_count" json:"unread_count"`
	LastReadMessageID  string    `bson:"last_read_message_id,omitempty" json:"last_read_message_id,omitempty"`
	TruncationBoundary time.Time `bson:"truncation_boundary" json:"truncation_boundary"`
	UpdatedAt          time.Time `bson:"updated_at" json:"updated_at"`
}

// Visible reports whether a message created at t is inside the owner's window.
func (mb *Mailbox) Visible(t time.Time) bool {
	return t.After(mb.TruncationBoundary)
}

// IndexOf returns the position of id in the reference list or -1.
func (mb *Mailbox) IndexOf(id string) int {
	for i, ref := range mb.Messages {
		if ref == id {
			return i
		}
	}
	return -1
}

// Summary is the per-partner line of an owner's conversation list.
type Summary struct {
	Partner     string    `bson:"partner" json:"partner"`
	UnreadCount int       `bson:"unread_count" json:"unread_count"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// DeviceToken is a push registration for one device of a user.
type DeviceToken struct {
	OwnerID   string    `bson:"owner_id" json:"owner_id"`
	Token     string    `bson:"token" json:"token"`
	Device    string    `bson:"device" json:"device"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
