package models

import (
	"encoding/json"
	"time"
)

const (
	MessageText   = "text"
	MessageFile   = "file"
	MessageImage  = "image"
	MessageVoice  = "voice"
	MessageSystem = "system"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageText, MessageFile, MessageImage, MessageVoice, MessageSystem:
		return true
	}
	return false
}

type Message struct {
	ID                     int             `json:"id" db:"id"`
	ConversationID         int             `json:"conversationId" db:"conversation_id"`
	SenderID               int             `json:"senderId" db:"sender_id"`
	Content                string          `json:"content" db:"content"`
	Type                   string          `json:"type" db:"type"`
	Classification         *string         `json:"classification,omitempty" db:"classification"`
	Priority               string          `json:"priority" db:"priority"`
	RequiresAcknowledgment bool            `json:"requiresAcknowledgment" db:"requires_acknowledgment"`
	Metadata               json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	ContentHash            string          `json:"contentHash" db:"content_hash"`
	IsEdited               bool            `json:"isEdited" db:"is_edited"`
	IsDeleted              bool            `json:"isDeleted" db:"is_deleted"`
	ReadBy                 []int           `json:"readBy" db:"read_by"`
	CreatedAt              time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time       `json:"updatedAt" db:"updated_at"`

	Sender *User `json:"sender,omitempty"`
}

// IsRead reports whether anyone besides the sender has seen the message.
// The read-receipt rule is strictly "more than one entry in ReadBy": the
// sender is seeded into ReadBy at creation and never counts as a read on
// its own.
func (m *Message) IsRead() bool {
	return len(m.ReadBy) > 1
}

// AppendRead returns readBy with userID added and true, or the slice
// unchanged and false when the user is already present. Set semantics.
func AppendRead(readBy []int, userID int) ([]int, bool) {
	for _, id := range readBy {
		if id == userID {
			return readBy, false
		}
	}
	return append(readBy, userID), true
}
