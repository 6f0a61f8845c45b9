package models

import (
	"time"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

const (
	ParticipantAdmin  = "admin"
	ParticipantMember = "member"
)

type Conversation struct {
	ID        int       `json:"id" db:"id"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
}

// Participant is a (conversation, user) membership record. A user appears
// at most once per conversation.
type Participant struct {
	ID             int       `json:"id" db:"id"`
	ConversationID int       `json:"conversationId" db:"conversation_id"`
	UserID         int       `json:"userId" db:"user_id"`
	Role           string    `json:"role" db:"role"`
	JoinedAt       time.Time `json:"joinedAt" db:"joined_at"`

	User *User `json:"user,omitempty"`
}
