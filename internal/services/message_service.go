package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wizspeak/server/internal/models"
	"wizspeak/server/internal/pool"
	"wizspeak/server/internal/utils"
)

type SendMessageInput struct {
	ConversationID         int
	Content                string
	Type                   string
	Classification         *string
	Priority               string
	RequiresAcknowledgment bool
	Metadata               json.RawMessage
}

type MessageService interface {
	SendMessage(ctx context.Context, senderID int, in SendMessageInput) (*models.Message, error)
	GetMessage(ctx context.Context, messageID int) (*models.Message, error)
	EditMessage(ctx context.Context, messageID int, content string) error
	DeleteMessage(ctx context.Context, messageID int) error
	ListMessages(ctx context.Context, conversationID, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, userID int) error
}

type messageService struct {
	db            *pgxpool.Pool
	conversations ConversationService
	users         UserService
	clients       *pool.Registry
	log           *slog.Logger
}

func NewMessageService(db *pgxpool.Pool, conversations ConversationService, users UserService, clients *pool.Registry, log *slog.Logger) MessageService {
	return &messageService{
		db:            db,
		conversations: conversations,
		users:         users,
		clients:       clients,
		log:           log,
	}
}

const messageColumns = "id, conversation_id, sender_id, content, type, classification, priority, requires_acknowledgment, metadata, content_hash, is_edited, is_deleted, read_by, created_at, updated_at"

// SendMessage persists the message and then pushes it to every participant
// with a live connection, except the sender. Persistence is authoritative:
// a recipient without a connection sees the message on the next fetch, and
// a fan-out failure is invisible to the sender.
func (ms *messageService) SendMessage(ctx context.Context, senderID int, in SendMessageInput) (*models.Message, error) {
	isParticipant, err := ms.conversations.IsParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, models.ErrNotParticipant
	}

	if in.Priority == "" {
		in.Priority = "normal"
	}

	// The sender is seeded into read_by; the read-receipt rule only
	// counts entries beyond the first.
	readBy, err := json.Marshal([]int{senderID})
	if err != nil {
		return nil, err
	}

	query := psql.Insert("messages").
		Columns("conversation_id", "sender_id", "content", "type", "classification",
			"priority", "requires_acknowledgment", "metadata", "content_hash", "read_by").
		Values(in.ConversationID, senderID, in.Content, in.Type, in.Classification,
			in.Priority, in.RequiresAcknowledgment, in.Metadata,
			utils.ContentHash([]byte(in.Content)), string(readBy)).
		Suffix("RETURNING " + messageColumns)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	msg, err := scanMessage(ms.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		ms.log.Error("failed to persist message", "conversation_id", in.ConversationID, "error", err)
		return nil, err
	}

	if err := ms.conversations.Touch(ctx, in.ConversationID); err != nil {
		return nil, err
	}

	sender, err := ms.users.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg.Sender = sender

	ms.fanOut(ctx, msg.ConversationID, senderID, pool.Event{Type: "new_message", Data: msg})

	ms.log.Info("message sent", "message_id", msg.ID, "conversation_id", msg.ConversationID, "sender_id", senderID)
	return msg, nil
}

func (ms *messageService) GetMessage(ctx context.Context, messageID int) (*models.Message, error) {
	query := psql.Select(messageColumns).From("messages").Where(squirrel.Eq{"id": messageID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	msg, err := scanMessage(ms.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces content and flags the edit. Acknowledgments made
// against the previous content are left untouched.
func (ms *messageService) EditMessage(ctx context.Context, messageID int, content string) error {
	query := psql.Update("messages").
		Set("content", content).
		Set("content_hash", utils.ContentHash([]byte(content))).
		Set("is_edited", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.And{
			squirrel.Eq{"id": messageID},
			squirrel.Eq{"is_deleted": false},
		})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := ms.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error("failed to edit message", "message_id", messageID, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrMessageNotFound
	}
	return nil
}

// DeleteMessage soft-deletes: the row stays for retention, reads exclude
// it, and participants with live connections are told immediately so they
// do not have to wait for the next fetch.
func (ms *messageService) DeleteMessage(ctx context.Context, messageID int) error {
	query := psql.Update("messages").
		Set("is_deleted", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": messageID}).
		Suffix("RETURNING conversation_id, sender_id")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	var conversationID, senderID int
	if err := ms.db.QueryRow(ctx, sqlStr, args...).Scan(&conversationID, &senderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrMessageNotFound
		}
		ms.log.Error("failed to delete message", "message_id", messageID, "error", err)
		return err
	}

	ms.fanOut(ctx, conversationID, senderID, pool.Event{
		Type: "message_deleted",
		Data: map[string]int{"messageId": messageID, "conversationId": conversationID},
	})
	return nil
}

// ListMessages returns the newest `limit` non-deleted messages joined with
// sender identity, oldest first for rendering.
func (ms *messageService) ListMessages(ctx context.Context, conversationID, limit int) ([]models.Message, error) {
	query := psql.Select(
		"m.id", "m.conversation_id", "m.sender_id", "m.content", "m.type", "m.classification",
		"m.priority", "m.requires_acknowledgment", "m.metadata", "m.content_hash",
		"m.is_edited", "m.is_deleted", "m.read_by", "m.created_at", "m.updated_at",
		"u.id", "u.username", "u.email", "u.role", "u.department", "u.is_online", "u.last_seen", "u.created_at").
		From("messages m").
		Join("users u ON u.id = m.sender_id").
		Where(squirrel.And{
			squirrel.Eq{"m.conversation_id": conversationID},
			squirrel.Eq{"m.is_deleted": false},
		}).
		OrderBy("m.created_at DESC").
		Limit(uint64(limit))
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ms.db.Query(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error("failed to list messages", "conversation_id", conversationID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var u models.User
		var readByRaw []byte
		err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Classification,
			&m.Priority, &m.RequiresAcknowledgment, &m.Metadata, &m.ContentHash,
			&m.IsEdited, &m.IsDeleted, &readByRaw, &m.CreatedAt, &m.UpdatedAt,
			&u.ID, &u.Username, &u.Email, &u.Role, &u.Department, &u.IsOnline, &u.LastSeen, &u.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(readByRaw, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("decode read_by for message %d: %w", m.ID, err)
		}
		m.Sender = &u
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query is newest-first; clients render oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead appends the user to read_by. Only conversation participants
// may mark a message read. The jsonb containment guard makes the append
// idempotent without a read-modify-write race.
func (ms *messageService) MarkRead(ctx context.Context, messageID, userID int) error {
	msg, err := ms.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	isParticipant, err := ms.conversations.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return models.ErrNotParticipant
	}

	entry := fmt.Sprintf("[%d]", userID)
	query := psql.Update("messages").
		Set("read_by", squirrel.Expr("read_by || ?::jsonb", entry)).
		Where(squirrel.And{
			squirrel.Eq{"id": messageID},
			squirrel.Expr("NOT read_by @> ?::jsonb", entry),
		})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := ms.db.Exec(ctx, sqlStr, args...); err != nil {
		ms.log.Error("failed to mark message read", "message_id", messageID, "user_id", userID, "error", err)
		return err
	}
	return nil
}

// fanOut pushes an event to every conversation participant except the
// originator. Best-effort only: a failed membership lookup or an offline
// recipient never fails the caller.
func (ms *messageService) fanOut(ctx context.Context, conversationID, excludeUserID int, event pool.Event) {
	ids, err := ms.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		ms.log.Warn("fan-out skipped, participant lookup failed", "conversation_id", conversationID, "error", err)
		return
	}

	targets := ids[:0:0]
	for _, id := range ids {
		if id != excludeUserID {
			targets = append(targets, id)
		}
	}
	ms.clients.SendTo(targets, event)
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var readByRaw []byte
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.Classification,
		&m.Priority, &m.RequiresAcknowledgment, &m.Metadata, &m.ContentHash,
		&m.IsEdited, &m.IsDeleted, &readByRaw, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(readByRaw, &m.ReadBy); err != nil {
		return nil, fmt.Errorf("decode read_by for message %d: %w", m.ID, err)
	}
	return &m, nil
}
