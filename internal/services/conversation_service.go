package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	lru "github.com/hashicorp/golang-lru/v2"

	"wizspeak/server/internal/models"
)

type ConversationService interface {
	CreateConversation(ctx context.Context, creatorID int, name *string, participantIDs []int) (*models.Conversation, error)
	GetConversation(ctx context.Context, id int) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID int) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID int) ([]int, error)
	AddParticipant(ctx context.Context, conversationID, userID int, role string) error
	Touch(ctx context.Context, conversationID int) error
}

type conversationService struct {
	db  *pgxpool.Pool
	log *slog.Logger

	// participants caches conversation -> member user ids for fan-out.
	// Invalidated whenever membership changes.
	participants *lru.Cache[int, []int]
}

func NewConversationService(db *pgxpool.Pool, log *slog.Logger) ConversationService {
	cache, _ := lru.New[int, []int](1024)
	return &conversationService{db: db, log: log, participants: cache}
}

func (cs *conversationService) CreateConversation(ctx context.Context, creatorID int, name *string, participantIDs []int) (*models.Conversation, error) {
	convType := models.ConversationDirect
	if len(participantIDs) > 1 {
		convType = models.ConversationGroup
	}

	query := psql.Insert("conversations").
		Columns("name", "type").
		Values(name, convType).
		Suffix("RETURNING id, name, type, created_at, updated_at")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = cs.db.QueryRow(ctx, sqlStr, args...).Scan(&conv.ID, &conv.Name, &conv.Type, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		cs.log.Error("failed to create conversation", "error", err)
		return nil, err
	}

	if err := cs.AddParticipant(ctx, conv.ID, creatorID, models.ParticipantAdmin); err != nil {
		return nil, err
	}
	for _, userID := range participantIDs {
		if userID == creatorID {
			continue
		}
		if err := cs.AddParticipant(ctx, conv.ID, userID, models.ParticipantMember); err != nil {
			return nil, err
		}
	}

	cs.log.Info("conversation created", "conversation_id", conv.ID, "type", convType)
	return &conv, nil
}

func (cs *conversationService) GetConversation(ctx context.Context, id int) (*models.Conversation, error) {
	query := psql.Select("id", "name", "type", "created_at", "updated_at").
		From("conversations").
		Where(squirrel.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = cs.db.QueryRow(ctx, sqlStr, args...).Scan(&conv.ID, &conv.Name, &conv.Type, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrConversationNotFound
		}
		cs.log.Error("failed to fetch conversation", "conversation_id", id, "error", err)
		return nil, err
	}

	conv.Participants, err = cs.participantsWithUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the caller's conversations ordered by last
// activity, each joined with participants and the latest message.
func (cs *conversationService) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := psql.Select("c.id", "c.name", "c.type", "c.created_at", "c.updated_at").
		From("conversations c").
		Join("conversation_participants cp ON cp.conversation_id = c.id").
		Where(squirrel.Eq{"cp.user_id": userID}).
		OrderBy("c.updated_at DESC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error("failed to list conversations", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Name, &conv.Type, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		convs[i].Participants, err = cs.participantsWithUsers(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].LastMessage, err = cs.lastMessage(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (cs *conversationService) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	ids, err := cs.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// ParticipantIDs returns the member user ids for a conversation, from the
// LRU cache when warm. Fan-out and relay paths hit this on every event.
func (cs *conversationService) ParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	if ids, ok := cs.participants.Get(conversationID); ok {
		return ids, nil
	}

	query := psql.Select("user_id").
		From("conversation_participants").
		Where(squirrel.Eq{"conversation_id": conversationID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error("failed to fetch participants", "conversation_id", conversationID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cs.participants.Add(conversationID, ids)
	return ids, nil
}

func (cs *conversationService) AddParticipant(ctx context.Context, conversationID, userID int, role string) error {
	// ON CONFLICT keeps the (conversation, user) pair unique without a
	// read-then-write race.
	query := psql.Insert("conversation_participants").
		Columns("conversation_id", "user_id", "role").
		Values(conversationID, userID, role).
		Suffix("ON CONFLICT (conversation_id, user_id) DO NOTHING")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := cs.db.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error("failed to add participant", "conversation_id", conversationID, "user_id", userID, "error", err)
		return err
	}

	cs.participants.Remove(conversationID)
	return nil
}

// Touch bumps updated_at so inbox ordering follows the newest message.
func (cs *conversationService) Touch(ctx context.Context, conversationID int) error {
	query := psql.Update("conversations").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": conversationID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := cs.db.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error("failed to touch conversation", "conversation_id", conversationID, "error", err)
		return err
	}
	return nil
}

func (cs *conversationService) participantsWithUsers(ctx context.Context, conversationID int) ([]models.Participant, error) {
	query := psql.Select(
		"cp.id", "cp.conversation_id", "cp.user_id", "cp.role", "cp.joined_at",
		"u.id", "u.username", "u.email", "u.role", "u.department", "u.is_online", "u.last_seen", "u.created_at").
		From("conversation_participants cp").
		Join("users u ON u.id = cp.user_id").
		Where(squirrel.Eq{"cp.conversation_id": conversationID}).
		OrderBy("cp.joined_at ASC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var u models.User
		err := rows.Scan(
			&p.ID, &p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt,
			&u.ID, &u.Username, &u.Email, &u.Role, &u.Department, &u.IsOnline, &u.LastSeen, &u.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		p.User = &u
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (cs *conversationService) lastMessage(ctx context.Context, conversationID int) (*models.Message, error) {
	query := psql.Select("id", "conversation_id", "sender_id", "content", "type", "created_at").
		From("messages").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"is_deleted": false},
		}).
		OrderBy("created_at DESC").
		Limit(1)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var m models.Message
	err = cs.db.QueryRow(ctx, sqlStr, args...).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
