package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wizspeak/server/internal/models"
	"wizspeak/server/internal/utils"
)

type UserService interface {
	CreateUser(ctx context.Context, user *models.User, password string) (int, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateOnlineStatus(ctx context.Context, id int, online bool) error
}

type userService struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewUserService(db *pgxpool.Pool, log *slog.Logger) UserService {
	return &userService{db: db, log: log}
}

const userColumns = "id, username, email, password_hash, public_key, role, department, is_online, last_seen, created_at"

func (us *userService) CreateUser(ctx context.Context, user *models.User, password string) (int, error) {
	existing, err := us.GetUserByUsername(ctx, user.Username)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return 0, err
	}
	if existing != nil {
		return 0, models.ErrUserExists
	}

	passwordHash, err := utils.HashPassword(password)
	if err != nil {
		us.log.Error("failed to hash password", "error", err)
		return 0, err
	}

	query := psql.Insert("users").
		Columns("username", "email", "password_hash", "public_key", "role", "department").
		Values(user.Username, user.Email, passwordHash, user.PublicKey, user.Role, user.Department).
		Suffix("RETURNING id")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var userID int
	if err := us.db.QueryRow(ctx, sqlStr, args...).Scan(&userID); err != nil {
		us.log.Error("failed to create user", "username", user.Username, "error", err)
		return 0, err
	}

	us.log.Info("user created", "user_id", userID, "username", user.Username)
	return userID, nil
}

func (us *userService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return us.getUser(ctx, squirrel.Eq{"id": id})
}

func (us *userService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return us.getUser(ctx, squirrel.Eq{"username": username})
}

func (us *userService) getUser(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	query := psql.Select(userColumns).From("users").Where(where)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var user models.User
	err = us.db.QueryRow(ctx, sqlStr, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.PublicKey,
		&user.Role, &user.Department, &user.IsOnline, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		us.log.Error("failed to fetch user", "error", err)
		return nil, err
	}
	return &user, nil
}

// UpdateOnlineStatus flips the online flag and bumps last_seen. Called from
// login/logout and from websocket open/close; nothing else mutates the
// flag.
func (us *userService) UpdateOnlineStatus(ctx context.Context, id int, online bool) error {
	query := psql.Update("users").
		Set("is_online", online).
		Set("last_seen", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := us.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		us.log.Error("failed to update online status", "user_id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
