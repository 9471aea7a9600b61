package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tweeper/internal/model"
)

const userColumns = `id, username, password_hash, display_name, created_at, updated_at`

const (
	queryInsertUser = `INSERT INTO users (id, username, password_hash, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	queryFindUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	queryFindUserByIDForUpdate = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	queryFindUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	queryListUsers = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`

	queryUpdateDisplayName = `UPDATE users SET display_name = $2, updated_at = $3 WHERE id = $1
		 RETURNING ` + userColumns

	queryUpdateUsername = `UPDATE users SET username = $2, updated_at = $3 WHERE id = $1`
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
// dbには*sql.DBまたは*sql.Txを渡せる。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx, queryInsertUser,
		user.ID, user.Username, user.PasswordHash, user.DisplayName, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, queryFindUserByID, id, "find user by ID")
}

// FindByIDForUpdate は指定IDのユーザー行をFOR UPDATEでロックして取得する。
func (r *PostgresUserRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, queryFindUserByIDForUpdate, id, "lock user by ID")
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, queryFindUserByUsername, username, "find user by username")
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query, arg, op string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return user, nil
}

// List は作成日時の降順でユーザーを最大limit件返す。
func (r *PostgresUserRepo) List(ctx context.Context, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, queryListUsers, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpdateDisplayName は表示名を更新し、更新後のユーザーを返す。見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateDisplayName(ctx context.Context, id, displayName string, updatedAt time.Time) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, queryUpdateDisplayName, id, displayName, updatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	return user, nil
}

// UpdateUsername はユーザー名を更新する。
func (r *PostgresUserRepo) UpdateUsername(ctx context.Context, id, username string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, queryUpdateUsername, id, username, updatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
