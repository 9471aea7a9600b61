package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/tweeper/internal/model"
)

const (
	// 所有者のusernameはusers行から導出する。FOR SHAREにより進行中のユーザー名変更と直列化される。
	queryInsertTweep = `INSERT INTO tweeps (id, user_id, username, audio_data, duration, created_at)
		 SELECT $1, u.id, u.username, $3, $4, $5 FROM users u WHERE u.id = $2 FOR SHARE
		 RETURNING username`

	queryFindTweepByID = `SELECT id, user_id, username, audio_data, duration, created_at FROM tweeps WHERE id = $1`

	queryListTweeps = `SELECT id, user_id, username, duration, created_at FROM tweeps
		 ORDER BY created_at DESC`

	queryListTweepsByUsername = `SELECT id, user_id, username, duration, created_at FROM tweeps
		 WHERE username = $1 ORDER BY created_at DESC`

	queryDeleteOwnedTweep = `DELETE FROM tweeps WHERE id = $1 AND username = $2`

	queryReassignTweeps = `UPDATE tweeps SET username = $2 WHERE username = $1`
)

// PostgresTweepRepo はPostgreSQLを使用したtweepリポジトリ。
type PostgresTweepRepo struct {
	db DBTX
}

// NewPostgresTweepRepo はPostgresTweepRepoを生成する。
func NewPostgresTweepRepo(db DBTX) *PostgresTweepRepo {
	return &PostgresTweepRepo{db: db}
}

// Create はtweepを作成し、users行から導出した所有者ユーザー名をtweep.Usernameに設定する。
func (r *PostgresTweepRepo) Create(ctx context.Context, tweep *model.Tweep) error {
	var username string
	err := r.db.QueryRowContext(ctx, queryInsertTweep,
		tweep.ID, tweep.UserID, tweep.AudioData, tweep.Duration, tweep.CreatedAt,
	).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert tweep: %w", err)
	}
	tweep.Username = username
	return nil
}

// FindByID は音声データを含むtweepを取得する。見つからない場合はnilを返す。
func (r *PostgresTweepRepo) FindByID(ctx context.Context, id string) (*model.Tweep, error) {
	tweep := &model.Tweep{}
	err := r.db.QueryRowContext(ctx, queryFindTweepByID, id).Scan(
		&tweep.ID, &tweep.UserID, &tweep.Username, &tweep.AudioData, &tweep.Duration, &tweep.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tweep by ID: %w", err)
	}
	return tweep, nil
}

// List は全tweepを作成日時の降順で返す。
func (r *PostgresTweepRepo) List(ctx context.Context) ([]*model.Tweep, error) {
	return r.list(ctx, queryListTweeps)
}

// ListByUsername は指定ユーザー名のtweepを作成日時の降順で返す。
func (r *PostgresTweepRepo) ListByUsername(ctx context.Context, username string) ([]*model.Tweep, error) {
	return r.list(ctx, queryListTweepsByUsername, username)
}

func (r *PostgresTweepRepo) list(ctx context.Context, query string, args ...any) ([]*model.Tweep, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tweeps: %w", err)
	}
	defer rows.Close()

	tweeps := make([]*model.Tweep, 0)
	for rows.Next() {
		t := &model.Tweep{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.Username, &t.Duration, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tweep: %w", err)
		}
		tweeps = append(tweeps, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tweeps: %w", err)
	}
	return tweeps, nil
}

// DeleteOwned は指定ユーザー名が所有するtweepを削除する。
func (r *PostgresTweepRepo) DeleteOwned(ctx context.Context, id, username string) (bool, error) {
	result, err := r.db.ExecContext(ctx, queryDeleteOwnedTweep, id, username)
	if err != nil {
		return false, fmt.Errorf("failed to delete tweep: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ReassignUsername は旧ユーザー名のtweepを新ユーザー名に付け替える。
func (r *PostgresTweepRepo) ReassignUsername(ctx context.Context, oldUsername, newUsername string) (int64, error) {
	result, err := r.db.ExecContext(ctx, queryReassignTweeps, oldUsername, newUsername)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign tweeps: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ TweepRepository = (*PostgresTweepRepo)(nil)
