// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/tweeper/internal/model"
)

var (
	// ErrDuplicateUsername はユーザー名の一意制約違反を表す。
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrNotFound は更新・参照対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
)

// DBTX は*sql.DBと*sql.Txの双方が満たすクエリ実行インターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDForUpdate は指定IDのユーザー行をロックして取得する。
	// トランザクション内でのみ意味を持つ。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は作成日時の降順でユーザーを最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.User, error)

	// UpdateDisplayName は表示名を更新し、更新後のユーザーを返す。見つからない場合はnilを返す。
	UpdateDisplayName(ctx context.Context, id, displayName string, updatedAt time.Time) (*model.User, error)

	// UpdateUsername はユーザー名を更新する。
	// 対象が存在しない場合はErrNotFound、重複する場合はErrDuplicateUsernameを返す。
	UpdateUsername(ctx context.Context, id, username string, updatedAt time.Time) error
}

// TweepRepository はtweepデータの永続化インターフェース。
type TweepRepository interface {
	// Create はtweepを作成する。
	// 所有者のユーザー名はusers行から導出し、tweep.Usernameに設定する。
	// 所有者が存在しない場合はErrNotFoundを返す。
	Create(ctx context.Context, tweep *model.Tweep) error

	// FindByID は音声データを含むtweepを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tweep, error)

	// List は全tweepを作成日時の降順で返す。音声データは含まない。
	List(ctx context.Context) ([]*model.Tweep, error)

	// ListByUsername は指定ユーザー名のtweepを作成日時の降順で返す。音声データは含まない。
	ListByUsername(ctx context.Context, username string) ([]*model.Tweep, error)

	// DeleteOwned は指定ユーザー名が所有するtweepを削除する。
	// 削除した場合はtrueを返す。存在しない・所有者が異なる場合はfalseを返す。
	DeleteOwned(ctx context.Context, id, username string) (bool, error)

	// ReassignUsername は旧ユーザー名のtweepを新ユーザー名に付け替え、更新件数を返す。
	ReassignUsername(ctx context.Context, oldUsername, newUsername string) (int64, error)
}

// Repositories は同一の接続またはトランザクションに束縛されたリポジトリの組。
type Repositories struct {
	Users  UserRepository
	Tweeps TweepRepository
}

// TxRunner はトランザクション内で処理を実行するインターフェース。
// fnがエラーを返した場合はロールバックし、そのエラーを返す。
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
