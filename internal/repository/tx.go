package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresTxRunner は*sql.DB上でトランザクションを開始するTxRunner実装。
type PostgresTxRunner struct {
	db *sql.DB
}

// NewPostgresTxRunner はPostgresTxRunnerを生成する。
func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db}
}

// NewRepositories は指定の接続またはトランザクションに束縛したリポジトリの組を返す。
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Users:  NewPostgresUserRepo(db),
		Tweeps: NewPostgresTweepRepo(db),
	}
}

// WithinTx はトランザクションを開始してfnを実行する。
// fnが成功すればコミットし、エラーまたはpanicの場合はロールバックする。panicは再送出する。
func (r *PostgresTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	err = fn(ctx, NewRepositories(tx))
	return err
}

// compile-time interface check
var _ TxRunner = (*PostgresTxRunner)(nil)
