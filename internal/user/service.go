// Package user はユーザープロフィールとユーザー名変更のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/tweeper/internal/auth"
	"github.com/hitoshi/tweeper/internal/metrics"
	"github.com/hitoshi/tweeper/internal/model"
	"github.com/hitoshi/tweeper/internal/repository"
	"github.com/hitoshi/tweeper/internal/security"
)

// ユーザー一覧の件数。
const (
	DefaultListLimit = 50
	DefaultMaxLimit  = 100
)

// MaxDisplayNameLength は表示名の最大文字数（rune数）。
const MaxDisplayNameLength = 50

// Service はユーザー管理のサービス層。
type Service struct {
	users     repository.UserRepository
	tx        repository.TxRunner
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	maxLimit  int
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// maxLimitが0以下の場合はDefaultMaxLimitを使う。
func NewService(
	users repository.UserRepository,
	tx repository.TxRunner,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	maxLimit int,
) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Service{
		users:     users,
		tx:        tx,
		sanitizer: sanitizer,
		metrics:   mc,
		maxLimit:  maxLimit,
		now:       time.Now,
	}
}

// GetProfile は指定IDのユーザーを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Public(), nil
}

// GetByUsername はユーザー名でユーザーを返す。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Public(), nil
}

// List は新しい順にユーザーを返す。
// limitが0以下の場合はDefaultListLimit、上限を超える場合は上限に丸める。
func (s *Service) List(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	users, err := s.users.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	for i, u := range users {
		users[i] = u.Public()
	}
	return users, nil
}

// UpdateDisplayName は表示名を更新する。
// HTMLタグを除去した後の表示名が1〜50文字でない場合はINVALID_DISPLAY_NAMEを返す。
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) (*model.User, error) {
	clean := s.sanitizer.Sanitize(displayName)
	if n := utf8.RuneCountInString(clean); n == 0 || n > MaxDisplayNameLength {
		return nil, model.NewInvalidDisplayNameError()
	}

	user, err := s.users.UpdateDisplayName(ctx, userID, clean, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("表示名を更新しました", slog.String("user_id", userID))
	return user.Public(), nil
}

// ChangeUsername はユーザー名を変更し、所有する全tweepのユーザー名を同一トランザクションで付け替える。
// 付け替えに失敗した場合はユーザー名の変更も取り消し、エラーを返す。
func (s *Service) ChangeUsername(ctx context.Context, userID, newUsername string) (*model.User, error) {
	var (
		updated     *model.User
		oldUsername string
		reassigned  int64
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// 同一ユーザーの並行した変更はこの行ロックで直列化される
		locked, err := repos.Users.FindByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーのロックに失敗しました: %w", err)
		}
		if locked == nil {
			return model.NewUserNotFoundError()
		}

		u, old, err := auth.ChangeUsername(ctx, repos.Users, userID, newUsername, s.now().UTC())
		if err != nil {
			return err
		}

		n, err := repos.Tweeps.ReassignUsername(ctx, old, u.Username)
		if err != nil {
			return fmt.Errorf("tweepの付け替えに失敗しました: %w", err)
		}

		updated, oldUsername, reassigned = u, old, n
		return nil
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordUsernameChange(metrics.RenameRejected)
			return nil, err
		}
		s.metrics.RecordUsernameChange(metrics.RenameFailed)
		slog.Error("ユーザー名の変更に失敗しました。変更は取り消されました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ユーザー名の変更に失敗しました: %w", err)
	}

	s.metrics.RecordUsernameChange(metrics.RenameSuccess)
	s.metrics.RecordTweepsReassigned(reassigned)
	slog.Info("ユーザー名を変更しました",
		slog.String("user_id", userID),
		slog.String("old_username", oldUsername),
		slog.String("new_username", updated.Username),
		slog.Int64("reassigned_tweeps", reassigned),
	)
	return updated, nil
}
