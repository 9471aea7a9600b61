// Package auth はパスワード認証、Bearerトークンの発行・検証、ユーザー名の変更を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/tweeper/internal/metrics"
	"github.com/hitoshi/tweeper/internal/model"
	"github.com/hitoshi/tweeper/internal/repository"
)

// ユーザー名の文字数制約（rune数）。
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Service は資格情報の登録・照合とトークン発行を提供する。
type Service struct {
	users   repository.UserRepository
	hasher  *PasswordHasher
	tokens  TokenIssuer
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(users repository.UserRepository, hasher *PasswordHasher, tokens TokenIssuer, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		metrics: mc,
		now:     time.Now,
	}
}

// NormalizeUsername は前後の空白を除去し、文字数制約を検証する。
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "", model.NewInvalidUsernameError()
	}
	return username, nil
}

func validatePassword(password string) error {
	if password == "" {
		return model.NewInvalidPasswordError("パスワードは必須です")
	}
	if len(password) > MaxPasswordBytes {
		return model.NewInvalidPasswordError(fmt.Sprintf("パスワードは%dバイト以内で指定してください", MaxPasswordBytes))
	}
	return nil
}

// Register はユーザーを登録する。
// ユーザー名が使用済みの場合はUSERNAME_TAKENを返す。返すUserにパスワードハッシュは含まない。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 確認から挿入までの間に同名が登録された場合は一意インデックスで検出する
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordRegistration()
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user.Public(), nil
}

// Verify はユーザー名とパスワードを照合する。
// ユーザーが存在しない場合はUSER_NOT_FOUND、パスワード不一致の場合はINVALID_CREDENTIALSを返す。
func (s *Service) Verify(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.hasher.CompareDummy(password)
		return nil, model.NewUserNotFoundError()
	}
	if len(password) > MaxPasswordBytes {
		s.hasher.CompareDummy(password)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}
	return user.Public(), nil
}

// Login は資格情報を照合してトークンを発行する。
// ユーザー名の存在を推測されないよう、USER_NOT_FOUNDはINVALID_CREDENTIALSとして返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", nil, model.NewInvalidRequestError("ユーザー名とパスワードは必須です")
	}

	user, err := s.Verify(ctx, username, password)
	if err != nil {
		if model.HasCode(err, model.ErrCodeUserNotFound) || model.HasCode(err, model.ErrCodeInvalidCredentials) {
			s.metrics.RecordLogin(metrics.LoginFailure)
			slog.Warn("login failed", slog.String("username", username))
			return "", nil, model.NewInvalidCredentialsError()
		}
		return "", nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return token, user, nil
}

// RegisterAndIssue はユーザーを登録し、そのユーザーのトークンを発行する。
func (s *Service) RegisterAndIssue(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.Register(ctx, username, password)
	if err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ChangeUsername はユーザー名を変更し、更新後のユーザーと旧ユーザー名を返す。
// usersには通常のリポジトリもトランザクションに束縛したリポジトリも渡せる。
// tweepの付け替えは行わない。
func ChangeUsername(ctx context.Context, users repository.UserRepository, userID, newUsername string, now time.Time) (*model.User, string, error) {
	newUsername, err := NormalizeUsername(newUsername)
	if err != nil {
		return nil, "", err
	}

	user, err := users.FindByID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", model.NewUserNotFoundError()
	}
	if user.Username == newUsername {
		return nil, "", model.NewSameUsernameError()
	}

	owner, err := users.FindByUsername(ctx, newUsername)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check username: %w", err)
	}
	if owner != nil && owner.ID != user.ID {
		return nil, "", model.NewUsernameTakenError()
	}

	if err := users.UpdateUsername(ctx, userID, newUsername, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, "", model.NewUsernameTakenError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, "", model.NewUserNotFoundError()
		}
		return nil, "", fmt.Errorf("failed to update username: %w", err)
	}

	oldUsername := user.Username
	updated := user.Public()
	updated.Username = newUsername
	updated.UpdatedAt = now
	return updated, oldUsername, nil
}
