// Package tweep は音声クリップ（tweep）の投稿・参照・削除を提供する。
package tweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tweeper/internal/metrics"
	"github.com/hitoshi/tweeper/internal/model"
	"github.com/hitoshi/tweeper/internal/repository"
)

// durationPattern はクライアントが申告する再生時間の書式（HH:MM:SS）。
var durationPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// ValidDuration はdurationがHH:MM:SS形式かを返す。
func ValidDuration(duration string) bool {
	return durationPattern.MatchString(duration)
}

// AuthorizeDelete は操作ユーザーがtweepの所有者かを判定する。
// 所有者でない場合は存在しない場合と区別できないTWEEP_NOT_FOUNDを返す。
func AuthorizeDelete(actingUsername string, t *model.Tweep) error {
	if t == nil || t.Username != actingUsername {
		return model.NewTweepNotFoundError()
	}
	return nil
}

// Service はtweepのサービス層。
type Service struct {
	tweeps  repository.TweepRepository
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(tweeps repository.TweepRepository, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		tweeps:  tweeps,
		metrics: mc,
		now:     time.Now,
	}
}

// Create は認証済みユーザーのtweepを作成する。
// 所有者のユーザー名は保存時点のusers行から導出される。
func (s *Service) Create(ctx context.Context, owner *model.User, audio []byte, duration string) (*model.Tweep, error) {
	if len(audio) == 0 {
		return nil, model.NewAudioRequiredError()
	}
	if !ValidDuration(duration) {
		return nil, model.NewInvalidDurationError(duration)
	}

	t := &model.Tweep{
		ID:        uuid.New().String(),
		UserID:    owner.ID,
		Username:  owner.Username,
		AudioData: audio,
		Duration:  duration,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tweeps.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUnauthorizedError()
		}
		return nil, fmt.Errorf("failed to create tweep: %w", err)
	}

	s.metrics.RecordTweepCreated()
	slog.Info("tweep created",
		slog.String("tweep_id", t.ID),
		slog.String("username", t.Username),
		slog.Int("audio_bytes", len(audio)),
	)

	created := *t
	created.AudioData = nil
	return &created, nil
}

// List は全tweepを新しい順に返す。音声データは含まない。
func (s *Service) List(ctx context.Context) ([]*model.Tweep, error) {
	tweeps, err := s.tweeps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tweeps: %w", err)
	}
	return tweeps, nil
}

// ListByUsername は指定ユーザー名のtweepを新しい順に返す。
// ユーザーが存在しない場合も空の一覧を返す。
func (s *Service) ListByUsername(ctx context.Context, username string) ([]*model.Tweep, error) {
	tweeps, err := s.tweeps.ListByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list tweeps by username: %w", err)
	}
	return tweeps, nil
}

// GetAudio は音声データを含むtweepを返す。IDが不正な場合もTWEEP_NOT_FOUNDを返す。
func (s *Service) GetAudio(ctx context.Context, id string) (*model.Tweep, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewTweepNotFoundError()
	}

	t, err := s.tweeps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find tweep: %w", err)
	}
	if t == nil {
		return nil, model.NewTweepNotFoundError()
	}
	return t, nil
}

// Delete は操作ユーザーが所有するtweepを削除する。
// 存在しない・所有者でない・IDが不正な場合はいずれもTWEEP_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewTweepNotFoundError()
	}

	t, err := s.tweeps.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find tweep: %w", err)
	}
	if err := AuthorizeDelete(actor.Username, t); err != nil {
		slog.Warn("tweep delete rejected",
			slog.String("tweep_id", id),
			slog.String("user_id", actor.ID),
		)
		return err
	}

	// 確認後にユーザー名が変わっていても所有者以外は削除できないよう、条件付きで削除する
	deleted, err := s.tweeps.DeleteOwned(ctx, id, actor.Username)
	if err != nil {
		return fmt.Errorf("failed to delete tweep: %w", err)
	}
	if !deleted {
		return model.NewTweepNotFoundError()
	}

	s.metrics.RecordTweepDeleted()
	slog.Info("tweep deleted",
		slog.String("tweep_id", id),
		slog.String("username", actor.Username),
	)
	return nil
}
