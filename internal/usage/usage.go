// Package usage は生成回数の上限とProプラン限定ペルソナの利用可否を判定する。
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/repository"
)

var (
	// ErrFreeLimitReached は無料プランの生成回数を使い切ったことを示す。
	ErrFreeLimitReached = errors.New("free limit reached")
	// ErrPersonaLocked は無料プランでPro限定ペルソナが指定されたことを示す。
	ErrPersonaLocked = errors.New("persona requires pro plan")
)

// 判定結果のメトリクスラベル
const (
	DecisionAllowed      = "allowed"
	DecisionLimitReached = "limit_reached"
	DecisionLocked       = "persona_locked"
	DecisionError        = "error"
)

// PersonaPolicy はペルソナがPro限定かを判定する。
type PersonaPolicy interface {
	IsLocked(tone model.Tone) bool
}

// Service は利用状況の判定と加算を行う。
type Service struct {
	repo      repository.UsageRepository
	personas  PersonaPolicy
	metrics   metrics.MetricsCollector
	freeLimit int
}

// NewService はServiceを生成する。
func NewService(repo repository.UsageRepository, personas PersonaPolicy, mc metrics.MetricsCollector, freeLimit int) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{repo: repo, personas: personas, metrics: mc, freeLimit: freeLimit}
}

// Check は生成可否を判定し、許可された場合はusage_countを1増やす。
// 初回利用時は利用状況レコードを作成する。
// 加算は生成処理より前に行うため、後続の生成が失敗しても回数は戻さない。
func (s *Service) Check(ctx context.Context, userID, email string, tone model.Tone) error {
	u, err := s.repo.Ensure(ctx, userID, email)
	if err != nil {
		s.metrics.RecordUsageDecision(DecisionError)
		return fmt.Errorf("usage lookup failed: %w", err)
	}

	if !u.IsPro && s.personas != nil && s.personas.IsLocked(tone) {
		s.metrics.RecordUsageDecision(DecisionLocked)
		return fmt.Errorf("%w: %s", ErrPersonaLocked, tone)
	}

	ok, err := s.repo.IncrementIfAllowed(ctx, userID, s.freeLimit)
	if err != nil {
		s.metrics.RecordUsageDecision(DecisionError)
		return fmt.Errorf("usage increment failed: %w", err)
	}
	if !ok {
		s.metrics.RecordUsageDecision(DecisionLimitReached)
		slog.Info("free generation limit reached",
			slog.String("user_id", userID),
			slog.Int("usage_count", u.UsageCount),
		)
		return ErrFreeLimitReached
	}

	s.metrics.RecordUsageDecision(DecisionAllowed)
	return nil
}

// Profile はダッシュボード表示用の利用状況を返す。
// レコードがない場合は無料プラン・0回として返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.Usage, error) {
	u, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return &model.Usage{UserID: userID}, nil
	}
	return u, nil
}
