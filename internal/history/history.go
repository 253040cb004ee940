// Package history は生成履歴（Vault）の保存と一覧を提供する。
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/repository"
)

const (
	// TeaserLength は無料プランでぼかし表示する履歴の本文の最大文字数。
	TeaserLength = 150

	// PlatformAll は全プラットフォーム分をまとめて保存した履歴を示す。
	PlatformAll = "all"

	defaultListLimit = 50
)

// Entry はダッシュボードに返す履歴の1件。
type Entry struct {
	ID        string        `json:"id"`
	RepoURL   string        `json:"repo_url"`
	Tone      model.Tone    `json:"tone_used"`
	Platform  string        `json:"platform"`
	Content   model.Content `json:"generated_content"`
	CreatedAt time.Time     `json:"created_at"`
	Blurred   bool          `json:"blurred"`
}

// Service は生成履歴を扱う。
type Service struct {
	repo        repository.HistoryRepository
	usage       repository.UsageRepository
	visibleDays int
	now         func() time.Time
}

// NewService はServiceを生成する。
// visibleDaysは無料プランで全文を表示する日数。
func NewService(repo repository.HistoryRepository, usage repository.UsageRepository, visibleDays int) *Service {
	return &Service{repo: repo, usage: usage, visibleDays: visibleDays, now: time.Now}
}

// Save は生成結果を履歴として保存する。
func (s *Service) Save(ctx context.Context, userID, repoURL string, tone model.Tone, content *model.Content) error {
	item := &model.HistoryItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		RepoURL:   repoURL,
		ToneUsed:  tone,
		Platform:  PlatformAll,
		Content:   *content,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// List はユーザーの履歴を新しい順に返す。
// 無料プランではvisibleDaysより古い履歴をぼかし、本文をティーザーに切り詰める。
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	items, err := s.repo.ListByUserID(ctx, userID, defaultListLimit)
	if err != nil {
		return nil, err
	}

	u, err := s.usage.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	isPro := u != nil && u.IsPro
	cutoff := s.now().AddDate(0, 0, -s.visibleDays)

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		e := Entry{
			ID:        item.ID,
			RepoURL:   item.RepoURL,
			Tone:      item.ToneUsed,
			Platform:  item.Platform,
			Content:   item.Content,
			CreatedAt: item.CreatedAt,
		}
		if !isPro && item.CreatedAt.Before(cutoff) {
			e.Blurred = true
			e.Content = teaser(item.Content)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// teaser は各本文を先頭TeaserLength文字に切り詰め、スライドを落とす。
func teaser(c model.Content) model.Content {
	return model.Content{
		TwitterThread: truncate(c.TwitterThread),
		LinkedInPost:  truncate(c.LinkedInPost),
		BlogIntro:     truncate(c.BlogIntro),
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= TeaserLength {
		return s
	}
	return string(r[:TeaserLength]) + "..."
}
