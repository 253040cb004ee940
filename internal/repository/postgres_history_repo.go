package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/repo2viral/repo2viral/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した生成履歴リポジトリ。
// 生成コンテンツはjsonb列にそのまま保存する。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Create は生成履歴を保存する。
func (r *PostgresHistoryRepo) Create(ctx context.Context, item *model.HistoryItem) error {
	content, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO content_history (id, user_id, repo_url, tone_used, platform, generated_content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.UserID, item.RepoURL, string(item.ToneUsed), item.Platform, content, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの生成履歴をcreated_at降順で返す。
func (r *PostgresHistoryRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.HistoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, repo_url, tone_used, platform, generated_content, created_at
		 FROM content_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var items []*model.HistoryItem
	for rows.Next() {
		item := &model.HistoryItem{}
		var tone string
		var content []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.RepoURL, &tone, &item.Platform, &content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		item.ToneUsed = model.Tone(tone)
		if err := json.Unmarshal(content, &item.Content); err != nil {
			return nil, fmt.Errorf("failed to decode content for history %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return items, nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
