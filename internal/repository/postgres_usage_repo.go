package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/repo2viral/repo2viral/internal/model"
)

// PostgresUsageRepo はPostgreSQLを使用した利用状況リポジトリ。
type PostgresUsageRepo struct {
	db *sql.DB
}

// NewPostgresUsageRepo はPostgresUsageRepoを生成する。
func NewPostgresUsageRepo(db *sql.DB) *PostgresUsageRepo {
	return &PostgresUsageRepo{db: db}
}

const selectUsageColumns = `SELECT user_id, email, usage_count, is_pro,
	COALESCE(subscription_id, ''), COALESCE(license_key, ''), created_at, updated_at
	FROM user_usage`

// FindByUserID は指定ユーザーの利用状況を取得する。見つからない場合はnilを返す。
func (r *PostgresUsageRepo) FindByUserID(ctx context.Context, userID string) (*model.Usage, error) {
	u := &model.Usage{}
	err := r.db.QueryRowContext(ctx, selectUsageColumns+` WHERE user_id = $1`, userID).
		Scan(&u.UserID, &u.Email, &u.UsageCount, &u.IsPro, &u.SubscriptionID, &u.LicenseKey, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find usage: %w", err)
	}

	return u, nil
}

// Ensure は利用状況レコードが存在しなければ作成し、現在のレコードを返す。
func (r *PostgresUsageRepo) Ensure(ctx context.Context, userID, email string) (*model.Usage, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_usage (user_id, email, usage_count, is_pro, created_at, updated_at)
		 VALUES ($1, $2, 0, false, now(), now())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure usage: %w", err)
	}

	u, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("usage row missing after insert: %s", userID)
	}
	return u, nil
}

// IncrementIfAllowed はProプランまたは無料枠が残っている場合のみusage_countを増やす。
// 判定と加算を1文で行うため、同時リクエストでも無料枠を超えない。
func (r *PostgresUsageRepo) IncrementIfAllowed(ctx context.Context, userID string, freeLimit int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_usage
		 SET usage_count = usage_count + 1, updated_at = now()
		 WHERE user_id = $1 AND (is_pro OR usage_count < $2)`,
		userID, freeLimit,
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// SetProByEmail はメールアドレスに紐づくユーザーのプラン状態を更新する。
// 利用状況レコードがまだない登録済みユーザーにはレコードを作成する。
func (r *PostgresUsageRepo) SetProByEmail(ctx context.Context, email string, isPro bool, subscriptionID, licenseKey string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_usage (user_id, email, usage_count, is_pro, subscription_id, license_key, created_at, updated_at)
		 SELECT id, email, 0, $2, NULLIF($3, ''), NULLIF($4, ''), now(), now()
		 FROM users WHERE email = $1
		 ON CONFLICT (user_id) DO UPDATE
		 SET is_pro = EXCLUDED.is_pro,
		     subscription_id = COALESCE(EXCLUDED.subscription_id, user_usage.subscription_id),
		     license_key = COALESCE(EXCLUDED.license_key, user_usage.license_key),
		     updated_at = now()`,
		email, isPro, subscriptionID, licenseKey,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ UsageRepository = (*PostgresUsageRepo)(nil)
