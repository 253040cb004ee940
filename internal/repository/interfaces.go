// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/repo2viral/repo2viral/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、user_usage、content_historyはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// ListByUserID はユーザーに紐づく全identityを作成順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れのセッションもそのまま返し、判定は呼び出し元に委ねる。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// UsageRepository は生成回数とプラン状態の永続化インターフェース。
type UsageRepository interface {
	// FindByUserID は指定ユーザーの利用状況を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Usage, error)

	// Ensure は利用状況レコードが存在しなければ usage_count=0, is_pro=false で作成し、
	// 現在のレコードを返す。
	Ensure(ctx context.Context, userID, email string) (*model.Usage, error)

	// IncrementIfAllowed はProプランまたは usage_count < freeLimit の場合のみ
	// usage_countを1増やす。増やした場合はtrueを返す。
	IncrementIfAllowed(ctx context.Context, userID string, freeLimit int) (bool, error)

	// SetProByEmail はメールアドレスに紐づくユーザーのプラン状態を更新する。
	// 更新（または作成）した行数を返す。
	SetProByEmail(ctx context.Context, email string, isPro bool, subscriptionID, licenseKey string) (int64, error)
}

// HistoryRepository は生成履歴の永続化インターフェース。
type HistoryRepository interface {
	// Create は生成履歴を保存する。
	Create(ctx context.Context, item *model.HistoryItem) error

	// ListByUserID はユーザーの生成履歴をcreated_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.HistoryItem, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
