// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// ProviderTokenはOAuthプロバイダー（GitHub）のアクセストークンで、
// リポジトリ解析リクエストにそのまま転送される。
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time

	ProviderToken string
	// ProviderTokenExpiresAt はゼロ値の場合、トークンに有効期限がないことを示す。
	ProviderTokenExpiresAt time.Time
}

// Expired はセッション自体の有効期限が切れているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ProviderTokenExpired はプロバイダートークンの有効期限が切れているかを返す。
func (s *Session) ProviderTokenExpired(now time.Time) bool {
	if s.ProviderTokenExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ProviderTokenExpiresAt)
}
