package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repo2viral/repo2viral/internal/model"
)

var (
	// ErrNotAuthenticated はセッションが存在しないことを示す。
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired はセッションまたはプロバイダートークンの期限切れを示す。
	ErrSessionExpired = errors.New("session expired")
	// ErrProviderTokenMissing はセッションにGitHubアクセストークンがないことを示す。
	ErrProviderTokenMissing = errors.New("provider token missing")
	// ErrRefreshTokenInvalid はセッションストアがリフレッシュトークンを拒否したことを示す。
	// Resolverはこれを ErrSessionExpired として扱う。
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
)

// ユーザー向けメッセージ
const (
	MsgNotAuthenticated     = "Please login to generate content."
	MsgSessionExpired       = "Your session has expired. Please sign out and sign in again."
	MsgProviderTokenMissing = "GitHub access was not granted or has been revoked. Please sign out and sign in again."
)

// SessionFinder はセッションIDからセッションを読み出す。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// Resolver はセッションIDから解析リクエストに使える有効なセッションを解決する。
// ストアへの書き込みは一切行わない。
type Resolver struct {
	sessions SessionFinder
	now      func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(sessions SessionFinder) *Resolver {
	return &Resolver{sessions: sessions, now: time.Now}
}

// Resolve はセッションを解決する。
// 失敗時は ErrNotAuthenticated, ErrSessionExpired, ErrProviderTokenMissing のいずれか、
// またはストアのエラーをラップしたものを返す。
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}

	session, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	now := r.now()
	if session.Expired(now) || session.ProviderTokenExpired(now) {
		return nil, ErrSessionExpired
	}
	if session.ProviderToken == "" {
		return nil, ErrProviderTokenMissing
	}

	return session, nil
}

// UserMessage はResolveのエラーをユーザー向けの文言に変換する。
// 分類外のエラーはそのメッセージを返す。
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return MsgNotAuthenticated
	case errors.Is(err, ErrSessionExpired):
		return MsgSessionExpired
	case errors.Is(err, ErrProviderTokenMissing):
		return MsgProviderTokenMissing
	default:
		return err.Error()
	}
}
