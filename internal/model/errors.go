// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeSessionExpired    = "SESSION_EXPIRED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeGenerationRunning = "GENERATION_IN_PROGRESS"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Please sign in with GitHub.",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Your session has expired. Please sign out and sign in again.",
		Category: "auth",
		Action:   "Please sign in with GitHub again.",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewInvalidURLError は無効なリポジトリURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid repository URL: %s", reason),
		Category: "validation",
		Action:   "Enter a URL in the form https://github.com/owner/repo.",
	}
}

// NewGenerationRunningError は生成処理が実行中の場合のエラーを生成する。
func NewGenerationRunningError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationRunning,
		Message:  "A generation is already in progress.",
		Category: "validation",
		Action:   "Wait for the current generation to finish.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please sign out and sign in again.",
	}
}
