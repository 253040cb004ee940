package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repo2viral/repo2viral/internal/middleware"
)

// withUserID はリクエストのコンテキストにユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withSession はリクエストのコンテキストにユーザーIDとセッションIDを注入する。
func withSession(r *http.Request, userID, sessionID string) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), userID, sessionID))
}

// decodeDetail はレスポンスボディのdetailを取り出す。
func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.DetailBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode detail body: %v", err)
	}
	return body.Detail
}

// decodeErrorCode はレスポンスボディのエラーコードを取り出す。
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Code
}
