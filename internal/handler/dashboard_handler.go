package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/repo2viral/repo2viral/internal/content"
	"github.com/repo2viral/repo2viral/internal/generator"
	"github.com/repo2viral/repo2viral/internal/history"
	"github.com/repo2viral/repo2viral/internal/middleware"
	"github.com/repo2viral/repo2viral/internal/model"
)

// ProfileServiceInterface はプラン情報の取得を提供する。
type ProfileServiceInterface interface {
	Profile(ctx context.Context, userID string) (*model.Usage, error)
}

// PersonaListerInterface はペルソナ一覧を提供する。
type PersonaListerInterface interface {
	List() []content.Persona
}

// HistoryListerInterface は生成履歴の一覧を提供する。
type HistoryListerInterface interface {
	List(ctx context.Context, userID string) ([]history.Entry, error)
}

// GenerationRunnerInterface はユーザーごとの生成ワークフローを管理する。
type GenerationRunnerInterface interface {
	Start(ctx context.Context, userID, sessionID, repoURL string, tone model.Tone) (generator.State, error)
	Snapshot(userID string) generator.State
}

// DashboardHandler はダッシュボード画面向けのHTTPハンドラー。
type DashboardHandler struct {
	profiles ProfileServiceInterface
	personas PersonaListerInterface
	history  HistoryListerInterface
	runs     GenerationRunnerInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(
	profiles ProfileServiceInterface,
	personas PersonaListerInterface,
	history HistoryListerInterface,
	runs GenerationRunnerInterface,
) *DashboardHandler {
	return &DashboardHandler{
		profiles: profiles,
		personas: personas,
		history:  history,
		runs:     runs,
	}
}

// profileResponse は GET /api/profile のレスポンス。
type profileResponse struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Plan       string `json:"plan"`
	IsPro      bool   `json:"is_pro"`
	UsageCount int    `json:"usage_count"`
}

// generateRequest は POST /api/generate のリクエストボディ。
type generateRequest struct {
	RepoURL string     `json:"repo_url"`
	Tone    model.Tone `json:"tone"`
}

// Profile はプランと生成回数を返す。
// GET /api/profile
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	usage, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	plan := "free"
	if usage.IsPro {
		plan = "pro"
	}
	writeJSON(w, http.StatusOK, profileResponse{
		UserID:     userID,
		Email:      usage.Email,
		Plan:       plan,
		IsPro:      usage.IsPro,
		UsageCount: usage.UsageCount,
	})
}

// Personas はペルソナ一覧を返す。
// GET /api/personas
func (h *DashboardHandler) Personas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.personas.List())
}

// History は生成履歴を新しい順に返す。
// GET /api/history
func (h *DashboardHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	entries, err := h.history.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// StartGeneration は生成ワークフローを開始し、開始直後の状態を返す。
// POST /api/generate
func (h *DashboardHandler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	sessionID, _ := middleware.SessionIDFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON"))
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("repo_url is required"))
		return
	}
	if req.Tone == "" {
		req.Tone = model.DefaultTone
	}

	state, err := h.runs.Start(r.Context(), userID, sessionID, req.RepoURL, req.Tone)
	if errors.Is(err, generator.ErrAlreadyRunning) {
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewGenerationRunningError())
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("generation started",
		slog.String("user_id", userID),
		slog.String("repo_url", req.RepoURL),
		slog.String("tone", string(req.Tone)),
	)
	writeJSON(w, http.StatusAccepted, state)
}

// GenerationStatus は現在の生成状態を返す。
// GET /api/generate
func (h *DashboardHandler) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, h.runs.Snapshot(userID))
}
