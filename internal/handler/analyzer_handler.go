package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/repo2viral/repo2viral/internal/billing"
	"github.com/repo2viral/repo2viral/internal/content"
	"github.com/repo2viral/repo2viral/internal/github"
	"github.com/repo2viral/repo2viral/internal/middleware"
	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/telemetry"
	"github.com/repo2viral/repo2viral/internal/usage"
)

// 解析APIが返すdetailメッセージ
const (
	detailFreeLimit      = "Free limit reached. Upgrade to Pro."
	detailPersonaLocked  = "This persona is available on the Pro plan. Upgrade to Pro."
	detailGenerationFail = "AI generation failed. Check API server logs or keys."
	detailMissingSig     = "Missing x-gumroad-signature header"
	detailInvalidSig     = "Invalid signature"
)

// maxWebhookBodySize はWebhookボディの最大サイズ。
const maxWebhookBodySize = 64 << 10

// UsageCheckerInterface は生成前の利用回数チェックを提供する。
type UsageCheckerInterface interface {
	Check(ctx context.Context, userID, email string, tone model.Tone) error
}

// PersonaLookupInterface はペルソナの存在確認を提供する。
type PersonaLookupInterface interface {
	Lookup(tone model.Tone) (content.Persona, error)
}

// RepoLoaderInterface はGitHubリポジトリの取得を提供する。
type RepoLoaderInterface interface {
	Load(ctx context.Context, repoURL, token string) (*github.Snapshot, error)
}

// ContentWriterInterface はSNS向けコンテンツの生成を提供する。
type ContentWriterInterface interface {
	Write(ctx context.Context, snap *github.Snapshot, tone model.Tone) (*model.Content, error)
}

// HistorySaverInterface は生成結果の保存を提供する。
type HistorySaverInterface interface {
	Save(ctx context.Context, userID, repoURL string, tone model.Tone, c *model.Content) error
}

// WebhookProcessorInterface はGumroad Webhookの検証と処理を提供する。
type WebhookProcessorInterface interface {
	Verify(body []byte, signature string) error
	Handle(ctx context.Context, form url.Values) (billing.Result, error)
}

// AnalyzerHandler は解析バックエンドのHTTPハンドラー。
type AnalyzerHandler struct {
	personas PersonaLookupInterface
	usage    UsageCheckerInterface
	loader   RepoLoaderInterface
	writer   ContentWriterInterface
	history  HistorySaverInterface
}

// NewAnalyzerHandler はAnalyzerHandlerを生成する。historyがnilの場合は保存しない。
func NewAnalyzerHandler(
	personas PersonaLookupInterface,
	usage UsageCheckerInterface,
	loader RepoLoaderInterface,
	writer ContentWriterInterface,
	history HistorySaverInterface,
) *AnalyzerHandler {
	return &AnalyzerHandler{
		personas: personas,
		usage:    usage,
		loader:   loader,
		writer:   writer,
		history:  history,
	}
}

// AnalyzeRepo はリポジトリを解析してSNS向けコンテンツを返す。
// POST /api/analyze-repo
func (h *AnalyzerHandler) AnalyzeRepo(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "analyzer.AnalyzeRepo")
	defer span.End()

	var req model.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" || req.UserID == "" {
		middleware.WriteDetail(w, http.StatusBadRequest, "repo_url and user_id are required")
		return
	}
	if req.Tone == "" {
		req.Tone = model.DefaultTone
	}
	span.SetAttributes(
		attribute.String("repo_url", req.RepoURL),
		attribute.String("tone", string(req.Tone)),
	)

	// 1. ペルソナの確認
	if _, err := h.personas.Lookup(req.Tone); err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("Unknown persona: %s", req.Tone))
		return
	}

	// 2. 利用回数のチェック
	if err := h.usage.Check(ctx, req.UserID, req.Email, req.Tone); err != nil {
		switch {
		case errors.Is(err, usage.ErrFreeLimitReached):
			middleware.WriteDetail(w, http.StatusForbidden, detailFreeLimit)
		case errors.Is(err, usage.ErrPersonaLocked):
			middleware.WriteDetail(w, http.StatusForbidden, detailPersonaLocked)
		default:
			span.SetStatus(codes.Error, err.Error())
			slog.Error("usage check failed", slog.String("user_id", req.UserID), slog.String("error", err.Error()))
			middleware.WriteDetail(w, http.StatusInternalServerError, fmt.Sprintf("Usage check failed: %s", err))
		}
		return
	}

	// 3. GitHubからリポジトリ情報を取得
	snap, err := h.loader.Load(ctx, req.RepoURL, req.GitHubToken)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("repository fetch failed", slog.String("repo_url", req.RepoURL), slog.String("error", err.Error()))
		middleware.WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("Error fetching repo: %s", err))
		return
	}

	// 4. コンテンツ生成
	generated, err := h.writer.Write(ctx, snap, req.Tone)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("content generation failed", slog.String("repo_url", req.RepoURL), slog.String("error", err.Error()))
		middleware.WriteDetail(w, http.StatusInternalServerError, detailGenerationFail)
		return
	}

	// 5. 履歴の保存（失敗しても結果は返す）
	if h.history != nil {
		if err := h.history.Save(ctx, req.UserID, req.RepoURL, req.Tone, generated); err != nil {
			slog.Warn("failed to save history", slog.String("user_id", req.UserID), slog.String("error", err.Error()))
		}
	}

	slog.Info("repository analyzed",
		slog.String("user_id", req.UserID),
		slog.String("repo", snap.Repo.String()),
		slog.String("tone", string(req.Tone)),
	)
	writeJSON(w, http.StatusOK, generated)
}

// WebhookHandler はGumroadからの通知を処理するハンドラー。
type WebhookHandler struct {
	processor WebhookProcessorInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(processor WebhookProcessorInterface) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Gumroad はGumroadのフォームPOSTを処理する。
// POST /webhooks/gumroad
func (h *WebhookHandler) Gumroad(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.processor.Verify(body, r.Header.Get(billing.SignatureHeader)); err != nil {
		switch {
		case errors.Is(err, billing.ErrMissingSignature):
			middleware.WriteDetail(w, http.StatusBadRequest, detailMissingSig)
		default:
			slog.Warn("gumroad signature mismatch")
			middleware.WriteDetail(w, http.StatusForbidden, detailInvalidSig)
		}
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		middleware.WriteDetail(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	result, err := h.processor.Handle(r.Context(), form)
	if err != nil {
		slog.Error("gumroad webhook failed", slog.String("error", err.Error()))
		middleware.WriteDetail(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
