// Package billing はGumroadのWebhookを受けてProプランの状態を切り替える。
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// SignatureHeader はGumroadが署名を載せるヘッダー名。
const SignatureHeader = "x-gumroad-signature"

var (
	// ErrMissingSignature はシークレット設定時に署名ヘッダーがないことを示す。
	ErrMissingSignature = errors.New("missing x-gumroad-signature header")
	// ErrInvalidSignature は署名が一致しないことを示す。
	ErrInvalidSignature = errors.New("invalid signature")
)

// PlanStore はメールアドレス単位でプラン状態を更新する。
type PlanStore interface {
	SetProByEmail(ctx context.Context, email string, isPro bool, subscriptionID, licenseKey string) (int64, error)
}

// Result はWebhook処理結果のレスポンスボディ。
type Result struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

var (
	resultSuccess      = Result{Status: "success"}
	resultNoEmail      = Result{Status: "ignored", Reason: "no email"}
	resultWrongProduct = Result{Status: "ignored", Reason: "wrong product"}
)

// GumroadProcessor はGumroadのWebhookを検証して処理する。
type GumroadProcessor struct {
	secret    string
	permalink string
	store     PlanStore
}

// NewGumroadProcessor はGumroadProcessorを生成する。
// secretが空の場合は署名検証を行わない。
func NewGumroadProcessor(secret, permalink string, store PlanStore) *GumroadProcessor {
	if secret == "" {
		slog.Warn("GUMROAD_SECRET is not set; webhook signatures will not be verified")
	}
	return &GumroadProcessor{secret: secret, permalink: permalink, store: store}
}

// Verify はリクエストボディのHMAC-SHA256（hex）を署名と比較する。
func (p *GumroadProcessor) Verify(body []byte, signature string) error {
	if p.secret == "" {
		return nil
	}
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		slog.Warn("gumroad webhook signature mismatch")
		return ErrInvalidSignature
	}
	return nil
}

// Handle はフォームの resource_name に応じてプラン状態を更新する。
func (p *GumroadProcessor) Handle(ctx context.Context, form url.Values) (Result, error) {
	event := form.Get("resource_name")
	email := form.Get("email")

	if email == "" {
		return resultNoEmail, nil
	}

	switch event {
	case "sale":
		if product := form.Get("product_permalink"); product != p.permalink {
			slog.Info("gumroad sale for another product ignored", slog.String("product_permalink", product))
			return resultWrongProduct, nil
		}
		n, err := p.store.SetProByEmail(ctx, email, true, form.Get("subscription_id"), form.Get("license_key"))
		if err != nil {
			return Result{}, fmt.Errorf("failed to enable pro plan: %w", err)
		}
		slog.Info("gumroad sale processed", slog.Int64("rows", n))

	case "cancellation", "refund":
		n, err := p.store.SetProByEmail(ctx, email, false, "", "")
		if err != nil {
			return Result{}, fmt.Errorf("failed to disable pro plan: %w", err)
		}
		slog.Info("gumroad subscription ended", slog.String("event", event), slog.Int64("rows", n))

	case "ping":
		slog.Info("gumroad ping received")

	default:
		slog.Info("unhandled gumroad event", slog.String("event", event))
	}

	return resultSuccess, nil
}
