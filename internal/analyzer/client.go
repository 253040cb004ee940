// Package analyzer は解析バックエンド（/api/analyze-repo）へのHTTPクライアントを提供する。
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/telemetry"
)

// FallbackMessage はJSONのエラーレスポンスにdetailがない場合のメッセージ。
const FallbackMessage = "Failed to analyze repository"

// AnalyzePath は解析エンドポイントのパス。
const AnalyzePath = "/api/analyze-repo"

// maxResponseSize はレスポンスボディの最大読み取りサイズ。
const maxResponseSize = 4 << 20

// Outcome は解析リクエストの結果。Content, Paywall, Failure のうち1つだけが意味を持つ。
type Outcome struct {
	Content *model.Content
	Paywall bool
	Failure string
}

// Client は解析バックエンドのHTTPクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	tracer     trace.Tracer
}

// NewClient はClientを生成する。baseURL末尾のスラッシュは除去する。
// httpClientがnilの場合はトランスポート既定のタイムアウトのみを持つクライアントを使う。
func NewClient(baseURL string, httpClient *http.Client, mc metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    mc,
		tracer:     telemetry.Tracer(),
	}
}

type errorBody struct {
	Detail *string `json:"detail"`
}

// Analyze はリクエストを1回だけ送信し、結果を返す。リトライは行わない。
// トランスポートエラーとボディのデコード失敗（エラーレスポンスを含む）は Failure にエラーの説明を入れて返す。
func (c *Client) Analyze(ctx context.Context, req model.GenerationRequest) Outcome {
	ctx, span := c.tracer.Start(ctx, "analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("repo_url", req.RepoURL),
			attribute.String("tone", string(req.Tone)),
		),
	)
	defer span.End()

	start := time.Now()
	out := c.analyze(ctx, req)
	c.metrics.RecordAnalysisLatency(time.Since(start))

	switch {
	case out.Paywall:
		span.SetAttributes(attribute.Bool("paywall", true))
	case out.Failure != "":
		span.SetStatus(codes.Error, out.Failure)
	}
	return out
}

func (c *Client) analyze(ctx context.Context, req model.GenerationRequest) Outcome {
	payload, err := json.Marshal(req)
	if err != nil {
		return Outcome{Failure: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Failure: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{Failure: err.Error()}
	}
	defer resp.Body.Close()

	c.metrics.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return Outcome{Paywall: true}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Outcome{Failure: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err != nil {
			return Outcome{Failure: fmt.Sprintf("failed to decode error response: %v", err)}
		}
		if eb.Detail != nil && *eb.Detail != "" {
			return Outcome{Failure: *eb.Detail}
		}
		return Outcome{Failure: FallbackMessage}
	}

	var content model.Content
	if err := json.Unmarshal(body, &content); err != nil {
		return Outcome{Failure: err.Error()}
	}
	return Outcome{Content: &content}
}
