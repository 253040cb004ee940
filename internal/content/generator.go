package content

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/repo2viral/repo2viral/internal/github"
	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/security"
	"github.com/repo2viral/repo2viral/internal/telemetry"
)

// Writer はリポジトリ情報とペルソナからコンテンツを生成する。
type Writer struct {
	catalog   *Catalog
	llm       Completer
	sanitizer security.TextSanitizerService
}

// NewWriter はWriterを生成する。
func NewWriter(catalog *Catalog, llm Completer, sanitizer security.TextSanitizerService) *Writer {
	return &Writer{catalog: catalog, llm: llm, sanitizer: sanitizer}
}

// Write はプロンプトを組み立ててLLMを呼び出し、出力をセクションに分割する。
// 3つの主要セクションが全て空の場合はエラーとする。
func (w *Writer) Write(ctx context.Context, snap *github.Snapshot, tone model.Tone) (*model.Content, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "content.Write")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo", snap.Repo.String()),
		attribute.String("tone", string(tone)),
	)

	persona, err := w.catalog.Lookup(tone)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	system, user := BuildPrompt(persona, snap, w.sanitizer)
	text, err := w.llm.Complete(ctx, system, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	c := ParseSections(text)
	if c.TwitterThread == "" && c.LinkedInPost == "" && c.BlogIntro == "" {
		slog.Warn("LLM出力に既知の見出しがありません",
			slog.String("repo", snap.Repo.String()),
			slog.Int("length", len(text)),
		)
		span.SetStatus(codes.Error, "no sections")
		return nil, fmt.Errorf("failed to generate content: %w", ErrEmptyCompletion)
	}
	span.SetAttributes(attribute.Int("slides", len(c.Slides)))
	return &c, nil
}
