package generator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repo2viral/repo2viral/internal/analyzer"
	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/model"
)

// DefaultProgressInterval は進捗メッセージを追加する間隔。
const DefaultProgressInterval = 800 * time.Millisecond

// SessionResolver はセッションIDから有効なセッションを解決する。
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*model.Session, error)
}

// Analyzer は解析リクエストを1回送信する。
type Analyzer interface {
	Analyze(ctx context.Context, req model.GenerationRequest) analyzer.Outcome
}

// Option はOrchestratorの設定を変更する。
type Option func(*Orchestrator)

// WithProgressInterval は進捗メッセージの追加間隔を変更する。
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

// WithObserver は状態遷移ごとに呼ばれるコールバックを設定する。
// コールバックは遷移の順に1つずつ呼ばれる。
func WithObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithMetrics は終端結果を記録するコレクターを設定する。
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(o *Orchestrator) { o.metrics = mc }
}

// Orchestrator は生成ワークフローを駆動する。
// 同時に2回呼び出した場合の排他は行わない。多重送信の防止は呼び出し側の責務。
type Orchestrator struct {
	resolver SessionResolver
	analyzer Analyzer
	interval time.Duration
	observer func(State)
	metrics  metrics.MetricsCollector

	mu    sync.Mutex
	state State

	// notifyMu は遷移とobserver呼び出しの順序を揃える。
	notifyMu sync.Mutex
}

// New はOrchestratorを生成する。
func New(resolver SessionResolver, an Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		analyzer: an,
		interval: DefaultProgressInterval,
		metrics:  metrics.Nop{},
		state:    NewState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot は現在の状態のコピーを返す。
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Generate はワークフローを1回実行し、終端状態を返す。
// 前回の結果、エラー、ログ、ペイウォールフラグは開始時に必ずリセットされる。
func (o *Orchestrator) Generate(ctx context.Context, sessionID, repoURL string, tone model.Tone) State {
	o.begin()
	return o.run(ctx, sessionID, repoURL, tone)
}

// begin は状態をリセットしてResolvingへ遷移させる。
func (o *Orchestrator) begin() State {
	o.apply(Event{Kind: EventStart})
	return o.Snapshot()
}

func (o *Orchestrator) run(ctx context.Context, sessionID, repoURL string, tone model.Tone) State {
	o.apply(Event{Kind: EventAuthenticate})

	session, err := o.resolver.Resolve(ctx, sessionID)
	if err != nil {
		o.apply(Event{Kind: EventSessionFailed, Err: err})
		return o.finish()
	}
	o.apply(Event{Kind: EventSessionResolved})

	if tone == "" {
		tone = model.DefaultTone
	}
	req := model.GenerationRequest{
		RepoURL:     repoURL,
		GitHubToken: session.ProviderToken,
		UserID:      session.UserID,
		Email:       session.Email,
		Tone:        tone,
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()

	var g errgroup.Group
	g.Go(func() error {
		defer stopProgress()
		out := o.analyzer.Analyze(ctx, req)
		o.apply(Event{Kind: EventResponse, Outcome: out})
		return nil
	})
	g.Go(func() error {
		o.emitProgress(progressCtx)
		return nil
	})
	_ = g.Wait()

	return o.finish()
}

// emitProgress は一定間隔で進捗メッセージを追加する。
// ログが埋まるか、InFlight以外になるか、ctxがキャンセルされたら終了する。
func (o *Orchestrator) emitProgress(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.apply(Event{Kind: EventProgressTick}) {
				return
			}
		}
	}
}

func (o *Orchestrator) apply(ev Event) bool {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	changed := Apply(&o.state, ev)
	snap := o.state.clone()
	o.mu.Unlock()

	if changed && o.observer != nil {
		o.observer(snap)
	}
	return changed
}

func (o *Orchestrator) finish() State {
	s := o.Snapshot()

	var result string
	switch s.Phase {
	case PhaseSucceeded:
		result = "succeeded"
	case PhasePaywallBlocked:
		result = "paywall"
	default:
		result = "failed"
	}
	o.metrics.RecordGeneration(result)

	if s.Phase == PhaseFailed {
		slog.Warn("content generation failed",
			slog.String("error", s.Error),
			slog.Int("progress_logs", len(s.Logs)),
		)
	}
	return s
}
