package generator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/repo2viral/repo2viral/internal/model"
)

// ErrAlreadyRunning は同じユーザーの生成が進行中であることを示す。
var ErrAlreadyRunning = errors.New("generation already in progress")

// DefaultRunTTL は終了した生成の状態を保持する期間。
const DefaultRunTTL = 30 * time.Minute

// Registry はユーザーごとにOrchestratorを保持し、ダッシュボードからのポーリングに状態を提供する。
// 終了した状態は Evict で破棄されるまで保持される。
type Registry struct {
	resolver SessionResolver
	analyzer Analyzer
	opts     []Option
	now      func() time.Time

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	o *Orchestrator
	// finishedAt は実行中またはまだ実行していない場合はゼロ値。
	finishedAt time.Time
	// seq はStartごとに増え、古い実行が finishedAt を上書きしないようにする。
	seq uint64
}

// NewRegistry はRegistryを生成する。optsは各ユーザーのOrchestratorに適用される。
func NewRegistry(resolver SessionResolver, an Analyzer, opts ...Option) *Registry {
	return &Registry{
		resolver: resolver,
		analyzer: an,
		opts:     opts,
		now:      time.Now,
		runs:     make(map[string]*run),
	}
}

// Start はユーザーの生成をバックグラウンドで開始し、開始直後の状態を返す。
// 同じユーザーの生成が進行中の場合は ErrAlreadyRunning を返す。
// 生成はリクエストのキャンセルとは無関係に完了まで実行される。
func (r *Registry) Start(ctx context.Context, userID, sessionID, repoURL string, tone model.Tone) (State, error) {
	r.mu.Lock()
	entry, ok := r.runs[userID]
	if !ok {
		entry = &run{o: New(r.resolver, r.analyzer, r.opts...)}
		r.runs[userID] = entry
	}
	if entry.o.Snapshot().Loading {
		r.mu.Unlock()
		return State{}, ErrAlreadyRunning
	}
	state := entry.o.begin()
	entry.finishedAt = time.Time{}
	entry.seq++
	seq := entry.seq
	r.wg.Add(1)
	r.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		entry.o.run(runCtx, sessionID, repoURL, tone)

		r.mu.Lock()
		if entry.seq == seq {
			entry.finishedAt = r.now()
		}
		r.mu.Unlock()
	}()

	return state, nil
}

// Snapshot はユーザーの現在の状態を返す。まだ実行していない場合はIdle状態を返す。
func (r *Registry) Snapshot(userID string) State {
	r.mu.Lock()
	entry, ok := r.runs[userID]
	r.mu.Unlock()
	if !ok {
		return NewState()
	}
	return entry.o.Snapshot()
}

// Forget はユーザーの状態を破棄する。進行中の生成はそのまま完了する。
func (r *Registry) Forget(userID string) {
	r.mu.Lock()
	delete(r.runs, userID)
	r.mu.Unlock()
}

// Evict は終了からttl以上経過した状態を破棄し、破棄した件数を返す。
// 実行中の生成は対象外。
func (r *Registry) Evict(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for userID, entry := range r.runs {
		if entry.finishedAt.IsZero() || entry.finishedAt.After(cutoff) {
			continue
		}
		delete(r.runs, userID)
		evicted++
	}
	return evicted
}

// StartEviction はctxがキャンセルされるまでinterval毎に Evict を実行する。
func (r *Registry) StartEviction(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(ttl); n > 0 {
				slog.Info("evicted finished generation runs", slog.Int("count", n))
			}
		}
	}
}

// Len は保持している状態の件数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// Wait は進行中の全ての生成の完了を待つ。シャットダウン時に使用する。
func (r *Registry) Wait() {
	r.wg.Wait()
}
