package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &mockExecutor{}
	db.execFn = func(query string) (sql.Result, error) {
		if strings.Contains(query, "content_history") {
			// 初回サイクルの完了後に停止させる
			cancel()
		}
		return &fakeResult{rowsAffected: 1}, nil
	}

	var buf bytes.Buffer
	job := NewCleanupJob(db, newTestLogger(&buf))

	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	if len(db.calls) != 2 {
		t.Errorf("ExecContext calls = %d, want 2", len(db.calls))
	}
	if !strings.Contains(buf.String(), "クリーンアップスケジューラを停止しました") {
		t.Errorf("expected stop log, got %s", buf.String())
	}
}

func TestCleanupJob_Start_FailureDoesNotStopScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &mockExecutor{}
	db.execFn = func(query string) (sql.Result, error) {
		cancel()
		return nil, errors.New("connection reset")
	}

	var buf bytes.Buffer
	job := NewCleanupJob(db, newTestLogger(&buf))

	job.Start(ctx, time.Hour)

	if !strings.Contains(buf.String(), "クリーンアップサイクルの実行に失敗しました") {
		t.Errorf("expected failure log, got %s", buf.String())
	}
}
