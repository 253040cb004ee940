package generator

import (
	"errors"
	"testing"

	"github.com/repo2viral/repo2viral/internal/analyzer"
	"github.com/repo2viral/repo2viral/internal/auth"
	"github.com/repo2viral/repo2viral/internal/model"
)

func TestApply_Start_ResetsPreviousRun(t *testing.T) {
	s := State{
		Phase:   PhasePaywallBlocked,
		Content: &model.Content{BlogIntro: "old"},
		Error:   "old error",
		Logs:    []string{ProgressMessages[0]},
		Paywall: true,
	}

	if !Apply(&s, Event{Kind: EventStart}) {
		t.Fatal("start should always be accepted")
	}

	if s.Phase != PhaseResolving {
		t.Errorf("Phase = %q, want %q", s.Phase, PhaseResolving)
	}
	if s.Content != nil || s.Error != "" || len(s.Logs) != 0 || s.Paywall {
		t.Errorf("state not reset: %+v", s)
	}
	if !s.Loading {
		t.Error("Loading should be true after start")
	}
}

func TestApply_TransitionTable(t *testing.T) {
	content := &model.Content{TwitterThread: "t"}

	tests := []struct {
		name        string
		from        Phase
		ev          Event
		wantApplied bool
		wantPhase   Phase
		wantError   string
		wantPaywall bool
	}{
		{"認証開始", PhaseResolving, Event{Kind: EventAuthenticate}, true, PhaseAuthenticating, "", false},
		{"Idleから認証は不可", PhaseIdle, Event{Kind: EventAuthenticate}, false, PhaseIdle, "", false},
		{"セッション解決", PhaseAuthenticating, Event{Kind: EventSessionResolved}, true, PhaseInFlight, "", false},
		{"未ログイン", PhaseAuthenticating, Event{Kind: EventSessionFailed, Err: auth.ErrNotAuthenticated}, true, PhaseFailed, auth.MsgNotAuthenticated, false},
		{"期限切れ", PhaseAuthenticating, Event{Kind: EventSessionFailed, Err: auth.ErrSessionExpired}, true, PhaseFailed, auth.MsgSessionExpired, false},
		{"トークンなし", PhaseAuthenticating, Event{Kind: EventSessionFailed, Err: auth.ErrProviderTokenMissing}, true, PhaseFailed, auth.MsgProviderTokenMissing, false},
		{"その他のセッションエラー", PhaseAuthenticating, Event{Kind: EventSessionFailed, Err: errors.New("db down")}, true, PhaseFailed, "db down", false},
		{"成功", PhaseInFlight, Event{Kind: EventResponse, Outcome: analyzer.Outcome{Content: content}}, true, PhaseSucceeded, "", false},
		{"ペイウォール", PhaseInFlight, Event{Kind: EventResponse, Outcome: analyzer.Outcome{Paywall: true}}, true, PhasePaywallBlocked, "", true},
		{"失敗", PhaseInFlight, Event{Kind: EventResponse, Outcome: analyzer.Outcome{Failure: "boom"}}, true, PhaseFailed, "boom", false},
		{"空の失敗はフォールバック", PhaseInFlight, Event{Kind: EventResponse}, true, PhaseFailed, analyzer.FallbackMessage, false},
		{"終端後のレスポンスは無視", PhaseSucceeded, Event{Kind: EventResponse, Outcome: analyzer.Outcome{Failure: "late"}}, false, PhaseSucceeded, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Phase: tt.from, Logs: []string{}, Loading: !tt.from.Terminal()}

			applied := Apply(&s, tt.ev)

			if applied != tt.wantApplied {
				t.Errorf("applied = %v, want %v", applied, tt.wantApplied)
			}
			if s.Phase != tt.wantPhase {
				t.Errorf("Phase = %q, want %q", s.Phase, tt.wantPhase)
			}
			if s.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", s.Error, tt.wantError)
			}
			if s.Paywall != tt.wantPaywall {
				t.Errorf("Paywall = %v, want %v", s.Paywall, tt.wantPaywall)
			}
			if s.Phase.Terminal() && s.Loading {
				t.Error("terminal state must clear Loading")
			}
		})
	}
}

func TestApply_ProgressTick_StopsAtFive(t *testing.T) {
	s := State{Phase: PhaseInFlight, Logs: []string{}, Loading: true}

	for i := 0; i < 8; i++ {
		applied := Apply(&s, Event{Kind: EventProgressTick})
		if want := i < len(ProgressMessages); applied != want {
			t.Errorf("tick %d applied = %v, want %v", i, applied, want)
		}
	}

	if len(s.Logs) != len(ProgressMessages) {
		t.Fatalf("len(Logs) = %d, want %d", len(s.Logs), len(ProgressMessages))
	}
	for i, msg := range ProgressMessages {
		if s.Logs[i] != msg {
			t.Errorf("Logs[%d] = %q, want %q", i, s.Logs[i], msg)
		}
	}
}

func TestApply_ProgressTick_IgnoredOutsideInFlight(t *testing.T) {
	for _, phase := range []Phase{PhaseIdle, PhaseResolving, PhaseAuthenticating, PhaseSucceeded, PhasePaywallBlocked, PhaseFailed} {
		s := State{Phase: phase, Logs: []string{}}
		if Apply(&s, Event{Kind: EventProgressTick}) {
			t.Errorf("tick accepted in phase %q", phase)
		}
		if len(s.Logs) != 0 {
			t.Errorf("phase %q: Logs = %v, want empty", phase, s.Logs)
		}
	}
}
