// Package generator はコンテンツ生成ワークフローの状態機械とオーケストレーターを提供する。
package generator

import (
	"github.com/repo2viral/repo2viral/internal/analyzer"
	"github.com/repo2viral/repo2viral/internal/auth"
	"github.com/repo2viral/repo2viral/internal/model"
)

// Phase はワークフローの状態。
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseResolving      Phase = "resolving"
	PhaseAuthenticating Phase = "authenticating"
	PhaseInFlight       Phase = "in_flight"
	PhaseSucceeded      Phase = "succeeded"
	PhasePaywallBlocked Phase = "paywall_blocked"
	PhaseFailed         Phase = "failed"
)

// Terminal は終端状態かどうかを返す。
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhasePaywallBlocked || p == PhaseFailed
}

// ProgressMessages は解析中に順に表示する進捗メッセージ。
var ProgressMessages = [...]string{
	"Initializing connection...",
	"Fetching repository data...",
	"Analyzing codebase structure...",
	"Drafting viral content...",
	"Finalizing output...",
}

// State は1回の生成ワークフローの状態。
// Content, Error, Paywall のうち終端状態で意味を持つのは1つだけ。
type State struct {
	Phase   Phase          `json:"phase"`
	Content *model.Content `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
	Logs    []string       `json:"logs"`
	Paywall bool           `json:"paywall"`
	Loading bool           `json:"loading"`
}

// NewState はIdle状態を返す。
func NewState() State {
	return State{Phase: PhaseIdle, Logs: []string{}}
}

// clone はLogsを複製したコピーを返す。
func (s State) clone() State {
	s.Logs = append([]string{}, s.Logs...)
	return s
}

// EventKind はイベント種別。
type EventKind int

const (
	// EventStart は新しい呼び出しの開始。前回の結果、エラー、ログを破棄する。
	EventStart EventKind = iota
	// EventAuthenticate はセッション解決の開始。
	EventAuthenticate
	EventSessionResolved
	// EventSessionFailed はセッション解決の失敗。Errに解決エラーを持つ。
	EventSessionFailed
	EventProgressTick
	// EventResponse は解析リクエストの完了。Outcomeに結果を持つ。
	EventResponse
)

// Event は状態機械への入力。
type Event struct {
	Kind    EventKind
	Err     error
	Outcome analyzer.Outcome
}

// Apply は状態機械の唯一の遷移関数。現在の状態で受理されないイベントは無視し、falseを返す。
func Apply(s *State, ev Event) bool {
	switch ev.Kind {
	case EventStart:
		*s = State{Phase: PhaseResolving, Logs: []string{}, Loading: true}
		return true

	case EventAuthenticate:
		if s.Phase != PhaseResolving {
			return false
		}
		s.Phase = PhaseAuthenticating
		return true

	case EventSessionResolved:
		if s.Phase != PhaseAuthenticating {
			return false
		}
		s.Phase = PhaseInFlight
		return true

	case EventSessionFailed:
		if s.Phase != PhaseAuthenticating {
			return false
		}
		s.Phase = PhaseFailed
		s.Error = auth.UserMessage(ev.Err)
		s.Loading = false
		return true

	case EventProgressTick:
		if s.Phase != PhaseInFlight || len(s.Logs) >= len(ProgressMessages) {
			return false
		}
		s.Logs = append(s.Logs, ProgressMessages[len(s.Logs)])
		return true

	case EventResponse:
		if s.Phase != PhaseInFlight {
			return false
		}
		switch {
		case ev.Outcome.Paywall:
			s.Phase = PhasePaywallBlocked
			s.Paywall = true
			s.Error = ""
		case ev.Outcome.Content != nil:
			s.Phase = PhaseSucceeded
			s.Content = ev.Outcome.Content
		default:
			s.Phase = PhaseFailed
			s.Error = ev.Outcome.Failure
			if s.Error == "" {
				s.Error = analyzer.FallbackMessage
			}
		}
		s.Loading = false
		return true
	}
	return false
}
