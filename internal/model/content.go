package model

import "time"

// Tone はコンテンツ生成のペルソナ識別子。
// 値の妥当性は解析バックエンド側で検証する。
type Tone string

// DefaultTone は未指定時に使用するペルソナ。
const DefaultTone Tone = "Educator"

// Slide はカルーセル用の1枚分のスライド。
type Slide struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Content はリポジトリから生成されたSNS向けコンテンツ。
type Content struct {
	TwitterThread string  `json:"twitter_thread"`
	LinkedInPost  string  `json:"linkedin_post"`
	BlogIntro     string  `json:"blog_intro"`
	Slides        []Slide `json:"slides,omitempty"`
}

// GenerationRequest は解析バックエンドへ送信するリクエストボディ。
// 1回の呼び出しごとに生成し、完了後は破棄する。
type GenerationRequest struct {
	RepoURL     string `json:"repo_url"`
	GitHubToken string `json:"github_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Tone        Tone   `json:"tone"`
}

// Usage はユーザーごとの生成回数とプラン状態を表す。
type Usage struct {
	UserID         string
	Email          string
	UsageCount     int
	IsPro          bool
	SubscriptionID string
	LicenseKey     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryItem は生成履歴（Vault）の1件。
type HistoryItem struct {
	ID        string
	UserID    string
	RepoURL   string
	ToneUsed  Tone
	Platform  string
	Content   Content
	CreatedAt time.Time
}
