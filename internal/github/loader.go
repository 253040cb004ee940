package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/security"
	"github.com/repo2viral/repo2viral/internal/telemetry"
)

const (
	defaultAPIURL = "https://api.github.com"
	defaultRawURL = "https://raw.githubusercontent.com"
	defaultWebURL = "https://github.com"

	userAgent = "Repo2Viral-Agent"

	// ReadmePlaceholder はREADMEが取得できなかった場合の本文。
	ReadmePlaceholder = "Could not fetch README.md content."

	maxReleases = 5
)

// Snapshot はコンテンツ生成に使うリポジトリの情報。
type Snapshot struct {
	Repo          Repo
	DefaultBranch string
	Readme        string
	// Files はファイルツリーのblobパス。TreeLimit件で打ち切る。
	Files      []string
	TotalFiles int
	TechStack  []string
	Evidence   []string
	Releases   []string
}

// Config はLoaderの設定。URLはテスト用にオーバーライドできる。
type Config struct {
	APIURL    string
	RawURL    string
	WebURL    string
	TreeLimit int
}

// Loader はGitHubからリポジトリ情報を取得する。
type Loader struct {
	cfg     Config
	client  *http.Client
	guard   security.SSRFGuardService
	metrics metrics.MetricsCollector
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewLoader はLoaderを生成する。
// guardがnilでない場合、取得前にリポジトリURLを検証する。
func NewLoader(client *http.Client, guard security.SSRFGuardService, mc metrics.MetricsCollector, cfg Config) *Loader {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.RawURL == "" {
		cfg.RawURL = defaultRawURL
	}
	if cfg.WebURL == "" {
		cfg.WebURL = defaultWebURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.RawURL = strings.TrimRight(cfg.RawURL, "/")
	cfg.WebURL = strings.TrimRight(cfg.WebURL, "/")
	if cfg.TreeLimit <= 0 {
		cfg.TreeLimit = 300
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Loader{
		cfg:     cfg,
		client:  client,
		guard:   guard,
		metrics: mc,
		tracer:  telemetry.Tracer(),
		logger:  slog.Default(),
	}
}

// Load はリポジトリ情報を取得する。
// リポジトリ情報の取得失敗はエラーとし、README、ツリー、リリースの取得失敗は
// 記録した上で取得できた範囲の情報を返す。
func (l *Loader) Load(ctx context.Context, repoURL, token string) (*Snapshot, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if l.guard != nil {
		if err := l.guard.ValidateURL(repoURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
		}
	}

	ctx, span := l.tracer.Start(ctx, "github.Load", trace.WithAttributes(attribute.String("repo", repo.String())))
	defer span.End()

	branch, err := l.fetchDefaultBranch(ctx, repo, token)
	if err != nil {
		l.metrics.RecordGitHubFetchFailure("repo")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	snap := &Snapshot{Repo: repo, DefaultBranch: branch}

	var files []string
	var g errgroup.Group
	g.Go(func() error {
		snap.Readme = l.fetchReadme(ctx, repo, branch, token)
		return nil
	})
	g.Go(func() error {
		var err error
		files, err = l.fetchTree(ctx, repo, branch, token)
		if err != nil {
			l.metrics.RecordGitHubFetchFailure("tree")
			l.logger.Warn("ファイルツリーの取得に失敗しました",
				slog.String("repo", repo.String()),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		snap.Releases, err = l.fetchReleases(ctx, repo)
		if err != nil {
			l.metrics.RecordGitHubFetchFailure("releases")
			l.logger.Info("リリース情報を取得できませんでした",
				slog.String("repo", repo.String()),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	_ = g.Wait()

	snap.TotalFiles = len(files)
	snap.TechStack = DetectStack(files)
	snap.Evidence = CollectEvidence(files)
	if len(files) > l.cfg.TreeLimit {
		files = files[:l.cfg.TreeLimit]
	}
	snap.Files = files

	span.SetAttributes(
		attribute.Int("files", snap.TotalFiles),
		attribute.Int("releases", len(snap.Releases)),
	)
	return snap, nil
}

type repoInfo struct {
	DefaultBranch string `json:"default_branch"`
}

func (l *Loader) fetchDefaultBranch(ctx context.Context, repo Repo, token string) (string, error) {
	resp, err := l.get(ctx, l.cfg.APIURL+"/repos/"+repo.String(), token)
	if err != nil {
		return "", fmt.Errorf("failed to fetch repo info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized && token != "":
		return "", ErrTokenRejected
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrRepoNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("failed to fetch repo info: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info repoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode repo info: %w", err)
	}
	if info.DefaultBranch == "" {
		info.DefaultBranch = "main"
	}
	return info.DefaultBranch, nil
}

type readmeResponse struct {
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

// fetchReadme はAPI、生ファイルの順にREADMEを探し、見つからなければプレースホルダーを返す。
func (l *Loader) fetchReadme(ctx context.Context, repo Repo, branch, token string) string {
	if text, err := l.fetchReadmeFromAPI(ctx, repo, token); err == nil && text != "" {
		return text
	} else if err != nil {
		l.logger.Info("API経由のREADME取得に失敗しました",
			slog.String("repo", repo.String()),
			slog.String("error", err.Error()),
		)
	}

	branches := []string{branch}
	for _, b := range []string{"main", "master"} {
		if b != branch {
			branches = append(branches, b)
		}
	}
	for _, b := range branches {
		text, err := l.getText(ctx, fmt.Sprintf("%s/%s/%s/README.md", l.cfg.RawURL, repo.String(), b), token)
		if err == nil && text != "" {
			return text
		}
	}

	l.metrics.RecordGitHubFetchFailure("readme")
	return ReadmePlaceholder
}

func (l *Loader) fetchReadmeFromAPI(ctx context.Context, repo Repo, token string) (string, error) {
	resp, err := l.get(ctx, l.cfg.APIURL+"/repos/"+repo.String()+"/readme", token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("readme status %d", resp.StatusCode)
	}

	var r readmeResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("failed to decode readme: %w", err)
	}

	if r.Content != "" && r.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(r.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("failed to decode readme content: %w", err)
		}
		return string(decoded), nil
	}
	if r.DownloadURL != "" {
		return l.getText(ctx, r.DownloadURL, l.tokenFor(r.DownloadURL, token))
	}
	return "", nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (l *Loader) fetchTree(ctx context.Context, repo Repo, branch, token string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", l.cfg.APIURL, repo.String(), branch)
	resp, err := l.get(ctx, url, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tree status %d", resp.StatusCode)
	}

	var tr treeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}

	files := make([]string, 0, len(tr.Tree))
	for _, entry := range tr.Tree {
		if entry.Type == "blob" {
			files = append(files, entry.Path)
		}
	}
	return files, nil
}

// fetchReleases はリポジトリのreleases.atomから最新のリリース名を取得する。
func (l *Loader) fetchReleases(ctx context.Context, repo Repo) ([]string, error) {
	resp, err := l.get(ctx, fmt.Sprintf("%s/%s/releases.atom", l.cfg.WebURL, repo.String()), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("releases feed status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse releases feed: %w", err)
	}

	var titles []string
	for _, item := range feed.Items {
		if len(titles) == maxReleases {
			break
		}
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

func (l *Loader) get(ctx context.Context, url, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return l.client.Do(req)
}

// tokenFor はurlのホストがAPIまたはrawのホストと一致する場合のみtokenを返す。
// それ以外のホストには利用者のトークンを送らない。
func (l *Loader) tokenFor(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, trusted := range []string{l.cfg.APIURL, l.cfg.RawURL} {
		t, err := url.Parse(trusted)
		if err == nil && t.Scheme == u.Scheme && strings.EqualFold(t.Host, u.Host) {
			return token
		}
	}
	return ""
}

func (l *Loader) getText(ctx context.Context, url, token string) (string, error) {
	resp, err := l.get(ctx, url, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
