package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/repo2viral/repo2viral/internal/analyzer"
	"github.com/repo2viral/repo2viral/internal/auth"
	"github.com/repo2viral/repo2viral/internal/config"
	"github.com/repo2viral/repo2viral/internal/generator"
	"github.com/repo2viral/repo2viral/internal/metrics"
	"github.com/repo2viral/repo2viral/internal/model"
	"github.com/repo2viral/repo2viral/internal/repository"
)

// errGenerationFailed は生成がペイウォールまたはエラーで終了したことを示す。
var errGenerationFailed = errors.New("generation did not succeed")

// runGenerate は保存済みセッションで生成ワークフローを1回実行し、進捗と結果をwに書き出す。
func runGenerate(ctx context.Context, cfg *config.Config, w io.Writer, repoURL string, opts *generateOptions) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	resolver := auth.NewResolver(repository.NewPostgresSessionRepo(db))
	client := analyzer.NewClient(cfg.AnalyzeAPIURL, nil, metrics.Nop{})

	p := newProgressPrinter(w, isTerminal(w))
	o := generator.New(resolver, client, generator.WithObserver(p.observe))

	final := o.Generate(ctx, opts.sessionID, repoURL, model.Tone(opts.tone))
	return p.result(final)
}

// progressPrinter は状態遷移ごとに新しい進捗メッセージを出力する。
type progressPrinter struct {
	w        io.Writer
	decorate bool

	mu      sync.Mutex
	printed int
}

func newProgressPrinter(w io.Writer, decorate bool) *progressPrinter {
	return &progressPrinter{w: w, decorate: decorate}
}

// observe は未出力のログ行だけを書き出す。
func (p *progressPrinter) observe(s generator.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 開始時にログはリセットされる
	if len(s.Logs) < p.printed {
		p.printed = 0
	}
	for _, line := range s.Logs[p.printed:] {
		if p.decorate {
			fmt.Fprintf(p.w, "\033[2m›\033[0m %s\n", line)
		} else {
			fmt.Fprintln(p.w, line)
		}
	}
	p.printed = len(s.Logs)
}

// result は終端状態を書き出し、成功以外ならエラーを返す。
func (p *progressPrinter) result(s generator.State) error {
	switch s.Phase {
	case generator.PhaseSucceeded:
		p.section("TWITTER THREAD", s.Content.TwitterThread)
		p.section("LINKEDIN POST", s.Content.LinkedInPost)
		p.section("BLOG INTRO", s.Content.BlogIntro)
		if len(s.Content.Slides) > 0 {
			lines := make([]string, 0, len(s.Content.Slides))
			for _, sl := range s.Content.Slides {
				lines = append(lines, sl.Title+" | "+sl.Body)
			}
			p.section("CAROUSEL SLIDES", strings.Join(lines, "\n"))
		}
		return nil
	case generator.PhasePaywallBlocked:
		p.alert("Free limit reached. Upgrade to Pro to keep generating.")
		return fmt.Errorf("%w: paywall", errGenerationFailed)
	default:
		p.alert(s.Error)
		return fmt.Errorf("%w: %s", errGenerationFailed, s.Error)
	}
}

func (p *progressPrinter) section(title, body string) {
	if p.decorate {
		fmt.Fprintf(p.w, "\n\033[1m### %s\033[0m\n%s\n", title, body)
		return
	}
	fmt.Fprintf(p.w, "\n### %s\n%s\n", title, body)
}

func (p *progressPrinter) alert(msg string) {
	if p.decorate {
		fmt.Fprintf(p.w, "\033[31m%s\033[0m\n", msg)
		return
	}
	fmt.Fprintln(p.w, msg)
}

func isTerminalFd(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
