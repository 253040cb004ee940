package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/repo2viral/repo2viral/internal/config"
	"github.com/repo2viral/repo2viral/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はダッシュボードAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandAnalyzer は解析バックエンドAPIサーバーモードで起動することを示す。
	CommandAnalyzer Command = "analyzer"
	// CommandWorker は定期クリーンアップを行うワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandCleanup は期限切れデータの削除を1回実行することを示す。
	CommandCleanup Command = "cleanup"
	// CommandGenerate はターミナルから生成ワークフローを実行することを示す。
	CommandGenerate Command = "generate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// newRootCommand はサブコマンドを登録したルートコマンドを返す。
// サブコマンド省略時はserveとして動作する。
func newRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "repo2viral",
		Short:         "GitHubリポジトリからSNS向けコンテンツを生成する",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configured(w, CommandServe, runServe),
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "ダッシュボードAPIサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE:  configured(w, CommandServe, runServe),
		},
		&cobra.Command{
			Use:   string(CommandAnalyzer),
			Short: "解析バックエンドAPIサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE:  configured(w, CommandAnalyzer, runAnalyzer),
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "期限切れデータの削除を日次で実行し続ける",
			Args:  cobra.NoArgs,
			RunE:  configured(w, CommandWorker, runWorker),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "未適用のマイグレーションを適用する",
			Args:  cobra.NoArgs,
			RunE:  configured(w, CommandMigrate, runMigrate),
		},
		&cobra.Command{
			Use:   string(CommandCleanup),
			Short: "期限切れセッションと保持期間を過ぎた生成履歴を削除する",
			Args:  cobra.NoArgs,
			RunE:  configured(w, CommandCleanup, runCleanup),
		},
		newGenerateCommand(w),
		newHealthcheckCommand(),
	)

	return root
}

// generateOptions は generate サブコマンドのフラグ。
type generateOptions struct {
	sessionID string
	tone      string
}

func newGenerateCommand(w io.Writer) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   string(CommandGenerate) + " <repo-url>",
		Short: "保存済みセッションで生成ワークフローを実行し、進捗を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return configured(w, CommandGenerate, func(ctx context.Context, cfg *config.Config) error {
				return runGenerate(ctx, cfg, w, args[0], opts)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", os.Getenv("REPO2VIRAL_SESSION"), "ログイン済みセッションID")
	cmd.Flags().StringVar(&opts.tone, "tone", string(model.DefaultTone), "ペルソナ")
	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "ローカルサーバーの /health を確認する",
		Args:  cobra.NoArgs,
		// 軽量サブコマンドのため、フル初期化をスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(port)
		},
	}
	defaultPort := os.Getenv("SERVER_PORT")
	if defaultPort == "" {
		defaultPort = "8080"
	}
	cmd.Flags().StringVar(&port, "port", defaultPort, "確認するポート")
	return cmd
}

// configured は設定の読み込みとログの初期化を行ってからrunを実行するRunEを返す。
func configured(w io.Writer, name Command, run func(ctx context.Context, cfg *config.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := Init(w)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		defer closer.Close()

		slog.Info("starting application",
			slog.String("command", string(name)),
			slog.String("base_url", cfg.BaseURL),
		)
		return run(cmd.Context(), cfg)
	}
}
