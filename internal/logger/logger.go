package logger

import (
	"io"
	"log/slog"
	"os"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// NewRotatingWriter はサイズベースでローテーションするログファイルのwriterを返す。
// 10MB単位で切り替え、3世代・28日分を圧縮して保持する。
func NewRotatingWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
// logFileが指定された場合はローテーション付きファイルにも同じログを書き込む。
// 返り値のio.Closerはファイル出力を閉じるために使用する（ファイル未指定時は何もしない）。
func SetupDefault(w io.Writer, logFile string) io.Closer {
	if w == nil {
		w = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if logFile != "" {
		rotating := NewRotatingWriter(logFile)
		w = io.MultiWriter(w, rotating)
		closer = rotating
	}

	logger := Setup(w)
	slog.SetDefault(logger)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
