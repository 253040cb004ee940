// Package telemetry はOpenTelemetryのトレーサー初期化を提供する。
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// TracerName は全コンポーネントが共有するトレーサー名。
const TracerName = "github.com/repo2viral/repo2viral"

// Setup はトレーサープロバイダーを初期化してグローバルに登録する。
// traceFileが空の場合はno-opプロバイダーを登録し、何も出力しない。
// 返されるshutdown関数はプロセス終了時に呼び出すこと。
func Setup(ctx context.Context, serviceName, traceFile string) (func(), error) {
	if traceFile == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   traceFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
		}
		if err := w.Close(); err != nil {
			slog.Error("failed to close trace file", slog.String("error", err.Error()))
		}
	}

	return shutdown, nil
}

// Tracer はグローバルプロバイダーからトレーサーを取得する。
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
