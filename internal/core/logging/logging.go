// Package logging configures the process-wide slog logger.
//
// Output is JSON or text on a writer, or, when OpenTelemetry export is
// enabled, an otelslog bridge over an OTLP/gRPC log exporter. All handlers
// share one LevelVar so SetLevel takes effect immediately.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// DefaultServiceName identifies exported log records.
const DefaultServiceName = "healthcert"

var (
	programLevel = new(slog.LevelVar)

	mu           sync.Mutex
	shutdownFunc func(context.Context) error
)

// Options configures Setup.
type Options struct {
	Level  string
	Format string // json or text
	Writer io.Writer

	// OTel exports records over OTLP/gRPC instead of writing them.
	OTel         bool
	OTelEndpoint string
	ServiceName  string
}

// Setup builds the logger, installs it as slog's default and returns it.
// An unknown level or format is an error; the logger is not replaced then.
func Setup(ctx context.Context, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}

	var handler slog.Handler
	if opts.OTel {
		handler, err = setupOTel(ctx, opts)
		if err != nil {
			return nil, err
		}
	} else {
		handler, err = newHandler(opts.Format, opts.Writer)
		if err != nil {
			return nil, err
		}
	}

	programLevel.Set(level)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func newHandler(format string, w io.Writer) (slog.Handler, error) {
	handlerOpts := &slog.HandlerOptions{Level: programLevel}
	switch strings.ToLower(format) {
	case "", "json":
		return slog.NewJSONHandler(w, handlerOpts), nil
	case "text":
		return slog.NewTextHandler(w, handlerOpts), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (expected json or text)", format)
	}
}

func setupOTel(ctx context.Context, opts Options) (slog.Handler, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporterOpts []otlploggrpc.Option
	if opts.OTelEndpoint != "" {
		exporterOpts = append(exporterOpts,
			otlploggrpc.WithEndpoint(opts.OTelEndpoint),
			otlploggrpc.WithInsecure(),
		)
	}
	exporter, err := otlploggrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	mu.Lock()
	shutdownFunc = provider.Shutdown
	mu.Unlock()

	return &levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(provider)),
	}, nil
}

// levelHandler filters records below level before the wrapped handler.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes exported records. A no-op unless OTel export is active.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fn := shutdownFunc
	shutdownFunc = nil
	mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// SetLevel changes the minimum level of the installed logger.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Unknown names yield
// LevelInfo together with an error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}
