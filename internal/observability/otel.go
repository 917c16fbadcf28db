package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

func noopShutdown(context.Context) error { return nil }

// InitOTel installs a global tracer provider for store writes and HTTP
// requests. Tracing problems never stop the process; the returned function
// flushes buffered spans and is safe to call when tracing is off.
func InitOTel(ctx context.Context, log *logger.Logger, cfg config.OtelConfig, env string) func(context.Context) error {
	if !cfg.Enabled {
		return noopShutdown
	}
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "mechdata"
	}

	exporter, err := traceExporter(ctx, cfg)
	if err != nil {
		if log != nil {
			log.Warn("otel disabled", "error", err)
		}
		return noopShutdown
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(service),
		attribute.String("deployment.environment", strings.TrimSpace(env)),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if log != nil {
		log.Info("otel tracing on", "service", service, "exporter", exporterName(cfg))
	}
	return tp.Shutdown
}

func sampleRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// exporterName falls back to stdout when otlp is asked for without an endpoint.
func exporterName(cfg config.OtelConfig) string {
	name := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if name == "otlp" && strings.TrimSpace(cfg.Endpoint) == "" {
		return "stdout"
	}
	return name
}

func traceExporter(ctx context.Context, cfg config.OtelConfig) (sdktrace.SpanExporter, error) {
	switch name := exporterName(cfg); name {
	case "otlp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimSpace(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown otel exporter %q", name)
	}
}
