package o11y

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/semanticallynull/rideledger-backend/ledger"
)

type Config struct {
	ServiceName string
	// OTLPEndpoint is host:port of an OTLP HTTP collector. Empty disables export.
	OTLPEndpoint string
	SampleRatio  float64
	LogLevel     string
}

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func Setup(ctx context.Context, cfg Config) (*Observability, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	res := resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName))
	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		)
		if err != nil {
			return nil, func() {}, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledger.RegisterMetrics(registry)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}

	return &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
	}, cleanup, nil
}
