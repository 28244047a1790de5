// Package observability: трассировка OpenTelemetry и HTTP-эндпоинт Prometheus.
package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/annel0/sandbox-game/internal/logging"
)

// TelemetryConfig параметры трассировки
type TelemetryConfig struct {
	ServiceName string
	InstanceID  string
	// Endpoint host:port OTLP/HTTP; пусто означает OTEL_EXPORTER_OTLP_ENDPOINT или localhost:4318
	Endpoint string
	// SampleRatio доля записываемых корневых трасс, 0 означает все
	SampleRatio float64
}

// InitTelemetry ставит глобальный TracerProvider с OTLP экспортером.
// Возвращённый shutdown выгружает буфер спанов.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("observability: пустое имя сервиса")
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceInstanceID(cfg.InstanceID),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	logging.Info("📡 OpenTelemetry: %s (%s), доля трасс %.2f", cfg.ServiceName, cfg.InstanceID, sampleRatio(cfg.SampleRatio))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

func sampler(ratio float64) sdktrace.Sampler {
	r := sampleRatio(ratio)
	if r == 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
}
