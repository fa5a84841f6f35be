// Package telemetry sets up OpenTelemetry tracing for a run.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls tracer initialization.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Export writes finished spans as JSON to Writer.
	Export bool
	// Writer defaults to os.Stderr so spans never mix with command output.
	Writer io.Writer
	// RunID is attached to every span as eventload.run_id.
	RunID string
}

// Init configures the global tracer provider and returns it with its
// shutdown func. Without Export the provider records spans but sends them
// nowhere.
func Init(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "eventload"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("library.language", "go"),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, attribute.String("eventload.run_id", cfg.RunID))
	}
	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithProcess(),
		sdkresource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, nil, err
	}

	var tp *sdktrace.TracerProvider
	if cfg.Export {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp,
				sdktrace.WithMaxExportBatchSize(512),
				sdktrace.WithBatchTimeout(200*time.Millisecond),
			),
			sdktrace.WithResource(res),
		)
	} else {
		tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}
