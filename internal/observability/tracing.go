package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/utilities"
)

var tracingOnce sync.Once

func Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return otel.Tracer(name, opts...)
}

func serviceResource(tc *conf.TracingConfig) *sdkresource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", tc.ServiceName),
		attribute.String("service.version", utilities.VersionString()),
	}
	for k, v := range tc.Tags {
		attrs = append(attrs, attribute.String(k, v))
	}

	env := sdkresource.Environment()
	merged, err := sdkresource.Merge(env, sdkresource.NewSchemaless(attrs...))
	if err != nil {
		logrus.WithError(err).Warn("unable to merge tracing resource attributes")
		return env
	}
	return merged
}

func newTraceExporter(ctx context.Context, protocol string) (*otlptrace.Exporter, error) {
	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// ConfigureTracing installs the global tracer provider when tracing is
// enabled. Cancelling ctx flushes pending spans.
func ConfigureTracing(ctx context.Context, tc *conf.TracingConfig) error {
	var err error
	tracingOnce.Do(func() {
		if !tc.Enabled || tc.Exporter != conf.OpenTelemetryTracing {
			return
		}

		var exporter *otlptrace.Exporter
		exporter, err = newTraceExporter(ctx, tc.ExporterProtocol)
		if err != nil {
			logrus.WithError(err).Error("unable to start trace exporter")
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(serviceResource(tc)),
		)
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		// the batcher stops the exporter
		onShutdown(ctx, "tracing", provider.Shutdown)
		logrus.WithField("protocol", tc.ExporterProtocol).Info("trace exporter started")
	})
	return err
}
