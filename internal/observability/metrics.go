package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	otelruntimemetrics "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/funcsea/appbackend/internal/conf"
)

const instrumentationName = "appbackend"

var metricsOnce sync.Once

func Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return otel.Meter(name, opts...)
}

// ObtainMetricCounter registers a counter on the application meter. It is
// meant for package-level vars, so a registration error panics.
func ObtainMetricCounter(name, desc string) metric.Int64Counter {
	counter, err := Meter(instrumentationName).Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		panic(err)
	}
	return counter
}

func newMetricReader(ctx context.Context, mc *conf.MetricsConfig) (sdkmetric.Reader, error) {
	switch mc.Exporter {
	case conf.Prometheus:
		return prometheus.New()
	case conf.OpenTelemetryMetrics:
		var (
			exporter sdkmetric.Exporter
			err      error
		)
		switch mc.ExporterProtocol {
		case "grpc":
			exporter, err = otlpmetricgrpc.New(ctx)
		case "http/protobuf":
			exporter, err = otlpmetrichttp.New(ctx)
		default:
			return nil, fmt.Errorf("unsupported OTLP protocol %q", mc.ExporterProtocol)
		}
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exporter), nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", mc.Exporter)
	}
}

// servePrometheus exposes /metrics on its own listener until ctx is done.
func servePrometheus(ctx context.Context, mc *conf.MetricsConfig) {
	addr := net.JoinHostPort(mc.PrometheusListenHost, mc.PrometheusListenPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 2 * time.Second,
	}
	onShutdown(ctx, "prometheus", server.Shutdown)

	go func() {
		logrus.WithField("addr", addr).Info("prometheus exporter listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("addr", addr).Error("prometheus exporter stopped")
		}
	}()
}

// ConfigureMetrics installs the global meter provider when metrics are
// enabled and always starts Go runtime metrics and the running gauge.
func ConfigureMetrics(ctx context.Context, mc *conf.MetricsConfig) error {
	var err error
	metricsOnce.Do(func() {
		if mc.Enabled {
			var reader sdkmetric.Reader
			reader, err = newMetricReader(ctx, mc)
			if err != nil {
				logrus.WithError(err).Error("unable to start metrics exporter")
				return
			}

			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			otel.SetMeterProvider(provider)
			onShutdown(ctx, "metrics", provider.Shutdown)

			if mc.Exporter == conf.Prometheus {
				servePrometheus(ctx, mc)
			}
		}

		if rerr := otelruntimemetrics.Start(otelruntimemetrics.WithMinimumReadMemStatsInterval(time.Second)); rerr != nil {
			logrus.WithError(rerr).Warn("unable to start runtime metrics")
		}

		_, gerr := Meter(instrumentationName).Int64ObservableGauge(
			"appbackend_running",
			metric.WithDescription("Always 1 while the server is up."),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(1)
				return nil
			}),
		)
		if gerr != nil {
			logrus.WithError(gerr).Warn("unable to register appbackend_running gauge")
		}
	})
	return err
}
