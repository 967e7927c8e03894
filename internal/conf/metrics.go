package conf

import "fmt"

type MetricsExporter = string

const (
	Prometheus           MetricsExporter = "prometheus"
	OpenTelemetryMetrics MetricsExporter = "opentelemetry"
)

type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"false"`

	Exporter MetricsExporter `envconfig:"METRICS_EXPORTER" default:"prometheus"`

	// ExporterProtocol is the OTEL_EXPORTER_OTLP_PROTOCOL env variable,
	// only used when exporter is opentelemetry.
	ExporterProtocol string `default:"http/protobuf" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`

	PrometheusListenHost string `default:"0.0.0.0" envconfig:"OTEL_EXPORTER_PROMETHEUS_HOST"`
	PrometheusListenPort string `default:"9100" envconfig:"OTEL_EXPORTER_PROMETHEUS_PORT"`
}

func (mc MetricsConfig) Validate() error {
	switch mc.Exporter {
	case Prometheus:
		return nil
	case OpenTelemetryMetrics:
		return validateExporterProtocol(mc.ExporterProtocol)
	default:
		return fmt.Errorf("conf: unknown metrics exporter %q", mc.Exporter)
	}
}

func validateExporterProtocol(protocol string) error {
	switch protocol {
	case "grpc", "http/protobuf":
		return nil
	default:
		return fmt.Errorf("conf: unsupported OTLP protocol %q", protocol)
	}
}
