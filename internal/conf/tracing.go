package conf

type TracingExporter = string

const (
	OpenTelemetryTracing TracingExporter = "opentelemetry"
)

type TracingConfig struct {
	Enabled  bool            `envconfig:"TRACING_ENABLED" default:"false"`
	Exporter TracingExporter `envconfig:"TRACING_EXPORTER" default:"opentelemetry"`

	// ExporterProtocol is the OTEL_EXPORTER_OTLP_PROTOCOL env variable.
	// Either grpc or http/protobuf.
	ExporterProtocol string `default:"http/protobuf" envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL"`

	// ServiceName is reported on every span.
	ServiceName string `default:"appbackend" envconfig:"OTEL_SERVICE_NAME"`

	Tags map[string]string `envconfig:"TRACING_TAGS"`
}

func (tc *TracingConfig) Validate() error {
	return validateExporterProtocol(tc.ExporterProtocol)
}
