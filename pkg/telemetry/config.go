package telemetry

type Config struct {
	// Use OTLP exporter. Has precedence over the Jaeger configuration.
	OTLP OTLP `yaml:"otlp"`
	// The URL to the Jaeger collector.
	JaegerURL string `yaml:"jaegerUrl"`
	// ID of the service instance. A random one is generated if empty.
	ID string `yaml:"id"`
}

type OTLP struct {
	// The endpoint of the OTLP collector, without any URL path.
	Host string `yaml:"host"`
	// Use HTTPS instead of HTTP.
	Secure bool `yaml:"secure"`
}

// Whether any exporter is configured.
func (c Config) Enabled() bool {
	return c.OTLP.Host != "" || c.JaegerURL != ""
}
