package tracing

import (
	"fmt"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Host        string
	Port        int
}

// InitTracer ставит глобальный jaeger трейсер. При Enabled=false остаётся noop
// и спаны exchange-клиента ничего не стоят.
func InitTracer(conf Config) (opentracing.Tracer, func() error, error) {
	if !conf.Enabled {
		return opentracing.NoopTracer{}, func() error { return nil }, nil
	}

	name := conf.ServiceName
	if name == "" {
		name = "default"
	}
	cfg := &jCfg.Configuration{
		ServiceName: name,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	jMetricsFactory := metrics.NullFactory
	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(jMetricsFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closer.Close, nil
}
