// Package tracing configures the Jaeger tracer used to report the spans
// emitted by search, ingestion and authority recomputation.
package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

// Setup creates a Jaeger tracer for serviceName using the JAEGER_*
// environment variables and installs it as the global opentracing tracer.
// If no sampler has been configured, every span is sampled. Callers must
// close the returned io.Closer to flush any buffered spans.
func Setup(serviceName string) (io.Closer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, xerrors.Errorf("tracing: load jaeger config: %w", err)
	}

	if cfg.Sampler == nil || cfg.Sampler.Type == "" {
		cfg.Sampler = &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, xerrors.Errorf("tracing: create tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}
