package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder applies probability sampling while forcing excluded
// endpoints (health probes, debug routes) to never be sampled.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability sdktrace.Sampler
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints:   endpoints,
		probability: sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements the sampler interface. It checks the span name
// against the excluded endpoints before delegating to ratio sampling.
func (ee endpointExcluder) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, exists := ee.endpoints[params.Name]; exists {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	return ee.probability.ShouldSample(params)
}

// Description implements the sampler interface.
func (ee endpointExcluder) Description() string {
	return "endpointExcluder"
}
