// Package tracing provides OpenTelemetry tracing for the quota service.
//
// Spans cover admin HTTP requests, journal snapshots, configuration
// reloads and simulation runs. The quota engine itself is not traced:
// acquisitions are too frequent and too cheap to warrant a span each.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    exporter: otlp
//	    endpoint: "localhost:4317"
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Samplers are parent-based: a request that arrives with a sampled
// traceparent header is always recorded.
//
// # Usage
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "config.reload")
//	err = apply(ctx)
//	tracing.End(span, err)
package tracing
