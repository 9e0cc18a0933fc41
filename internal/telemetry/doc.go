// Package telemetry sets up OpenTelemetry tracing and metrics for browserlog.
//
// Spans cover connection (cdp.Connect), collection (collector.Collect),
// formatting (format.Format) and the whole extraction (extract.Extract).
// Exporters speak OTLP over gRPC or HTTP.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling:
//	    rate: 1.0
//
// Telemetry failures never fail an extraction: the instance degrades to
// the global no-op providers.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
