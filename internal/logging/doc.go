// Package logging wraps zap with context-aware methods for browserlog.
//
// Records and the MCP stdio transport own stdout, so the console output
// of this package always writes to stderr. Optionally a second core ships
// entries through the OpenTelemetry log bridge.
//
// Context correlation:
//
//	ctx = logging.WithExtractionID(ctx, id)
//	ctx = logging.WithTargetID(ctx, target.ID)
//	logger.Info(ctx, "session opened")
//
// adds extraction.id, target.id and, when a span is active, trace_id and
// span_id to every entry.
//
// Sampling is level-aware. Error and above are never sampled.
package logging
