package extract

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName scopes the extractor's tracer and meter.
const InstrumentationName = "github.com/fyrsmithlabs/browserlog/internal/extract"

// Extraction outcomes recorded on browserlog.extractions.
const (
	outcomeOK      = "ok"
	outcomePartial = "partial"
	outcomeError   = "error"
)

// instruments holds the OTel metrics of the extractor.
type instruments struct {
	extractions metric.Int64Counter
	duration    metric.Float64Histogram
	records     metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &instruments{}
	var err error

	m.extractions, err = meter.Int64Counter(
		"browserlog.extractions",
		metric.WithDescription("Extractions by outcome"),
		metric.WithUnit("{extraction}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"browserlog.extraction.duration",
		metric.WithDescription("Wall time of an extraction including connection"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	m.records, err = meter.Int64Counter(
		"browserlog.records",
		metric.WithDescription("Output records produced"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *instruments) record(ctx context.Context, outcome string, records int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", outcome))
	m.extractions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	if records > 0 {
		m.records.Add(ctx, int64(records))
	}
}
