package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/thebtf/procluster/internal/pipeline"

var (
	instrumentsOnce sync.Once
	tracer          trace.Tracer
	stageDuration   metric.Float64Histogram
	runsTotal       metric.Int64Counter
)

// instruments lazily binds to the global OTel providers. Until an SDK is
// installed these are no-ops.
func instruments() {
	instrumentsOnce.Do(func() {
		tracer = otel.Tracer(instrumentationName)
		meter := otel.Meter(instrumentationName)

		var err error
		stageDuration, err = meter.Float64Histogram("procluster.pipeline.stage.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of each clustering stage"))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create stage duration histogram")
		}
		runsTotal, err = meter.Int64Counter("procluster.pipeline.runs",
			metric.WithDescription("Completed and failed pipeline runs"))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create run counter")
		}
	})
}

// stage runs fn inside a span and records its duration.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	instruments()

	ctx, span := tracer.Start(ctx, "pipeline."+name,
		trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if stageDuration != nil {
		stageDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("stage", name)))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	span.SetStatus(codes.Ok, "")

	log.Debug().
		Str("stage", name).
		Dur("elapsed", elapsed).
		Msg("Pipeline stage finished")
	return nil
}

// countRun records the outcome of a run.
func countRun(ctx context.Context, err error) {
	instruments()
	if runsTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
