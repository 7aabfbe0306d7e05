package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BDNK1/ivrflow/runtime"
)

const instrumentationName = "github.com/BDNK1/ivrflow/runtime/engine"

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	nodeExecutionCounter  metric.Int64Counter
	callOutcomeCounter    metric.Int64Counter
	callDurationHistogram metric.Float64Histogram
)

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func startCallSpan(ctx context.Context, exec *runtime.Execution) (context.Context, trace.Span) {
	return tracer().Start(ctx, "ivr.call", trace.WithAttributes(
		attribute.String("ivr.flow.id", exec.Flow.ID),
		attribute.String("ivr.flow.extension", exec.Flow.Extension),
		attribute.String("ivr.channel.id", exec.Channel.ID()),
		attribute.String("ivr.execution.id", exec.ID),
	))
}

func startNodeSpan(ctx context.Context, node *runtime.Node) (context.Context, trace.Span) {
	return tracer().Start(ctx, "ivr.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", string(node.Type)),
	))
}

func endNodeSpan(ctx context.Context, span trace.Span, node *runtime.Node, next string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("node.next", next))
	span.End()

	if ensureMetrics() != nil {
		return
	}
	nodeExecutionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node.type", string(node.Type)),
		attribute.String("node.outcome", outcome),
	))
}

func endCallSpan(ctx context.Context, span trace.Span, exec *runtime.Execution) {
	span.SetAttributes(
		attribute.String("ivr.call.outcome", string(exec.Outcome)),
		attribute.Int("ivr.call.steps", len(exec.History)),
	)
	if exec.Outcome == runtime.OutcomeError {
		span.SetStatus(codes.Error, "call ended with error")
	}
	span.End()

	if ensureMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ivr.flow.id", exec.Flow.ID),
		attribute.String("ivr.call.outcome", string(exec.Outcome)),
	)
	callOutcomeCounter.Add(ctx, 1, attrs)
	callDurationHistogram.Record(ctx, float64(exec.EndedAt.Sub(exec.StartedAt))/float64(time.Second), attrs)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)

		nodeExecutionCounter, metricsInitErr = meter.Int64Counter(
			"ivr.node.executions_total",
			metric.WithDescription("Flow node executions partitioned by node type and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		callOutcomeCounter, metricsInitErr = meter.Int64Counter(
			"ivr.call.outcomes_total",
			metric.WithDescription("Finished calls partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		callDurationHistogram, metricsInitErr = meter.Float64Histogram(
			"ivr.call.duration",
			metric.WithDescription("Duration of calls handled by the engine"),
			metric.WithUnit("s"),
		)
	})
	return metricsInitErr
}
