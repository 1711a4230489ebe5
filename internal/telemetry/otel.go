// Package telemetry instruments the engine with OpenTelemetry metrics
// and traces. Instrumentation is observability only and never affects
// control flow.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "nuntius"
	tracerName = "nuntius"
)

// Provider implements engine instrumentation over OpenTelemetry.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	evaluations     metric.Int64Counter
	fetches         metric.Int64Counter
	fetchFailures   metric.Int64Counter
	syncCycles      metric.Int64Counter
	syncDuration    metric.Float64Histogram
	callbackFirings metric.Int64Counter
}

// New creates a provider wired to the global OTel meter and tracer.
func New() (*Provider, error) {
	p := &Provider{
		tracer: otel.Tracer(tracerName),
		meter:  otel.Meter(meterName),
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.evaluations, err = p.meter.Int64Counter(
		"nuntius.trigger.evaluations",
		metric.WithDescription("Number of trigger evaluations"),
	)
	if err != nil {
		return err
	}

	p.fetches, err = p.meter.Int64Counter(
		"nuntius.fetch.success",
		metric.WithDescription("Number of successful catalog/segment fetches"),
	)
	if err != nil {
		return err
	}

	p.fetchFailures, err = p.meter.Int64Counter(
		"nuntius.fetch.failure",
		metric.WithDescription("Number of failed catalog/segment fetches"),
	)
	if err != nil {
		return err
	}

	p.syncCycles, err = p.meter.Int64Counter(
		"nuntius.segments.sync",
		metric.WithDescription("Number of segment synchronize cycles"),
	)
	if err != nil {
		return err
	}

	p.syncDuration, err = p.meter.Float64Histogram(
		"nuntius.segments.sync.duration",
		metric.WithDescription("Duration of segment synchronize cycles"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.callbackFirings, err = p.meter.Int64Counter(
		"nuntius.segments.callback.firings",
		metric.WithDescription("Number of segment callback invocations"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordEvaluation counts one trigger evaluation and its verdict.
func (p *Provider) RecordEvaluation(ctx context.Context, candidateID string, matched bool) {
	p.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("candidate.id", candidateID),
		attribute.Bool("matched", matched),
	))
}

// RecordFetch counts one repository fetch.
func (p *Provider) RecordFetch(ctx context.Context, resource string, err error) {
	if err != nil {
		p.fetchFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource", resource),
		))
		return
	}
	p.fetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
	))
}

// RecordSync counts one synchronize cycle with its change count.
func (p *Provider) RecordSync(ctx context.Context, changed int, duration time.Duration) {
	p.syncCycles.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("changed.categories", changed),
	))
	p.syncDuration.Record(ctx, float64(duration.Milliseconds()))
}

// RecordCallbackFiring counts one segment callback invocation.
func (p *Provider) RecordCallbackFiring(ctx context.Context, category string) {
	p.callbackFirings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// StartSpan opens a trace span around an engine operation.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
