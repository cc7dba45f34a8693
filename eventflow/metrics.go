package eventflow

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type registryMetrics struct {
	eventsPublished   metric.Int64Counter
	eventsDuplicate   metric.Int64Counter
	entriesProcessed  metric.Int64Counter
	entriesFailed     metric.Int64Counter
	entriesDeadLetter metric.Int64Counter
	claimBatchSize    metric.Int64Gauge
	processingLatency metric.Float64Histogram
}

func newRegistryMetrics(provider metric.MeterProvider) (registryMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("eventflow.registry")

	var (
		metrics registryMetrics
		err     error
	)

	metrics.eventsPublished, err = meter.Int64Counter(
		"eventflow.events.published",
		metric.WithDescription("Number of workflow events accepted for delivery"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.events.published counter: %w", err)
	}

	metrics.eventsDuplicate, err = meter.Int64Counter(
		"eventflow.events.duplicate",
		metric.WithDescription("Number of publishes deduplicated by event id"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.events.duplicate counter: %w", err)
	}

	metrics.entriesProcessed, err = meter.Int64Counter(
		"eventflow.outbox.processed",
		metric.WithDescription("Number of outbox entries finalized as processed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.outbox.processed counter: %w", err)
	}

	metrics.entriesFailed, err = meter.Int64Counter(
		"eventflow.outbox.failed",
		metric.WithDescription("Number of outbox entries marked failed for retry"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.outbox.failed counter: %w", err)
	}

	metrics.entriesDeadLetter, err = meter.Int64Counter(
		"eventflow.outbox.dead_letter",
		metric.WithDescription("Number of outbox entries dead-lettered"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.outbox.dead_letter counter: %w", err)
	}

	metrics.claimBatchSize, err = meter.Int64Gauge(
		"eventflow.outbox.claim_batch",
		metric.WithDescription("Number of outbox entries claimed in one batch"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.outbox.claim_batch gauge: %w", err)
	}

	metrics.processingLatency, err = meter.Float64Histogram(
		"eventflow.outbox.processing_latency",
		metric.WithDescription("Time taken to process one outbox entry"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return registryMetrics{}, fmt.Errorf("create eventflow.outbox.processing_latency histogram: %w", err)
	}

	return metrics, nil
}
