// Package telemetry holds the OpenTelemetry instruments librarian records.
// Instruments come from the global meter provider, which is a no-op until
// the host installs an SDK. A nil *Metrics records nothing.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/custodia-labs/librarian"

// Metrics holds all application metrics.
type Metrics struct {
	BooksIndexed       metric.Int64Counter
	ChunksEmbedded     metric.Int64Counter
	EmbeddingRetries   metric.Int64Counter
	BreakerTransitions metric.Int64Counter
	EmbeddingLatency   metric.Float64Histogram
	SearchLatency      metric.Float64Histogram
}

// New creates the instruments on the global meter provider.
func New() (*Metrics, error) {
	meter := otel.Meter(meterName)

	booksIndexed, err := meter.Int64Counter(
		"librarian.books.indexed",
		metric.WithDescription("Books resolved by indexing runs, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chunksEmbedded, err := meter.Int64Counter(
		"librarian.chunks.embedded",
		metric.WithDescription("Chunks embedded and committed"),
	)
	if err != nil {
		return nil, err
	}

	embeddingRetries, err := meter.Int64Counter(
		"librarian.embedding.retries",
		metric.WithDescription("Embedding calls retried after a transient failure"),
	)
	if err != nil {
		return nil, err
	}

	breakerTransitions, err := meter.Int64Counter(
		"librarian.embedding.breaker.transitions",
		metric.WithDescription("Embedding circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	embeddingLatency, err := meter.Float64Histogram(
		"librarian.embedding.batch.duration",
		metric.WithDescription("Embedding sub-batch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchLatency, err := meter.Float64Histogram(
		"librarian.search.duration",
		metric.WithDescription("Search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		BooksIndexed:       booksIndexed,
		ChunksEmbedded:     chunksEmbedded,
		EmbeddingRetries:   embeddingRetries,
		BreakerTransitions: breakerTransitions,
		EmbeddingLatency:   embeddingLatency,
		SearchLatency:      searchLatency,
	}, nil
}

// RecordBook records one resolved book. Outcome is done, failed or skipped.
func (m *Metrics) RecordBook(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.BooksIndexed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordChunks records chunks committed for one book.
func (m *Metrics) RecordChunks(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ChunksEmbedded.Add(ctx, int64(n))
}

// RecordRetry records one embedding retry.
func (m *Metrics) RecordRetry(ctx context.Context, model string) {
	if m == nil {
		return
	}
	m.EmbeddingRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("embedding.model", model)))
}

// RecordBreakerState records a breaker transition to state.
func (m *Metrics) RecordBreakerState(name, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", name),
		attribute.String("state", state),
	}
	m.BreakerTransitions.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordEmbedding records the duration of one embedding sub-batch.
func (m *Metrics) RecordEmbedding(ctx context.Context, d time.Duration, size int, ok bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("batch.size", size),
		attribute.Bool("success", ok),
	}
	m.EmbeddingLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSearch records the duration of one search.
func (m *Metrics) RecordSearch(ctx context.Context, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.SearchLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("results", results)))
}
