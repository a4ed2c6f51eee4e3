package pipeline

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "horse.fit/bookimport/pipeline"

type runMetrics struct {
	runs         metric.Int64Counter
	fetched      metric.Int64Counter
	skippedExact metric.Int64Counter
	skippedFuzzy metric.Int64Counter
	committed    metric.Int64Counter
	chunks       metric.Int64Counter
	duration     metric.Float64Histogram
}

func newRunMetrics(meter metric.Meter) *runMetrics {
	fallback := metricnoop.Meter{}
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	duration, err := meter.Float64Histogram("bookimport.run.duration",
		metric.WithDescription("Import run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		duration, _ = fallback.Float64Histogram("bookimport.run.duration")
	}

	return &runMetrics{
		runs:         counter("bookimport.runs", "Import runs by outcome"),
		fetched:      counter("bookimport.books.fetched", "Candidates returned by the source"),
		skippedExact: counter("bookimport.books.skipped_exact", "Candidates skipped as exact duplicates"),
		skippedFuzzy: counter("bookimport.books.skipped_fuzzy", "Candidates skipped as near duplicates"),
		committed:    counter("bookimport.books.committed", "Books written to the store"),
		chunks:       counter("bookimport.chunks.committed", "Chunk transactions committed"),
		duration:     duration,
	}
}
