package crawler

import "sync/atomic"

// Stats collects run counters. It is safe for concurrent use.
type Stats struct {
	pagesWalked        atomic.Int64
	itemsDiscovered    atomic.Int64
	itemsClaimed       atomic.Int64
	itemsExtracted     atomic.Int64
	recordsWritten     atomic.Int64
	fetchFailures      atomic.Int64
	extractionFailures atomic.Int64
	sinkFailures       atomic.Int64
	tasksSkipped       atomic.Int64
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	PagesWalked        int64 `json:"pages_walked" yaml:"pages_walked"`
	ItemsDiscovered    int64 `json:"items_discovered" yaml:"items_discovered"`
	ItemsClaimed       int64 `json:"items_claimed" yaml:"items_claimed"`
	ItemsExtracted     int64 `json:"items_extracted" yaml:"items_extracted"`
	RecordsWritten     int64 `json:"records_written" yaml:"records_written"`
	FetchFailures      int64 `json:"fetch_failures" yaml:"fetch_failures"`
	ExtractionFailures int64 `json:"extraction_failures" yaml:"extraction_failures"`
	SinkFailures       int64 `json:"sink_failures" yaml:"sink_failures"`
	TasksSkipped       int64 `json:"tasks_skipped" yaml:"tasks_skipped"`
}

// Summary snapshots the counters.
func (s *Stats) Summary() Summary {
	return Summary{
		PagesWalked:        s.pagesWalked.Load(),
		ItemsDiscovered:    s.itemsDiscovered.Load(),
		ItemsClaimed:       s.itemsClaimed.Load(),
		ItemsExtracted:     s.itemsExtracted.Load(),
		RecordsWritten:     s.recordsWritten.Load(),
		FetchFailures:      s.fetchFailures.Load(),
		ExtractionFailures: s.extractionFailures.Load(),
		SinkFailures:       s.sinkFailures.Load(),
		TasksSkipped:       s.tasksSkipped.Load(),
	}
}

// LogArgs flattens the summary into slog key/value pairs.
func (s Summary) LogArgs() []any {
	return []any{
		"pages_walked", s.PagesWalked,
		"items_discovered", s.ItemsDiscovered,
		"items_claimed", s.ItemsClaimed,
		"items_extracted", s.ItemsExtracted,
		"records_written", s.RecordsWritten,
		"fetch_failures", s.FetchFailures,
		"extraction_failures", s.ExtractionFailures,
		"sink_failures", s.SinkFailures,
		"tasks_skipped", s.TasksSkipped,
	}
}
