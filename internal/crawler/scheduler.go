package crawler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/catalogcrawl/internal/extractor"
	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/fetcher"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Task is one claimed item URL waiting to be fetched and extracted.
type Task struct {
	URL      string
	Site     *site.Config
	Category string
}

// Extractor turns an item page into records.
type Extractor interface {
	Extract(body []byte, cfg *site.Config, pageURL, category string) ([]extractor.Record, error)
}

// Sink receives records along with the name of the site they came from.
// Accept is called from many workers at once.
type Sink interface {
	Accept(siteName string, rec extractor.Record) error
}

// Config holds scheduler configuration.
type Config struct {
	Workers   int // concurrent item fetches
	Walkers   int // concurrent category walks
	QueueSize int // buffered tasks between walkers and workers
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		Walkers:   4,
		QueueSize: 8,
	}
}

// Scheduler drives walkers, the deduplicator and a bounded worker pool.
type Scheduler struct {
	fetcher   fetcher.Fetcher
	extractor Extractor
	sink      Sink
	config    Config
}

// New creates a new Scheduler.
func New(f fetcher.Fetcher, ext Extractor, sink Sink, cfg Config) *Scheduler {
	defaults := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Walkers < 1 {
		cfg.Walkers = defaults.Walkers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 2
	}
	return &Scheduler{
		fetcher:   f,
		extractor: ext,
		sink:      sink,
		config:    cfg,
	}
}

// Run crawls every category of every site and blocks until all claimed
// items have been processed. Cancelling ctx stops the walkers and the
// dispatch of queued tasks; fetches already in flight are allowed to finish
// so no partial record is emitted. The returned error is ctx's error, if
// any; per-item failures are only counted.
func (s *Scheduler) Run(ctx context.Context, sites []*site.Config) (Summary, error) {
	stats := &Stats{}
	dedup := NewDeduplicator()
	limiters := newLimiters(sites)
	tasks := make(chan Task, s.config.QueueSize)

	logger.Debug("scheduler starting",
		"sites", len(sites),
		"workers", s.config.Workers,
		"walkers", s.config.Walkers,
		"queue_size", s.config.QueueSize)

	var wg sync.WaitGroup
	for range s.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, tasks, limiters, stats)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Walkers)
	for _, cfg := range sites {
		for _, cat := range cfg.Categories() {
			g.Go(func() error {
				walker := NewWalker(s.fetcher, WithLimiter(limiters[cfg]), WithStats(stats))
				for link := range walker.Walk(gctx, cfg, cat) {
					if !dedup.Claim(link) {
						logger.Debug("item already claimed", "url", link)
						continue
					}
					stats.itemsClaimed.Add(1)
					select {
					case tasks <- Task{URL: link, Site: cfg, Category: cat.Name}:
					case <-gctx.Done():
						return nil
					}
				}
				logger.Debug("category walk finished", "site", cfg.Name(), "category", cat.Name)
				return nil
			})
		}
	}

	_ = g.Wait() // walkers log their own failures and never return errors
	close(tasks)
	logger.Debug("discovery finished", "unique_items", dedup.Len())
	wg.Wait()

	summary := stats.Summary()
	logger.Info("crawl finished", summary.LogArgs()...)
	return summary, ctx.Err()
}

func (s *Scheduler) work(ctx context.Context, tasks <-chan Task, limiters map[*site.Config]*rate.Limiter, stats *Stats) {
	for task := range tasks {
		if ctx.Err() != nil {
			stats.tasksSkipped.Add(1)
			continue
		}
		if l := limiters[task.Site]; l != nil {
			if err := l.Wait(ctx); err != nil {
				stats.tasksSkipped.Add(1)
				continue
			}
		}
		s.process(context.WithoutCancel(ctx), task, stats)
	}
}

func (s *Scheduler) process(ctx context.Context, task Task, stats *Stats) {
	log := logger.With("site", task.Site.Name(), "category", task.Category, "url", task.URL)

	page, err := s.fetcher.Fetch(ctx, task.URL, task.Site.Auth())
	if err != nil {
		stats.fetchFailures.Add(1)
		log.Warn("item fetch failed", "error", err)
		return
	}

	records, err := s.extractor.Extract(page.Body, task.Site, task.URL, task.Category)
	if err != nil {
		stats.extractionFailures.Add(1)
		log.Warn("item extraction failed", "error", err)
		return
	}
	stats.itemsExtracted.Add(1)

	for _, rec := range records {
		if err := s.sink.Accept(task.Site.Name(), rec); err != nil {
			stats.sinkFailures.Add(1)
			log.Error("sink rejected record", "error", err)
			continue
		}
		stats.recordsWritten.Add(1)
	}
	log.Debug("item processed", "records", len(records), "attempts", page.Attempts)
}

// newLimiters builds one limiter per rate-limited site, shared by that
// site's walkers and workers.
func newLimiters(sites []*site.Config) map[*site.Config]*rate.Limiter {
	limiters := make(map[*site.Config]*rate.Limiter, len(sites))
	for _, cfg := range sites {
		if rps := cfg.RequestsPerSecond(); rps > 0 {
			limiters[cfg] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	return limiters
}
