package crawler

import (
	"context"
	"iter"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/fetcher"
	"github.com/jmylchreest/catalogcrawl/pkg/selector"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Walker pages through a category listing and yields item URLs.
type Walker struct {
	fetcher fetcher.Fetcher
	limiter *rate.Limiter
	stats   *Stats
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithLimiter throttles listing fetches. A nil limiter disables throttling.
func WithLimiter(l *rate.Limiter) WalkerOption {
	return func(w *Walker) {
		w.limiter = l
	}
}

// WithStats records page and discovery counts into s.
func WithStats(s *Stats) WalkerOption {
	return func(w *Walker) {
		w.stats = s
	}
}

// NewWalker creates a walker that fetches listing pages with f.
func NewWalker(f fetcher.Fetcher, opts ...WalkerOption) *Walker {
	w := &Walker{fetcher: f, stats: &Stats{}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk lazily yields the absolute item URLs of one category, page by page.
// Pages are fetched in increasing order and only when the consumer asks for
// more. The walk ends when a page lists no items, when there is no next-page
// link, when max_pages is reached, when a page repeats only links already
// seen, or when a listing fetch fails terminally.
func (w *Walker) Walk(ctx context.Context, cfg *site.Config, cat site.Category) iter.Seq[string] {
	return func(yield func(string) bool) {
		log := logger.With("site", cfg.Name(), "category", cat.Name)
		seen := make(map[string]bool)

		for page := 1; ; page++ {
			if limit := cfg.MaxPages(); limit > 0 && page > limit {
				log.Debug("walker reached max pages", "max_pages", limit)
				return
			}
			if ctx.Err() != nil {
				return
			}

			pageURL, err := cfg.PageURL(cat, page)
			if err != nil {
				log.Warn("cannot build listing URL", "page", page, "error", err)
				return
			}

			doc, ok := w.fetchListing(ctx, log, cfg, pageURL)
			if !ok {
				return
			}

			links := w.links(cfg, doc, pageURL)
			if len(links) == 0 {
				log.Debug("walker found no items, stopping", "url", pageURL)
				return
			}

			fresh := 0
			for _, link := range links {
				if !seen[link] {
					fresh++
				}
			}
			if fresh == 0 {
				log.Debug("walker page repeats earlier items, stopping", "url", pageURL)
				return
			}

			log.Info("listing page", "page", page, "items", len(links))
			for _, link := range links {
				seen[link] = true
				w.stats.itemsDiscovered.Add(1)
				if !yield(link) {
					return
				}
			}

			next := cfg.NextPage()
			if next == nil {
				return
			}
			if _, found := next.First(doc.Root()); !found {
				log.Debug("walker found no next page link", "url", pageURL)
				return
			}
		}
	}
}

func (w *Walker) fetchListing(ctx context.Context, log *slog.Logger, cfg *site.Config, pageURL string) (*selector.Document, bool) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, false
		}
	}

	page, err := w.fetcher.Fetch(ctx, pageURL, cfg.Auth())
	if err != nil {
		if ctx.Err() == nil {
			w.stats.fetchFailures.Add(1)
			log.Warn("listing fetch failed", "url", pageURL, "error", err)
		}
		return nil, false
	}
	w.stats.pagesWalked.Add(1)

	doc, err := selector.Parse(page.Body)
	if err != nil {
		log.Warn("listing page unparseable", "url", pageURL, "error", err)
		return nil, false
	}
	return doc, true
}

func (w *Walker) links(cfg *site.Config, doc *selector.Document, pageURL string) []string {
	nodes := cfg.ItemLink().All(doc.Root())
	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		href := n.Href()
		if href == "" {
			continue
		}
		link, err := cfg.ResolveFrom(pageURL, href)
		if err != nil {
			logger.Debug("walker skipping unresolvable link", "href", href, "error", err)
			continue
		}
		links = append(links, link)
	}
	return links
}
