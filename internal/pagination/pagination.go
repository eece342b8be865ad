// Package pagination implements the Pagination Engine: detection and
// traversal of a site's paging mechanism (spec.md section 4.6). The
// engine tries each strategy in a fixed specificity order and drives
// whichever one matches, yielding one page at a time to a caller-
// supplied extraction callback.
package pagination

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/browser"
	"github.com/hoistscout/hoistscout-core/internal/models"
)

const maxConsecutiveEmptyPages = 3

// Strategy is one pagination mechanism. detect reports whether this
// strategy applies to the current page; advance attempts to move to
// the next page, given the current page's item count, reporting
// whether it succeeded; totalPages returns a known page
// count, or nil when the mechanism has none.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, run *browser.Run) bool
	Advance(ctx context.Context, run *browser.Run, itemCount int) bool
	TotalPages(ctx context.Context, run *browser.Run) *int
}

// Page is one yielded page, already navigated to, ready for the
// Extractor to process.
type Page struct {
	Number int
	URL    string
}

// Callback extracts items from the current page and returns how many
// it found, driving the engine's empty-page and stop logic.
type Callback func(ctx context.Context, page Page) (itemCount int, err error)

// Engine drives one of the four detected strategies over a site.
type Engine struct {
	strategies []Strategy
	logger     arbor.ILogger
}

// New builds an Engine with the standard strategy set, tried in
// specificity order: ajax, numbered, load_more, infinite_scroll.
func New(logger arbor.ILogger) *Engine {
	return &Engine{
		strategies: []Strategy{
			&ajaxStrategy{},
			&numberedStrategy{},
			&loadMoreStrategy{},
			&infiniteScrollStrategy{},
		},
		logger: logger,
	}
}

// detect returns the first matching strategy, or nil if none applies
// (single-page site).
func (e *Engine) detect(ctx context.Context, run *browser.Run) Strategy {
	for _, s := range e.strategies {
		if s.Detect(ctx, run) {
			return s
		}
	}
	return nil
}

// Run drives pagination starting from the page currently loaded in
// run, invoking cb once per page. It stops on total-pages-known being
// reached, maxPages, 3 consecutive empty pages, or a revisited URL.
func (e *Engine) Run(ctx context.Context, run *browser.Run, cfg models.PaginationConfig, cb Callback) (int, error) {
	strategy := e.detect(ctx, run)

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	var totalPages *int
	if strategy != nil {
		totalPages = strategy.TotalPages(ctx, run)
		if totalPages != nil && *totalPages > maxPages {
			*totalPages = maxPages
		}
	}

	seenURLs := make(map[string]bool)
	consecutiveEmpty := 0
	totalItems := 0
	pageNum := 1

	for pageNum <= maxPages {
		var currentURL string
		if err := chromedp.Run(run.Ctx, chromedp.Location(&currentURL)); err != nil {
			return totalItems, fmt.Errorf("pagination: reading location: %w", err)
		}
		if seenURLs[currentURL] {
			e.logf("stopping pagination: revisited %s", currentURL)
			break
		}
		seenURLs[currentURL] = true

		count, err := cb(ctx, Page{Number: pageNum, URL: currentURL})
		if err != nil {
			return totalItems, fmt.Errorf("pagination: extracting page %d: %w", pageNum, err)
		}
		totalItems += count

		if count == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= maxConsecutiveEmptyPages {
				e.logf("stopping pagination: %d consecutive empty pages", consecutiveEmpty)
				break
			}
		} else {
			consecutiveEmpty = 0
		}

		if totalPages != nil && pageNum >= *totalPages {
			break
		}
		if strategy == nil {
			break
		}

		if !strategy.Advance(ctx, run, count) {
			e.logf("stopping pagination: %s strategy found no further page", strategy.Name())
			break
		}

		time.Sleep(jitter())
		pageNum++
	}

	return totalItems, nil
}

func jitter() time.Duration {
	return time.Duration(800+rand.Intn(1600)) * time.Millisecond
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func evalBool(ctx context.Context, run *browser.Run, js string) bool {
	var result bool
	if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(js, &result)); err != nil {
		return false
	}
	return result
}

func evalInt(ctx context.Context, run *browser.Run, js string) int {
	var result int
	if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(js, &result)); err != nil {
		return 0
	}
	return result
}
