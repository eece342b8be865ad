package pagination

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/hoistscout/hoistscout-core/internal/browser"
)

// ajaxStrategy detects `[data-ajax-pagination]`/`[data-page-url]`
// markers and otherwise delegates navigation to numbered pagination,
// since most AJAX tender sites still render numbered controls that
// trigger an XHR instead of a full navigation.
type ajaxStrategy struct {
	numbered numberedStrategy
}

func (s *ajaxStrategy) Name() string { return "ajax" }

func (s *ajaxStrategy) Detect(ctx context.Context, run *browser.Run) bool {
	return evalBool(ctx, run, `!!document.querySelector('[data-ajax-pagination], [data-page-url], .ajax-pagination')`)
}

func (s *ajaxStrategy) Advance(ctx context.Context, run *browser.Run, itemCount int) bool {
	if !s.numbered.Advance(ctx, run, itemCount) {
		return false
	}
	waitNetworkIdle(run)
	return true
}

func (s *ajaxStrategy) TotalPages(ctx context.Context, run *browser.Run) *int {
	return s.numbered.TotalPages(ctx, run)
}

// numberedStrategy handles classic `.pagination a` / `?page=N` links.
type numberedStrategy struct{}

const numberedLinkJS = `(function(){
	var sels = ['.pagination a', 'nav[aria-label*="pagination" i] a', 'a[href*="page="]', '.pager a', '.page-numbers a'];
	for (var i = 0; i < sels.length; i++) {
		if (document.querySelectorAll(sels[i]).length > 0) return true;
	}
	return false;
})()`

const clickNextJS = `(function(){
	var sels = ['.pagination a', 'nav[aria-label*="pagination" i] a', 'a[href*="page="]', '.pager a', '.page-numbers a'];
	var patterns = [/^next$/i, /^>$/, /^continue$/i, /^more$/i, /»/];
	for (var i = 0; i < sels.length; i++) {
		var links = document.querySelectorAll(sels[i]);
		for (var j = 0; j < links.length; j++) {
			var text = (links[j].textContent || '').trim();
			var aria = (links[j].getAttribute('aria-label') || '').trim();
			for (var k = 0; k < patterns.length; k++) {
				if (patterns[k].test(text) || patterns[k].test(aria)) {
					if (links[j].hasAttribute('disabled') || links[j].getAttribute('aria-disabled') === 'true') return false;
					links[j].click();
					return true;
				}
			}
		}
	}
	return false;
})()`

const totalPagesJS = `(function(){
	var sels = ['.pagination a', 'nav[aria-label*="pagination" i] a', 'a[href*="page="]', '.pager a', '.page-numbers a'];
	var max = 0;
	for (var i = 0; i < sels.length; i++) {
		var links = document.querySelectorAll(sels[i]);
		for (var j = 0; j < links.length; j++) {
			var n = parseInt((links[j].textContent || '').trim(), 10);
			if (!isNaN(n) && n > max) max = n;
		}
	}
	return max;
})()`

func (s *numberedStrategy) Name() string { return "numbered" }

func (s *numberedStrategy) Detect(ctx context.Context, run *browser.Run) bool {
	return evalBool(ctx, run, numberedLinkJS)
}

func (s *numberedStrategy) Advance(ctx context.Context, run *browser.Run, itemCount int) bool {
	if !evalBool(ctx, run, clickNextJS) {
		return false
	}
	waitNetworkIdle(run)
	return true
}

func (s *numberedStrategy) TotalPages(ctx context.Context, run *browser.Run) *int {
	n := evalInt(ctx, run, totalPagesJS)
	if n <= 0 {
		return nil
	}
	return &n
}

// loadMoreStrategy clicks a "load more"-style button and confirms
// progress by comparing item counts before and after, since the button
// itself rarely changes state (spec.md section 4.6, edge cases).
type loadMoreStrategy struct{}

const loadMoreButtonJS = `(function(){
	var sels = ['.load-more', '.show-more', '[data-load-more]', 'button[class*="load-more" i]'];
	var patterns = /^(load|show|view) more$/i;
	for (var i = 0; i < sels.length; i++) {
		var el = document.querySelector(sels[i]);
		if (el && el.offsetParent !== null) return true;
	}
	var buttons = document.querySelectorAll('button, a');
	for (var j = 0; j < buttons.length; j++) {
		if (patterns.test((buttons[j].textContent || '').trim()) && buttons[j].offsetParent !== null) return true;
	}
	return false;
})()`

const clickLoadMoreJS = `(function(){
	var sels = ['.load-more', '.show-more', '[data-load-more]', 'button[class*="load-more" i]'];
	var patterns = /^(load|show|view) more$/i;
	for (var i = 0; i < sels.length; i++) {
		var el = document.querySelector(sels[i]);
		if (el && el.offsetParent !== null) { el.click(); return true; }
	}
	var buttons = document.querySelectorAll('button, a');
	for (var j = 0; j < buttons.length; j++) {
		if (patterns.test((buttons[j].textContent || '').trim()) && buttons[j].offsetParent !== null) {
			buttons[j].click();
			return true;
		}
	}
	return false;
})()`

const itemCountJS = `(function(){
	var sels = ['.result-item', '.opportunity-item', '.tender-item', 'article', '.list-item', 'tr.data-row'];
	for (var i = 0; i < sels.length; i++) {
		var n = document.querySelectorAll(sels[i]).length;
		if (n > 0) return n;
	}
	return 0;
})()`

func (s *loadMoreStrategy) Name() string { return "load_more" }

func (s *loadMoreStrategy) Detect(ctx context.Context, run *browser.Run) bool {
	return evalBool(ctx, run, loadMoreButtonJS)
}

func (s *loadMoreStrategy) Advance(ctx context.Context, run *browser.Run, itemCount int) bool {
	before := evalInt(ctx, run, itemCountJS)
	if !evalBool(ctx, run, clickLoadMoreJS) {
		return false
	}
	return waitForCondition(run, 10*time.Second, func() bool {
		return evalInt(ctx, run, itemCountJS) > before
	})
}

func (s *loadMoreStrategy) TotalPages(ctx context.Context, run *browser.Run) *int { return nil }

// infiniteScrollStrategy detects a `[data-infinite-scroll]`,
// `.infinite-scroll-container` or `[data-scroll-trigger]` marker (scroll
// event listeners are not inspected), then scrolls and waits for the
// document's scrollHeight to grow or a loading indicator to vanish,
// capped at 10s (spec.md section 4.6, edge cases).
type infiniteScrollStrategy struct{}

const infiniteScrollMarkerJS = `!!document.querySelector('[data-infinite-scroll], .infinite-scroll-container, [data-scroll-trigger]')`

const loadingIndicatorVisibleJS = `(function(){
	var sels = ['.loading', '.spinner', '[data-loading]', '.loader', '.loading-spinner'];
	for (var i = 0; i < sels.length; i++) {
		var el = document.querySelector(sels[i]);
		if (el && el.offsetParent !== null) return true;
	}
	return false;
})()`

func (s *infiniteScrollStrategy) Name() string { return "infinite_scroll" }

func (s *infiniteScrollStrategy) Detect(ctx context.Context, run *browser.Run) bool {
	return evalBool(ctx, run, infiniteScrollMarkerJS)
}

func (s *infiniteScrollStrategy) Advance(ctx context.Context, run *browser.Run, itemCount int) bool {
	before := evalInt(ctx, run, `document.body.scrollHeight`)
	wasLoading := evalBool(ctx, run, loadingIndicatorVisibleJS)

	if err := chromedp.Run(run.Ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
		return false
	}

	return waitForCondition(run, 10*time.Second, func() bool {
		if evalInt(ctx, run, `document.body.scrollHeight`) > before {
			return true
		}
		return wasLoading && !evalBool(ctx, run, loadingIndicatorVisibleJS)
	})
}

func (s *infiniteScrollStrategy) TotalPages(ctx context.Context, run *browser.Run) *int { return nil }

func waitForCondition(run *browser.Run, timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

func waitNetworkIdle(run *browser.Run) {
	chromedp.Run(run.Ctx, chromedp.Sleep(1*time.Second))
}
