// Package browser creates isolated chromedp browser contexts for Scrape
// Runner jobs. Unlike a pooled allocator shared across jobs, every run
// gets a freshly launched browser with its own profile; concurrency is
// bounded by a semaphore instead of instance reuse, so one job's cookies,
// localStorage and navigation history can never leak into another's.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Config bounds a Factory's resource usage and anti-detection posture.
type Config struct {
	MaxConcurrency int           // max simultaneous browser contexts, default 4
	Headless       bool          // false (the zero value) launches a visible browser window
	RequestTimeout time.Duration // bounds the startup probe in Acquire, default 30s
	ProxyPool      []string      // optional "host:port" entries, rotated per run
}

// Factory hands out one fresh browser context per scrape run.
type Factory struct {
	cfg     Config
	logger  arbor.ILogger
	sem     chan struct{}
	proxies *proxyPool
}

// NewFactory builds a Factory bounded to cfg.MaxConcurrency concurrent
// browser contexts (default 4 when unset).
func NewFactory(cfg Config, logger arbor.ILogger) *Factory {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Factory{
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		proxies: newProxyPool(cfg.ProxyPool),
	}
}

// Run is a live browser context handed to one job. Close releases the
// underlying chromedp allocator and frees the concurrency slot.
type Run struct {
	Ctx      context.Context
	Cancel   context.CancelFunc
	Proxy    string
	factory  *Factory
	released bool
}

// Close tears down the browser context and returns its concurrency slot.
func (r *Run) Close() {
	if r.released {
		return
	}
	r.released = true
	r.Cancel()
	<-r.factory.sem
	if r.Proxy != "" {
		r.factory.proxies.release(r.Proxy)
	}
}

// MarkProxyUnhealthy records that r.Proxy misbehaved during this run so
// future runs skip it until it has cooled down.
func (r *Run) MarkProxyUnhealthy() {
	if r.Proxy != "" {
		r.factory.proxies.markUnhealthy(r.Proxy)
	}
}

// Acquire blocks until a concurrency slot is free, then launches a fresh
// browser with randomized fingerprinting surface and anti-detection init
// scripts applied. The caller must call Run.Close when done.
func (f *Factory) Acquire(ctx context.Context) (*Run, error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	proxy := f.proxies.acquire()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(randomUserAgent()),
		chromedp.WindowSize(randomViewport()),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, f.cfg.RequestTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), stealthInit()); err != nil {
		cancel()
		<-f.sem
		if proxy != "" {
			f.proxies.markUnhealthy(proxy)
		}
		return nil, fmt.Errorf("browser context failed startup: %w", err)
	}

	f.logger.Debug().Str("proxy", proxy).Msg("acquired browser context")

	return &Run{Ctx: browserCtx, Cancel: cancel, Proxy: proxy, factory: f}, nil
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

var viewports = [][2]int{
	{1920, 1080}, {1536, 864}, {1440, 900}, {1366, 768}, {1280, 800},
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func randomViewport() (int, int) {
	v := viewports[rand.Intn(len(viewports))]
	return v[0], v[1]
}

// stealthInit removes the most common automation fingerprints: the
// webdriver flag, an empty navigator.plugins/languages array, and the
// absence of window.chrome. This is a baseline only, not a guarantee
// against sophisticated bot-detection services.
func stealthInit() chromedp.Action {
	const script = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = window.chrome || { runtime: {} };
`
	return chromedp.Evaluate(script, nil)
}
