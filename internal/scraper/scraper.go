// Package scraper implements the Scrape Runner: the single-job
// workflow that composes the Compliance Gate, Auth Engine, Session
// Store, Pagination Engine, Rate Limiter, Extractor, and Document
// Processor into one run (spec.md section 4.9).
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/auth"
	"github.com/hoistscout/hoistscout-core/internal/browser"
	"github.com/hoistscout/hoistscout-core/internal/compliance"
	"github.com/hoistscout/hoistscout-core/internal/documents"
	"github.com/hoistscout/hoistscout-core/internal/extractor"
	"github.com/hoistscout/hoistscout-core/internal/models"
	"github.com/hoistscout/hoistscout-core/internal/pagination"
	"github.com/hoistscout/hoistscout-core/internal/queue"
	"github.com/hoistscout/hoistscout-core/internal/ratelimit"
	"github.com/hoistscout/hoistscout-core/internal/session"
	"github.com/hoistscout/hoistscout-core/internal/vault"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrLegalBlocked is returned when the Compliance Gate disallows a Site.
type ErrLegalBlocked struct {
	Domain string
}

func (e *ErrLegalBlocked) Error() string {
	return fmt.Sprintf("site %s blocked by compliance gate", e.Domain)
}

// ErrCancelled is returned when a run observes its job's cancel flag at
// a pagination checkpoint (spec.md section 4.10: cancel from running
// sets a flag observed at safe checkpoints). It carries the partial
// progress gathered up to that checkpoint so the caller can persist
// stats on the cancelled job instead of discarding them.
type ErrCancelled struct {
	JobID int64
	Pages int
	Items int
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("job %d cancelled after %d pages", e.JobID, e.Pages)
}

// SiteLoader and JobLoader decouple the Scrape Runner from a concrete
// storage package, so it can be tested without a live database.
type SiteLoader interface {
	Get(ctx context.Context, id int64) (*models.Site, error)
	MarkLegalBlocked(ctx context.Context, id int64) error
}

// Persister commits the run's results in a single transaction.
type Persister interface {
	PersistBatch(ctx context.Context, opportunities []models.Opportunity, documentsByURL map[string][]models.Document) error
}

// Runner executes one Job end to end.
type Runner struct {
	sites       SiteLoader
	persister   Persister
	vault       *vault.Vault
	compliance  *compliance.Gate
	auth        *auth.Engine
	sessions    *session.Store
	rateLimiter *ratelimit.Limiter
	pagination  *pagination.Engine
	extractor   *extractor.Extractor
	documents   *documents.Processor
	browsers    *browser.Factory
	queue       queue.Queue
	logger      arbor.ILogger
}

// Config bundles the Runner's collaborators.
type Config struct {
	Sites       SiteLoader
	Persister   Persister
	Vault       *vault.Vault
	Compliance  *compliance.Gate
	Auth        *auth.Engine
	Sessions    *session.Store
	RateLimiter *ratelimit.Limiter
	Pagination  *pagination.Engine
	Extractor   *extractor.Extractor
	Documents   *documents.Processor
	Browsers    *browser.Factory
	Queue       queue.Queue
	Logger      arbor.ILogger
}

// New builds a Runner from its collaborators.
func New(cfg Config) *Runner {
	return &Runner{
		sites:       cfg.Sites,
		persister:   cfg.Persister,
		vault:       cfg.Vault,
		compliance:  cfg.Compliance,
		auth:        cfg.Auth,
		sessions:    cfg.Sessions,
		rateLimiter: cfg.RateLimiter,
		pagination:  cfg.Pagination,
		extractor:   cfg.Extractor,
		documents:   cfg.Documents,
		browsers:    cfg.Browsers,
		queue:       cfg.Queue,
		logger:      cfg.Logger,
	}
}

// Outcome summarizes one completed run, feeding Job.Stats.
type Outcome struct {
	Pages    int
	Items    int
	PDFs     int
	Duration time.Duration
}

// Run executes the Scrape Runner workflow for one job against siteID,
// per spec.md section 4.9's numbered steps.
func (r *Runner) Run(ctx context.Context, jobID, siteID int64) (*Outcome, error) {
	start := time.Now()
	r.logf("job %d: starting run against site %d", jobID, siteID)

	site, err := r.sites.Get(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("scraper: loading site %d: %w", siteID, err)
	}

	verdict, err := r.compliance.Evaluate(ctx, site.URL)
	if err != nil {
		return nil, fmt.Errorf("scraper: compliance gate: %w", err)
	}
	if !verdict.Allowed {
		r.logf("job %d: compliance gate blocked %s", jobID, verdict.Domain)
		if err := r.sites.MarkLegalBlocked(ctx, siteID); err != nil {
			r.logf("job %d: marking site %d legal_blocked: %v", jobID, siteID, err)
		}
		return nil, &ErrLegalBlocked{Domain: verdict.Domain}
	}
	r.rateLimiter.SetDomainDelay(verdict.Domain, crawlDelayFor(verdict))

	creds, err := r.decryptCredentials(site)
	if err != nil {
		return nil, fmt.Errorf("scraper: decrypting credentials: %w", err)
	}
	defer creds.Zero()

	cfg, err := site.Config()
	if err != nil {
		return nil, fmt.Errorf("scraper: parsing site config: %w", err)
	}

	run, err := r.browsers.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("scraper: acquiring browser: %w", err)
	}
	defer run.Close()

	if err := r.establishSession(ctx, run, site, cfg.Auth, *creds); err != nil {
		return nil, fmt.Errorf("scraper: authenticating: %w", err)
	}

	if err := chromedp.Run(run.Ctx, chromedp.Navigate(site.URL)); err != nil {
		return nil, fmt.Errorf("scraper: navigating to start url: %w", err)
	}

	var allOpportunities []models.Opportunity
	// pageDocumentURLs collects, per opportunity source_url, the document
	// URLs found on the same page it was extracted from: the extraction
	// contract surfaces documents at page granularity (spec.md section
	// 4.7), while storage owns them per opportunity, so every opportunity
	// on a page inherits that page's documents.
	pageDocumentURLs := make(map[string][]string)
	var allDocumentURLs []string
	pages := 0

	itemCount, err := r.pagination.Run(ctx, run, cfg.Pagination, func(ctx context.Context, page pagination.Page) (int, error) {
		if cancelled, _ := r.checkCancelled(ctx, jobID); cancelled {
			return 0, &ErrCancelled{JobID: jobID, Pages: pages, Items: len(allOpportunities)}
		}

		if err := r.rateLimiter.Wait(ctx, page.URL); err != nil {
			return 0, fmt.Errorf("rate limit: %w", err)
		}

		html, err := pageHTML(run)
		if err != nil {
			return 0, fmt.Errorf("reading page html: %w", err)
		}

		extracted, err := r.extractor.Extract(ctx, siteID, page.URL, html, cfg.Selectors, cfg.ExtractionHints)
		if err != nil {
			return 0, err
		}

		allOpportunities = append(allOpportunities, extracted.Opportunities...)
		allDocumentURLs = append(allDocumentURLs, extracted.DocumentURLs...)
		for _, opp := range extracted.Opportunities {
			pageDocumentURLs[opp.SourceURL] = append(pageDocumentURLs[opp.SourceURL], extracted.DocumentURLs...)
		}
		pages++
		if r.queue != nil {
			if err := r.queue.SaveProgress(ctx, models.JobProgress{
				JobID:     jobID,
				Pages:     pages,
				Items:     len(allOpportunities),
				UpdatedAt: time.Now(),
			}); err != nil {
				r.logf("job %d: saving progress: %v", jobID, err)
			}
		}
		return len(extracted.Opportunities), nil
	})
	if err != nil {
		var cancelled *ErrCancelled
		if errors.As(err, &cancelled) {
			r.logf("job %d: cancelled after %d pages", jobID, cancelled.Pages)
			return &Outcome{
				Pages:    cancelled.Pages,
				Items:    cancelled.Items,
				Duration: time.Since(start),
			}, cancelled
		}
		return nil, fmt.Errorf("scraper: pagination: %w", err)
	}
	_ = itemCount

	allOpportunities = dedupeBySourceURL(allOpportunities)
	documentURLs := dedupeStrings(allDocumentURLs)

	processedByURL := make(map[string]models.Document)
	if len(documentURLs) > 0 && r.documents != nil {
		processed := r.documents.ProcessAll(ctx, 0, documentURLs)
		for i, doc := range processed {
			processedByURL[documentURLs[i]] = doc
		}
	}

	documentsByURL := make(map[string][]models.Document)
	for _, opp := range allOpportunities {
		for _, url := range dedupeStrings(pageDocumentURLs[opp.SourceURL]) {
			if doc, ok := processedByURL[url]; ok {
				documentsByURL[opp.SourceURL] = append(documentsByURL[opp.SourceURL], doc)
			}
		}
	}

	if err := r.persister.PersistBatch(ctx, allOpportunities, documentsByURL); err != nil {
		return nil, fmt.Errorf("scraper: persisting batch: %w", err)
	}

	r.logf("job %d: done, %d pages, %d opportunities, %d documents", jobID, pages, len(allOpportunities), len(documentURLs))

	return &Outcome{
		Pages:    pages,
		Items:    len(allOpportunities),
		PDFs:     len(documentURLs),
		Duration: time.Since(start),
	}, nil
}

// Default per-domain crawl delays, per spec.md section 4.3: government
// domains get a more conservative default, and a robots.txt Crawl-delay
// directive only ever widens the gap, never narrows it.
const (
	defaultCrawlDelay    = 2 * time.Second
	governmentCrawlDelay = 3 * time.Second
)

// crawlDelayFor derives the Rate Limiter delay to apply to a verdict's
// domain: the government-domain default or the general default,
// whichever the robots.txt Crawl-delay directive (if present) exceeds.
func crawlDelayFor(verdict *models.ComplianceVerdict) time.Duration {
	delay := defaultCrawlDelay
	for _, precaution := range verdict.RequiredPrecautions {
		if precaution == "conservative_rate_limit" {
			delay = governmentCrawlDelay
			break
		}
	}
	if verdict.RobotsCrawlDelayMs != nil {
		if robots := time.Duration(*verdict.RobotsCrawlDelayMs) * time.Millisecond; robots > delay {
			delay = robots
		}
	}
	return delay
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (r *Runner) decryptCredentials(site *models.Site) (*models.Credentials, error) {
	if len(site.EncryptedCredentials) == 0 {
		return &models.Credentials{}, nil
	}
	plaintext, err := r.vault.Open(site.EncryptedCredentials)
	if err != nil {
		return nil, err
	}
	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshaling credentials: %w", err)
	}
	return &creds, nil
}

func (r *Runner) establishSession(ctx context.Context, run *browser.Run, site *models.Site, authCfg models.AuthConfig, creds models.Credentials) error {
	if authCfg.Type == models.AuthTypeNone {
		return nil
	}

	state, err := r.sessions.Load(ctx, site.ID)
	if err == nil && !state.Expired(time.Now()) {
		return applySession(run, state)
	}

	outcome, err := r.auth.Authenticate(ctx, run, site.URL, authCfg, creds)
	if err != nil {
		return err
	}
	if !outcome.OK {
		return fmt.Errorf("authentication did not succeed: %s", outcome.Error)
	}

	newState := &models.BrowserState{
		SiteID:     site.ID,
		Cookies:    outcome.Cookies,
		CapturedAt: time.Now(),
	}
	return r.sessions.Save(ctx, newState)
}

func applySession(run *browser.Run, state *models.BrowserState) error {
	cookies := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		cookies = append(cookies, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return chromedp.Run(run.Ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(cookies).Do(ctx)
	}))
}

func (r *Runner) checkCancelled(ctx context.Context, jobID int64) (bool, error) {
	if r.queue == nil {
		return false, nil
	}
	return r.queue.IsCancelled(ctx, jobID)
}

func pageHTML(run *browser.Run) (string, error) {
	var html string
	if err := chromedp.Run(run.Ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

func dedupeBySourceURL(opportunities []models.Opportunity) []models.Opportunity {
	seen := make(map[string]bool)
	out := make([]models.Opportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if opp.Title == "" {
			continue
		}
		if seen[opp.SourceURL] {
			continue
		}
		seen[opp.SourceURL] = true
		out = append(out, opp)
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
