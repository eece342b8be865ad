// Package compliance implements the Compliance Gate: before a Scrape
// Runner touches a site, it checks robots.txt, scans for an explicit
// terms-of-service prohibition, probes for an official API, and applies
// government-domain heuristics, producing a ComplianceVerdict that is
// cached per domain for 24h (spec.md section 4.2).
package compliance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/redis/go-redis/v9"
	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/common"
	"github.com/hoistscout/hoistscout-core/internal/models"
)

// ErrComplianceViolation is returned when a verdict computed mid-run
// inverts an earlier allow decision for the same domain.
type ErrComplianceViolation struct {
	Domain string
}

func (e *ErrComplianceViolation) Error() string {
	return fmt.Sprintf("compliance verdict for %s inverted mid-run", e.Domain)
}

var termsPaths = []string{
	"/terms", "/terms-of-use", "/terms-of-service",
	"/legal", "/conditions-of-use",
}

var apiPaths = []string{"/api", "/swagger", "/api-docs", "/swagger.json"}

// Gate evaluates and caches ComplianceVerdicts.
type Gate struct {
	cfg        common.ComplianceConfig
	httpClient *http.Client
	redis      *redis.Client
	logger     arbor.ILogger
}

// New builds a Gate. redisClient may be nil, in which case verdicts are
// computed fresh every call (no caching).
func New(cfg common.ComplianceConfig, redisClient *redis.Client, logger arbor.ILogger) *Gate {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gate{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		redis:      redisClient,
		logger:     logger,
	}
}

func cacheKey(domain string) string {
	return fmt.Sprintf("hoistscout:compliance:%s", domain)
}

// Evaluate returns the cached verdict for siteURL's domain if still
// fresh, else computes and caches a new one.
func (g *Gate) Evaluate(ctx context.Context, siteURL string) (*models.ComplianceVerdict, error) {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parsing site url %q: %w", siteURL, err)
	}
	domain := u.Hostname()

	if cached, ok := g.loadCached(ctx, domain); ok && !cached.Expired(time.Now()) {
		return cached, nil
	}

	verdict, err := g.compute(ctx, u, domain)
	if err != nil {
		return nil, err
	}
	g.saveCached(ctx, verdict)
	return verdict, nil
}

// Recheck evaluates the domain fresh (bypassing the cache) and returns
// ErrComplianceViolation if it inverts a previously allowed verdict,
// per spec.md section 4.2's mid-run inversion check.
func (g *Gate) Recheck(ctx context.Context, siteURL string, priorAllowed bool) (*models.ComplianceVerdict, error) {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parsing site url %q: %w", siteURL, err)
	}
	verdict, err := g.compute(ctx, u, u.Hostname())
	if err != nil {
		return nil, err
	}
	if priorAllowed && !verdict.Allowed {
		return verdict, &ErrComplianceViolation{Domain: u.Hostname()}
	}
	return verdict, nil
}

func (g *Gate) compute(ctx context.Context, base *url.URL, domain string) (*models.ComplianceVerdict, error) {
	now := time.Now()
	verdict := &models.ComplianceVerdict{
		Domain:    domain,
		Allowed:   true,
		Risk:      models.RiskMedium,
		CheckedAt: now,
		ExpiresAt: now.Add(models.VerdictTTL),
	}

	robotsDisallowed, crawlDelay := g.checkRobots(ctx, base)
	if crawlDelay != nil {
		ms := int(crawlDelay.Milliseconds())
		verdict.RobotsCrawlDelayMs = &ms
	}

	termsProhibited := g.checkTerms(ctx, base)

	if robotsDisallowed || termsProhibited {
		verdict.Allowed = false
		verdict.Risk = models.RiskHigh
		return verdict, nil
	}

	if apiURL := g.probeAPI(ctx, base); apiURL != "" {
		verdict.Recommendation = "use_api_instead"
	}

	if isGovernmentDomain(domain, g.cfg.GovernmentTLDs) {
		verdict.Allowed = true
		verdict.Risk = models.RiskLow
		verdict.RequiredPrecautions = []string{"conservative_rate_limit"}
		return verdict, nil
	}

	// Not a government domain and no robots/terms prohibition found
	// (including when terms could not be located): default to a
	// cautious medium-risk block rather than assuming permission.
	verdict.Allowed = false
	verdict.Risk = models.RiskMedium
	return verdict, nil
}

func (g *Gate) checkRobots(ctx context.Context, base *url.URL) (disallowed bool, crawlDelay *time.Duration) {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return false, nil
	}
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logf("robots.txt fetch failed for %s: %v", base.Host, err)
		return false, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return false, nil
	}

	group := data.FindGroup("*")
	if g.cfg.UserAgent != "" {
		if named := data.FindGroup(g.cfg.UserAgent); named != nil {
			group = named
		}
	}
	if group == nil {
		return false, nil
	}

	if group.CrawlDelay > 0 {
		d := group.CrawlDelay
		crawlDelay = &d
	}

	for _, path := range []string{"/tenders", "/grants", "/opportunities", "/"} {
		if !group.Test(path) {
			disallowed = true
			break
		}
	}
	return disallowed, crawlDelay
}

func (g *Gate) checkTerms(ctx context.Context, base *url.URL) bool {
	text := g.fetchTermsText(ctx, base)
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range g.cfg.ProhibitedPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (g *Gate) fetchTermsText(ctx context.Context, base *url.URL) string {
	for _, path := range termsPaths {
		u := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}
		if text := g.fetchPageText(ctx, u.String()); text != "" {
			return text
		}
	}

	home := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	doc, err := g.fetchDocument(ctx, home.String())
	if err != nil {
		return ""
	}

	var termsURL string
	doc.Find("a[href]").EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		label := strings.ToLower(strings.TrimSpace(a.Text()))
		if strings.Contains(label, "terms") || strings.Contains(label, "legal") || strings.Contains(label, "conditions of use") {
			ref, err := url.Parse(href)
			if err == nil {
				termsURL = base.ResolveReference(ref).String()
				return false
			}
		}
		return true
	})
	if termsURL == "" {
		return ""
	}
	return g.fetchPageText(ctx, termsURL)
}

func (g *Gate) fetchPageText(ctx context.Context, pageURL string) string {
	doc, err := g.fetchDocument(ctx, pageURL)
	if err != nil {
		return ""
	}
	return doc.Find("body").Text()
}

func (g *Gate) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d fetching %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// probeAPI checks a short list of conventional API paths, returning the
// first one that responds successfully, or "" if none do.
func (g *Gate) probeAPI(ctx context.Context, base *url.URL) string {
	for _, path := range apiPaths {
		u := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			continue
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return u.String()
		}
	}
	return ""
}

func isGovernmentDomain(domain string, tlds []string) bool {
	lower := strings.ToLower(domain)
	for _, tld := range tlds {
		if strings.HasSuffix(lower, strings.ToLower(tld)) {
			return true
		}
	}
	return false
}

func (g *Gate) logf(format string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Warn().Msg(fmt.Sprintf(format, args...))
}
