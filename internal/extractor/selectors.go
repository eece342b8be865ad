package extractor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// extractWithSelectors is the fallback extraction mode: apply the
// Site's CSS selectors directly against the page and build one
// Opportunity per matched container, deduping by source URL within the
// page (spec.md section 4.7).
func (e *Extractor) extractWithSelectors(siteID int64, pageURL, html string, sel models.SelectorConfig) (*ExtractedPage, error) {
	if sel.OpportunityContainer == "" {
		return nil, fmt.Errorf("site has no opportunity_container selector configured")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	base, _ := url.Parse(pageURL)

	page := &ExtractedPage{}
	seenURLs := make(map[string]bool)

	doc.Find(sel.OpportunityContainer).Each(func(i int, container *goquery.Selection) {
		now := time.Now()

		title := textOf(container, sel.Title)
		source := resolveOpportunityURL(container, base, pageURL)
		if seenURLs[source] {
			return
		}

		opp := models.Opportunity{
			SiteID:          siteID,
			Title:           title,
			SourceURL:       source,
			Currency:        models.DefaultCurrency,
			Description:     textOf(container, sel.Description),
			ReferenceNumber: textOf(container, sel.ReferenceNumber),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		opp.Deadline = parseDeadline(textOf(container, sel.Deadline))
		opp.Value = ParseValue(textOf(container, sel.Value))
		opp.Confidence = confidence(opp)

		if opp.Title == "" && opp.SourceURL == "" {
			return
		}
		seenURLs[source] = true
		page.Opportunities = append(page.Opportunities, opp)

		if sel.Documents != "" {
			container.Find(sel.Documents).Each(func(j int, docSel *goquery.Selection) {
				if href, ok := docSel.Attr("href"); ok && href != "" {
					page.DocumentURLs = append(page.DocumentURLs, resolveURL(base, href))
				}
			})
		}
	})

	return page, nil
}

func textOf(container *goquery.Selection, selector string) string {
	if selector == "" {
		return strings.TrimSpace(container.Text())
	}
	return strings.TrimSpace(container.Find(selector).First().Text())
}

func resolveOpportunityURL(container *goquery.Selection, base *url.URL, fallback string) string {
	href, ok := container.Find("a[href]").First().Attr("href")
	if !ok || href == "" {
		return fallback
	}
	return resolveURL(base, href)
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
