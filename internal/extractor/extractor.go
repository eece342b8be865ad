// Package extractor turns a rendered page into structured Opportunity
// records, either via an LLM completion call or, when that capability
// is unavailable or yields nothing parseable, via CSS selectors from the
// Site's config (spec.md section 4.7).
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// LLM is the narrow completion capability the Extractor depends on.
// internal/llm.Factory satisfies this.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ExtractedPage is the Extractor's output for one page.
type ExtractedPage struct {
	Opportunities []models.Opportunity
	DocumentURLs  []string
}

// ErrExtractionFailed is returned when neither LLM mode nor selector
// mode produced a single parseable opportunity.
type ErrExtractionFailed struct {
	PageURL string
	Reason  string
}

func (e *ErrExtractionFailed) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.PageURL, e.Reason)
}

const maxPromptChars = 15000

// Extractor converts page HTML into Opportunity records.
type Extractor struct {
	llm    LLM // nil disables LLM mode, falling straight to selectors
	logger arbor.ILogger
}

// New builds an Extractor. Pass a nil llm to force selector-only mode
// (e.g. for sites whose config carries no extraction_hints and a
// complete selector set).
func New(llm LLM, logger arbor.ILogger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// llmResult is the JSON shape the prompt asks the model to return.
type llmResult struct {
	Title           string   `json:"title"`
	ReferenceNumber string   `json:"reference_number"`
	Deadline        string   `json:"deadline"`
	Value           string   `json:"value"`
	Currency        string   `json:"currency"`
	Description     string   `json:"description"`
	Categories      []string `json:"categories"`
	Location        string   `json:"location"`
	DocumentURLs    []string `json:"document_urls"`
}

// Extract runs LLM mode if available, falling back to selector mode on
// empty or malformed output, per spec.md section 4.7.
func (e *Extractor) Extract(ctx context.Context, siteID int64, pageURL, html string, selectors models.SelectorConfig, hints string) (*ExtractedPage, error) {
	if e.llm != nil {
		page, err := e.extractWithLLM(ctx, siteID, pageURL, html, hints)
		if err == nil && len(page.Opportunities) > 0 {
			return page, nil
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("page_url", pageURL).Msg("LLM extraction failed, falling back to selectors")
		}
	}

	page, err := e.extractWithSelectors(siteID, pageURL, html, selectors)
	if err != nil {
		return nil, &ErrExtractionFailed{PageURL: pageURL, Reason: err.Error()}
	}
	if len(page.Opportunities) == 0 {
		return nil, &ErrExtractionFailed{PageURL: pageURL, Reason: "neither LLM nor selector mode yielded an opportunity"}
	}
	return page, nil
}

func (e *Extractor) extractWithLLM(ctx context.Context, siteID int64, pageURL, html, hints string) (*ExtractedPage, error) {
	cleaned := stripScriptsAndStyles(html)
	if len(cleaned) > maxPromptChars {
		cleaned = cleaned[:maxPromptChars]
	}

	prompt := buildPrompt(cleaned, hints)

	raw, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	var results []llmResult
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &results); err != nil {
		return nil, fmt.Errorf("parsing llm response: %w", err)
	}

	page := &ExtractedPage{}
	for _, r := range results {
		opp := toOpportunity(siteID, pageURL, r)
		page.Opportunities = append(page.Opportunities, opp)
		page.DocumentURLs = append(page.DocumentURLs, r.DocumentURLs...)
	}
	return page, nil
}

func buildPrompt(html, hints string) string {
	var b strings.Builder
	b.WriteString("Extract tender/grant opportunities from the following HTML as a JSON array. ")
	b.WriteString("Each element must have fields: title, reference_number, deadline (ISO-8601 or empty), ")
	b.WriteString("value (raw string as shown on page), currency, description, categories (array of strings), ")
	b.WriteString("location, document_urls (array of absolute URLs). ")
	b.WriteString("Return [] if no opportunities are present. Respond with JSON only.\n")
	if hints != "" {
		b.WriteString("Extraction hints: ")
		b.WriteString(hints)
		b.WriteString("\n")
	}
	b.WriteString("HTML:\n")
	b.WriteString(html)
	return b.String()
}

// extractJSONArray trims any prose wrapping the model may have added
// around the JSON array, taking the substring from the first '[' to the
// last ']'.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "[]"
	}
	return s[start : end+1]
}

func stripScriptsAndStyles(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	text, _ := doc.Html()
	return text
}

func toOpportunity(siteID int64, pageURL string, r llmResult) models.Opportunity {
	now := time.Now()
	opp := models.Opportunity{
		SiteID:          siteID,
		Title:           strings.TrimSpace(r.Title),
		Description:     strings.TrimSpace(r.Description),
		ReferenceNumber: strings.TrimSpace(r.ReferenceNumber),
		SourceURL:       pageURL,
		Categories:      r.Categories,
		Location:        strings.TrimSpace(r.Location),
		Currency:        normalizeCurrency(r.Currency),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	opp.Deadline = parseDeadline(r.Deadline)
	opp.Value = ParseValue(r.Value)
	opp.Confidence = confidence(opp)
	return opp
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return models.DefaultCurrency
	}
	return c
}

// confidence starts at 1.0 and is multiplied by 0.8 per missing
// required field among {title, deadline, description} (spec.md 4.7).
func confidence(opp models.Opportunity) float64 {
	score := 1.0
	if opp.Title == "" {
		score *= 0.8
	}
	if opp.Deadline == nil {
		score *= 0.8
	}
	if opp.Description == "" {
		score *= 0.8
	}
	return score
}

func parseDeadline(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
		"02/01/2006",
		"2 January 2006",
		"January 2, 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
