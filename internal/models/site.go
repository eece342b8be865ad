package models

import (
	"encoding/json"
	"time"
)

// AuthType is the authentication strategy configured for a Site.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeForm   AuthType = "form"
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeCookie AuthType = "cookie"
)

// Site is a pre-registered source website with its URL, auth method and
// scraping configuration. A Site's URL is unique across the system.
type Site struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	URL                    string          `json:"url"`
	Category               string          `json:"category"`
	AuthType               AuthType        `json:"auth_type"`
	EncryptedCredentials   []byte          `json:"-"` // never serialized, see I4 in spec
	ScrapingConfig         json.RawMessage `json:"scraping_config"`
	Active                 bool            `json:"active"`
	LegalBlocked           bool            `json:"legal_blocked"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Config unmarshals ScrapingConfig into the typed SiteConfig shape
// described in spec.md section 6.
func (s *Site) Config() (*SiteConfig, error) {
	cfg := &SiteConfig{}
	if len(s.ScrapingConfig) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(s.ScrapingConfig, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SiteConfig is the JSON shape persisted on Site.ScrapingConfig and fed
// to every scrape (spec.md section 6, "Site Config (JSON)").
type SiteConfig struct {
	Auth            AuthConfig       `json:"auth"`
	Pagination      PaginationConfig `json:"pagination"`
	Selectors       SelectorConfig   `json:"selectors"`
	RateLimitMs     int              `json:"rate_limit_ms"`
	ExtractionHints string           `json:"extraction_hints"`
}

// AuthConfig describes how the Auth Engine should authenticate to a site.
type AuthConfig struct {
	Type             AuthType          `json:"type"`
	LoginURL         string            `json:"login_url,omitempty"`
	Selectors        map[string]string `json:"selectors,omitempty"`
	SuccessIndicator string            `json:"success_indicator,omitempty"`
	TestEndpoint     string            `json:"test_endpoint,omitempty"`
	HeaderName       string            `json:"header_name,omitempty"`
	QueryParam       string            `json:"query_param,omitempty"`
	CookieName       string            `json:"cookie_name,omitempty"`
	Cookies          []CookieSpec      `json:"cookies,omitempty"`
}

// CookieSpec is one cookie to inject verbatim for cookie-strategy auth.
type CookieSpec struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// PaginationConfig is the pagination hint and bound passed to the
// Pagination Engine.
type PaginationConfig struct {
	Hint     string `json:"hint"` // numbered|ajax|load_more|infinite|auto
	MaxPages int    `json:"max_pages"`
}

// SelectorConfig is the fallback CSS selector map used in Selector mode
// extraction when the LLM is unavailable or returns invalid JSON.
type SelectorConfig struct {
	OpportunityContainer string `json:"opportunity_container"`
	Title                string `json:"title"`
	Deadline             string `json:"deadline"`
	Value                string `json:"value"`
	Description          string `json:"description,omitempty"`
	ReferenceNumber      string `json:"reference_number,omitempty"`
	Documents            string `json:"documents"`
}
