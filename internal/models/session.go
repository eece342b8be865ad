package models

import "time"

// SessionTTL is how long a captured browser session remains valid
// before the caller must re-run full authentication (spec.md section 3).
const SessionTTL = 23 * time.Hour

// BrowserState bundles cookies, localStorage, sessionStorage and a
// capture timestamp for one authenticated Site (spec.md section 3,
// "Session"). It is process-wide, shared across jobs for the same site.
type BrowserState struct {
	SiteID          int64             `json:"site_id"`
	Cookies         []Cookie          `json:"cookies"`
	LocalStorage    map[string]string `json:"local_storage"`
	SessionStorage  map[string]string `json:"session_storage"`
	CapturedAt      time.Time         `json:"captured_at"`
}

// Expired reports whether this BrowserState has outlived SessionTTL.
func (s *BrowserState) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.CapturedAt) > SessionTTL
}

// Cookie is a single browser cookie as captured from a Context's
// storage state (spec.md section 9, Playwright-shaped contract).
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	SameSite string `json:"same_site,omitempty"`
}
