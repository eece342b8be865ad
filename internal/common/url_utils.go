package common

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
)

// ValidateSiteURL validates a Site's URL and flags obvious local/test
// hosts so a misconfigured site does not silently queue jobs against a
// developer's laptop.
func ValidateSiteURL(siteURL string, logger arbor.ILogger) (isValid bool, isTestURL bool, warnings []string, err error) {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return false, false, nil, fmt.Errorf("invalid URL format: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, false, nil, fmt.Errorf("invalid URL scheme: %s (expected http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return false, false, nil, fmt.Errorf("URL host is empty")
	}

	host := strings.ToLower(parsed.Host)
	switch {
	case strings.HasPrefix(host, "localhost"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses localhost", siteURL))
	case strings.HasPrefix(host, "127.0.0.1"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 127.0.0.1", siteURL))
	case strings.HasPrefix(host, "0.0.0.0"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 0.0.0.0", siteURL))
	case strings.HasPrefix(host, "[::1]"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses IPv6 localhost", siteURL))
	}

	if logger != nil {
		logger.Debug().
			Str("site_url", siteURL).
			Bool("is_test_url", isTestURL).
			Msg("site URL validated")
	}

	return true, isTestURL, warnings, nil
}
