package compliance

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout-core/internal/common"
)

func newTestGate(t *testing.T, cfg common.ComplianceConfig) *Gate {
	t.Helper()
	return New(cfg, nil, nil)
}

func TestEvaluate_RobotsDisallowAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGate(t, common.ComplianceConfig{})
	verdict, err := g.Evaluate(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "high", string(verdict.Risk))
}

func TestEvaluate_TermsProhibitScraping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		case "/terms":
			w.Write([]byte("<html><body>No automated access or scraping of this site is permitted.</body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := newTestGate(t, common.ComplianceConfig{
		ProhibitedPhrases: []string{"no scraping", "no automated access"},
	})
	verdict, err := g.Evaluate(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "high", string(verdict.Risk))
}

func TestEvaluate_GovernmentDomainLowRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGate(t, common.ComplianceConfig{
		GovernmentTLDs: []string{"127.0.0.1"},
	})
	verdict, err := g.Evaluate(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "low", string(verdict.Risk))
	assert.Contains(t, verdict.RequiredPrecautions, "conservative_rate_limit")
}

func TestEvaluate_UnclearTermsDefaultsToMediumBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGate(t, common.ComplianceConfig{})
	verdict, err := g.Evaluate(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "medium", string(verdict.Risk))
}
