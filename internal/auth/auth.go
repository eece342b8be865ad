// Package auth implements the Auth Engine: a polymorphic driver over
// five authentication strategies (spec.md section 4.5). Each strategy
// takes a live browser Run plus the Site's decrypted Credentials and
// config, and returns an AuthOutcome the caller caches via
// internal/session.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/browser"
	"github.com/hoistscout/hoistscout-core/internal/models"
)

// ErrNotImplemented is returned by the OAuth2 stub strategy.
var ErrNotImplemented = fmt.Errorf("auth: oauth2 authorization-code flow is not implemented")

// AuthFailure wraps a strategy's judgment that credentials were
// rejected, carrying whatever error text the site displayed.
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string { return fmt.Sprintf("authentication failed: %s", e.Reason) }

// CaptchaBlocked is returned by the form strategy whenever a CAPTCHA
// challenge is detected; no solver is ever tried.
type CaptchaBlocked struct{}

func (e *CaptchaBlocked) Error() string { return "authentication blocked by captcha" }

// LoginFormNotFound is returned when no username/password selector in
// the configured or common-pattern list matches the login page.
type LoginFormNotFound struct{}

func (e *LoginFormNotFound) Error() string { return "login form not found" }

// AuthTimeout is returned when a strategy exceeds its deadline without
// reaching a success or failure signal.
type AuthTimeout struct{}

func (e *AuthTimeout) Error() string { return "authentication timed out" }

// AuthOutcome is the result of one authenticate call.
type AuthOutcome struct {
	OK      bool
	Cookies []models.Cookie
	Headers map[string]string
	Error   string
}

// Engine drives the five strategies over a live browser Run.
type Engine struct {
	httpClient *http.Client
	logger     arbor.ILogger
}

// New builds an Engine.
func New(logger arbor.ILogger) *Engine {
	return &Engine{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Authenticate dispatches to the strategy named by cfg.Type.
func (e *Engine) Authenticate(ctx context.Context, run *browser.Run, siteURL string, cfg models.AuthConfig, creds models.Credentials) (*AuthOutcome, error) {
	switch cfg.Type {
	case models.AuthTypeNone:
		return &AuthOutcome{OK: true}, nil
	case models.AuthTypeForm:
		return e.authenticateForm(ctx, run, cfg, creds)
	case models.AuthTypeBasic:
		return e.authenticateBasic(ctx, siteURL, creds)
	case models.AuthTypeAPIKey:
		return e.authenticateAPIKey(ctx, cfg, creds)
	case models.AuthTypeCookie:
		return e.authenticateCookie(cfg)
	case models.AuthTypeOAuth:
		return nil, ErrNotImplemented
	default:
		return nil, fmt.Errorf("auth: unknown strategy %q", cfg.Type)
	}
}

var commonUsernameSelectors = []string{
	`input[name="username"]`, `input[name="email"]`, `input[type="email"]`,
	`input#username`, `input#email`, `input[autocomplete="username"]`,
}

var commonPasswordSelectors = []string{
	`input[name="password"]`, `input[type="password"]`, `input#password`,
	`input[autocomplete="current-password"]`,
}

var commonSubmitSelectors = []string{
	`button[type="submit"]`, `input[type="submit"]`, `button#login`, `button#submit`,
}

func usernameCandidates(cfg models.AuthConfig) []string {
	if sel, ok := cfg.Selectors["username"]; ok && sel != "" {
		return append([]string{sel}, commonUsernameSelectors...)
	}
	return commonUsernameSelectors
}

func passwordCandidates(cfg models.AuthConfig) []string {
	if sel, ok := cfg.Selectors["password"]; ok && sel != "" {
		return append([]string{sel}, commonPasswordSelectors...)
	}
	return commonPasswordSelectors
}

func submitCandidates(cfg models.AuthConfig) []string {
	if sel, ok := cfg.Selectors["submit"]; ok && sel != "" {
		return append([]string{sel}, commonSubmitSelectors...)
	}
	return commonSubmitSelectors
}

// authenticateForm navigates to the login page, fills credentials with
// human-like delays, and confirms success via the configured indicator,
// a URL change, or a logout link (spec.md section 4.5).
func (e *Engine) authenticateForm(ctx context.Context, run *browser.Run, cfg models.AuthConfig, creds models.Credentials) (*AuthOutcome, error) {
	if cfg.LoginURL == "" {
		return nil, &LoginFormNotFound{}
	}

	var usernameSel, passwordSel string
	err := chromedp.Run(run.Ctx,
		chromedp.Navigate(cfg.LoginURL),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return nil, &AuthTimeout{}
	}

	for _, sel := range usernameCandidates(cfg) {
		var count int
		if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
			fmt.Sprintf("document.querySelectorAll(%q).length", sel), &count,
		)); err == nil && count > 0 {
			usernameSel = sel
			break
		}
	}
	for _, sel := range passwordCandidates(cfg) {
		var count int
		if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
			fmt.Sprintf("document.querySelectorAll(%q).length", sel), &count,
		)); err == nil && count > 0 {
			passwordSel = sel
			break
		}
	}
	if usernameSel == "" || passwordSel == "" {
		return nil, &LoginFormNotFound{}
	}

	if blocked := detectCaptcha(ctx, run); blocked {
		return nil, &CaptchaBlocked{}
	}

	typeActions := []chromedp.Action{
		chromedp.Click(usernameSel, chromedp.ByQuery),
	}
	for _, ch := range creds.Username {
		typeActions = append(typeActions, chromedp.SendKeys(usernameSel, string(ch), chromedp.ByQuery))
		typeActions = append(typeActions, chromedp.Sleep(humanDelay()))
	}
	typeActions = append(typeActions, chromedp.Click(passwordSel, chromedp.ByQuery))
	for _, ch := range creds.Password {
		typeActions = append(typeActions, chromedp.SendKeys(passwordSel, string(ch), chromedp.ByQuery))
		typeActions = append(typeActions, chromedp.Sleep(humanDelay()))
	}

	if err := chromedp.Run(run.Ctx, typeActions...); err != nil {
		return nil, fmt.Errorf("auth: filling form: %w", err)
	}

	var beforeURL string
	chromedp.Run(run.Ctx, chromedp.Location(&beforeURL))

	submitted := false
	for _, sel := range submitCandidates(cfg) {
		var count int
		if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
			fmt.Sprintf("document.querySelectorAll(%q).length", sel), &count,
		)); err == nil && count > 0 {
			if err := chromedp.Run(run.Ctx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
				submitted = true
				break
			}
		}
	}
	if !submitted {
		if err := chromedp.Run(run.Ctx, chromedp.KeyEvent("\r")); err != nil {
			return nil, fmt.Errorf("auth: submitting form: %w", err)
		}
	}

	if err := chromedp.Run(run.Ctx, chromedp.Sleep(1500*time.Millisecond)); err != nil {
		return nil, &AuthTimeout{}
	}

	ok, errText := e.confirmFormSuccess(run, beforeURL, cfg)
	if !ok {
		return &AuthOutcome{OK: false, Error: errText}, &AuthFailure{Reason: errText}
	}

	cookies, err := captureCookies(run)
	if err != nil {
		return nil, fmt.Errorf("auth: capturing cookies: %w", err)
	}
	return &AuthOutcome{OK: true, Cookies: cookies}, nil
}

func (e *Engine) confirmFormSuccess(run *browser.Run, beforeURL string, cfg models.AuthConfig) (bool, string) {
	if cfg.SuccessIndicator != "" {
		var count int
		if err := chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
			fmt.Sprintf("document.querySelectorAll(%q).length", cfg.SuccessIndicator), &count,
		)); err == nil && count > 0 {
			return true, ""
		}
	}

	var afterURL string
	chromedp.Run(run.Ctx, chromedp.Location(&afterURL))
	if afterURL != "" && afterURL != beforeURL && !strings.Contains(strings.ToLower(afterURL), "login") {
		return true, ""
	}

	var logoutCount int
	chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
		`document.querySelectorAll('a[href*="logout"], a[href*="signout"]').length`, &logoutCount,
	))
	if logoutCount > 0 {
		return true, ""
	}

	var errText string
	chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
		`(function(){var e=document.querySelector('.error, .alert-danger, [role="alert"]'); return e ? e.textContent.trim() : ''})()`,
		&errText,
	))
	if errText == "" {
		errText = "login did not reach an authenticated state"
	}
	return false, errText
}

func detectCaptcha(ctx context.Context, run *browser.Run) bool {
	var count int
	chromedp.Run(run.Ctx, chromedp.EvaluateAsDevTools(
		`document.querySelectorAll('iframe[src*="recaptcha"], iframe[src*="hcaptcha"], .g-recaptcha, [data-sitekey]').length`,
		&count,
	))
	return count > 0
}

func humanDelay() time.Duration {
	return time.Duration(50+rand.Intn(120)) * time.Millisecond
}

func captureCookies(run *browser.Run) ([]models.Cookie, error) {
	var netCookies []*network.Cookie
	err := chromedp.Run(run.Ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		netCookies = cookies
		return nil
	}))
	if err != nil {
		return nil, err
	}

	out := make([]models.Cookie, 0, len(netCookies))
	for _, c := range netCookies {
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  int64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// authenticateBasic computes an Authorization header and probes the
// site root; success iff the response status is below 400.
func (e *Engine) authenticateBasic(ctx context.Context, siteURL string, creds models.Credentials) (*AuthOutcome, error) {
	token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
	header := "Basic " + token

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building basic auth probe: %w", err)
	}
	req.Header.Set("Authorization", header)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &AuthTimeout{}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &AuthOutcome{OK: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}, &AuthFailure{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return &AuthOutcome{OK: true, Headers: map[string]string{"Authorization": header}}, nil
}

// authenticateAPIKey sets the configured header, query param, or cookie
// and probes TestEndpoint.
func (e *Engine) authenticateAPIKey(ctx context.Context, cfg models.AuthConfig, creds models.Credentials) (*AuthOutcome, error) {
	if cfg.TestEndpoint == "" {
		return &AuthOutcome{OK: true, Headers: apiKeyHeaders(cfg, creds)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TestEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building api key probe: %w", err)
	}

	headers := apiKeyHeaders(cfg, creds)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if cfg.QueryParam != "" {
		q := req.URL.Query()
		q.Set(cfg.QueryParam, creds.APIKey)
		req.URL.RawQuery = q.Encode()
	}
	if cfg.CookieName != "" {
		req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: creds.APIKey})
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &AuthTimeout{}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &AuthOutcome{OK: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}, &AuthFailure{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return &AuthOutcome{OK: true, Headers: headers}, nil
}

func apiKeyHeaders(cfg models.AuthConfig, creds models.Credentials) map[string]string {
	if cfg.HeaderName == "" {
		return nil
	}
	key := creds.APIKey
	if key == "" {
		key = creds.Token
	}
	return map[string]string{cfg.HeaderName: key}
}

// authenticateCookie injects the configured cookies verbatim; there is
// nothing to probe, so it always succeeds.
func (e *Engine) authenticateCookie(cfg models.AuthConfig) (*AuthOutcome, error) {
	cookies := make([]models.Cookie, 0, len(cfg.Cookies))
	for _, spec := range cfg.Cookies {
		cookies = append(cookies, models.Cookie{
			Name:   spec.Name,
			Value:  spec.Value,
			Domain: spec.Domain,
			Path:   spec.Path,
		})
	}
	return &AuthOutcome{OK: true, Cookies: cookies}, nil
}
