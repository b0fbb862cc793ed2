package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

// signedInMarkers match elements only rendered for a signed-in user
const signedInMarkers = `a[href*="signout"], a[href*="logout"], form[action*="signout"], form[action*="logout"]`

// FormAuthenticator signs in through the site's HTML login form
type FormAuthenticator struct {
	sessionConfig *utils.SessionConfig
}

// NewFormAuthenticator creates an authenticator whose sessions use cfg
func NewFormAuthenticator(cfg *utils.SessionConfig) *FormAuthenticator {
	return &FormAuthenticator{sessionConfig: cfg}
}

// loginForm is what the login page tells us about how to submit credentials
type loginForm struct {
	action string
	hidden url.Values
}

// Authenticate signs in with creds and returns the session holding the
// server's cookies. Errors are *internal.FetchError with type
// ErrInvalidCredentials or ErrNetworkFailure.
func (a *FormAuthenticator) Authenticate(ctx context.Context, creds internal.Credentials, loginURL string) (*utils.Session, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, internal.NewInvalidCredentialsError(loginURL, "email and password are required")
	}

	session, err := utils.NewSession(a.sessionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.SetLoginURL(loginURL)

	form, err := a.fetchLoginForm(ctx, session, loginURL)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for name, v := range form.hidden {
		values[name] = v
	}
	values.Set("email", creds.Email)
	values.Set("password", creds.Password)

	internal.LogDebug("Submitting sign-in form to %s", form.action)
	res, err := session.PostForm(ctx, form.action, values)
	if err != nil {
		return nil, internal.NewNetworkFailureError(loginURL, err)
	}

	status := res.StatusCode()
	switch {
	case status >= 500:
		return nil, internal.NewNetworkFailureError(loginURL, fmt.Errorf("server returned HTTP %d", status))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, internal.NewInvalidCredentialsError(loginURL, fmt.Sprintf("sign-in rejected with HTTP %d", status))
	case status >= 400:
		return nil, internal.NewInvalidCredentialsError(loginURL, fmt.Sprintf("sign-in failed with HTTP %d", status))
	}

	finalURL := utils.FinalURL(res)
	if !utils.SamePath(finalURL, loginURL) && !utils.SamePath(finalURL, form.action) {
		internal.LogInfo("Signed in as %s", creds.Email)
		return session, nil
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body())); err == nil {
		if doc.Find(signedInMarkers).Length() > 0 {
			internal.LogInfo("Signed in as %s", creds.Email)
			return session, nil
		}
	}

	return nil, internal.NewInvalidCredentialsError(loginURL, "the site did not accept the email and password")
}

// fetchLoginForm loads the sign-in page and collects the form's action and
// hidden inputs (anti-forgery tokens). A page without a recognisable form
// falls back to posting to loginURL itself.
func (a *FormAuthenticator) fetchLoginForm(ctx context.Context, session *utils.Session, loginURL string) (*loginForm, error) {
	form := &loginForm{action: loginURL, hidden: url.Values{}}

	res, err := session.Get(ctx, loginURL)
	if err != nil {
		return nil, internal.NewNetworkFailureError(loginURL, err)
	}
	if res.StatusCode() >= 500 {
		return nil, internal.NewNetworkFailureError(loginURL, fmt.Errorf("server returned HTTP %d", res.StatusCode()))
	}
	if res.StatusCode() >= 400 {
		internal.LogWarn("Sign-in page returned HTTP %d, posting credentials without form tokens", res.StatusCode())
		return form, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		internal.LogWarn("Could not parse sign-in page: %v", err)
		return form, nil
	}

	pageURL := utils.FinalURL(res)
	if pageURL == "" {
		pageURL = loginURL
	}

	sel := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(`input[type="password"]`).Length() > 0
	}).First()
	if sel.Length() == 0 {
		internal.LogDebug("No password form found on %s", pageURL)
		return form, nil
	}

	if action, ok := sel.Attr("action"); ok && strings.TrimSpace(action) != "" {
		if resolved, err := utils.ResolveURL(pageURL, action); err == nil {
			form.action = resolved
		}
	}

	sel.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		form.hidden.Add(name, value)
	})

	internal.LogDebug("Sign-in form posts to %s with %d hidden field(s)", form.action, len(form.hidden))
	return form, nil
}
