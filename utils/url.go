package utils

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Nilesh2000/joncalhoun-dl/internal"
)

var lessonPathPattern = regexp.MustCompile(`/lessons/[^/?#]+`)

// URLValidator checks links found on course pages against the course site
type URLValidator struct {
	base *url.URL
}

// NewURLValidator creates a validator rooted at baseURL
func NewURLValidator(baseURL string) (*URLValidator, error) {
	if err := ValidateHTTPURL(baseURL); err != nil {
		return nil, err
	}
	base, _ := url.Parse(baseURL)
	return &URLValidator{base: base}, nil
}

// ValidateHTTPURL validates that rawURL is an absolute http(s) URL
func ValidateHTTPURL(rawURL string) error {
	if rawURL == "" {
		return internal.NewValidationError("url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return internal.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return internal.NewValidationError("url", "URL must use http or https protocol")
	}
	if parsedURL.Host == "" {
		return internal.NewValidationError("url", "URL must include a host")
	}

	return nil
}

// Resolve makes href absolute against the validator's base URL
func (v *URLValidator) Resolve(href string) (string, error) {
	return ResolveURL(v.base.String(), href)
}

// SameSite reports whether rawURL points at the course host
func (v *URLValidator) SameSite(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), v.base.Hostname())
}

// IsLessonLink reports whether href refers to a lesson page
func IsLessonLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return lessonPathPattern.MatchString(u.Path)
}

// IsVideoLink reports whether href is a hosted file carrying the course's video prefix
func IsVideoLink(href, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.Contains(href, "files/"+prefix)
}

// ResolveURL resolves href relative to base and drops any fragment
func ResolveURL(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// SamePath reports whether two URLs share host and path, ignoring query,
// fragment and a trailing slash
func SamePath(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/")
}

// HasMP4Path reports whether the URL path ends in .mp4
func HasMP4Path(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".mp4")
}
