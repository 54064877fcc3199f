// Package fetch provides the HTTP transport shared by the source adapters and
// the summarizer: paced GET requests, JSON envelope checks and HTML-to-text.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/jonathan/patchnotes/internal/schemas"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; PatchNotes/1.0)"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 64 << 20

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Rate and Burst pace outbound requests. A zero Rate disables pacing.
	Rate  rate.Limit
	Burst int
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Client issues paced GET requests. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	limiter   *rate.Limiter
}

// NewClient creates a Client from opts (nil means DefaultOptions).
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		http:      httpClient,
		userAgent: userAgent,
		headers:   opts.Headers,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(opts.Rate, burst)
	}
	return c
}

// Get retrieves urlStr and returns the body. Non-200 responses are errors.
func (c *Client) Get(ctx context.Context, urlStr string) ([]byte, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{URL: redact(urlStr), Message: "invalid URL", Cause: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{URL: redact(urlStr), Message: "rate limiter wait aborted", Cause: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: redact(urlStr), Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{URL: redact(urlStr), Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: redact(urlStr), Message: "failed to read response body", StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return body, &Error{
			URL:        redact(urlStr),
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	return body, nil
}

// GetJSON retrieves urlStr, checks the body against the named embedded
// schema (skipped when schema is empty) and decodes it into out.
func (c *Client) GetJSON(ctx context.Context, urlStr, schema string, out any) error {
	body, err := c.Get(ctx, urlStr)
	if err != nil {
		return err
	}
	if schema != "" {
		if err := schemas.Validate(schema, body); err != nil {
			return &Error{URL: redact(urlStr), Message: "unexpected response shape", Cause: err}
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{URL: redact(urlStr), Message: "failed to decode JSON", Cause: err}
	}
	return nil
}

// Text retrieves an HTML page and returns its main text.
func (c *Client) Text(ctx context.Context, urlStr string) (string, error) {
	body, err := c.Get(ctx, urlStr)
	if err != nil {
		return "", err
	}
	return ExtractMainText(string(body), DocumentSelectors())
}

// redact hides api_key query values so URLs can be logged and returned in errors.
func redact(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements using noiseSelectors, then finds content using contentSelectors.
// If no content selectors match, it falls back to the body element.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, .ad, .sidebar, .cookie-banner, .popup").Remove()

	if len(noiseSelectors) > 0 {
		noiseSelector := strings.Join(noiseSelectors, ", ")
		if noiseSelector != "" {
			doc.Find(noiseSelector).Remove()
		}
	}

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}

	if mainContent == nil {
		mainContent = doc.Find("body")
	}

	return cleanWhitespace(mainContent.Text()), nil
}

// DocumentSelectors returns selectors for Federal Register, Regulations.gov
// and govinfo document pages, most specific first.
func DocumentSelectors() []string {
	return []string{
		"#fulltext_content_area",
		".doc-content",
		".body-column",
		"pre",
		"main",
		"article",
		"#content",
	}
}

// cleanWhitespace drops blank lines and trims the rest.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
