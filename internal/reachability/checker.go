// Package reachability determines whether a candidate URL resolves to a
// real, content-bearing website owned by someone, as opposed to a directory
// listing, social profile, redirect trampoline, or parked domain.
package reachability

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxBatchConcurrency bounds simultaneous sockets during batch validation.
const maxBatchConcurrency = 10

// maxBodyBytes caps how much of a page is read for content heuristics.
const maxBodyBytes = 512 * 1024

// minContentLength is the smallest body, in bytes, considered a real page.
const minContentLength = 200

// Result is the outcome of validating one URL.
type Result struct {
	URL           string `json:"url"`
	IsValid       bool   `json:"is_valid"`
	IsAccessible  bool   `json:"is_accessible"`
	IsRealWebsite bool   `json:"is_real_website"`
	HasContent    bool   `json:"has_content"`
	StatusCode    int    `json:"status_code,omitempty"`
	FinalURL      string `json:"final_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// excludedDomains are hosts that can never be a business's own website:
// social platforms, directory listings, and URL shorteners.
var excludedDomains = []string{
	"facebook.com", "instagram.com", "twitter.com", "x.com", "linkedin.com",
	"youtube.com", "tiktok.com", "pinterest.com",
	"yelp.com", "yellowpages.com", "bbb.org", "angi.com", "thumbtack.com",
	"houzz.com", "homeadvisor.com", "nextdoor.com", "foursquare.com",
	"mapquest.com", "manta.com", "merchantcircle.com", "superpages.com",
	"tripadvisor.com", "opentable.com", "doordash.com", "grubhub.com",
	"google.com", "maps.google.com", "bing.com", "yahoo.com",
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "linktr.ee",
	"wixsite.com", "business.site", "godaddysites.com",
}

// redirectAggregatorPattern matches search-engine and directory redirect URL
// formats that wrap the real destination in a query parameter.
var redirectAggregatorPattern = regexp.MustCompile(
	`(?i)(google\.[a-z.]+/url\?|/aclk\?|bing\.com/ck/|duckduckgo\.com/l/\?|yandex\.[a-z]+/clck/|facebook\.com/l\.php|yelp\.com/biz_redir)`)

// parkedPhrases mark placeholder pages that are reachable but not a website.
var parkedPhrases = []string{
	"domain for sale", "buy this domain", "this domain is parked",
	"coming soon", "under construction", "website is being built",
	"account suspended", "page not found", "404 not found", "404 error",
	"default web page", "future home of", "hugedomains.com",
}

var bodyTagPattern = regexp.MustCompile(`(?is)<body[\s>]`)

// Checker validates URL reachability and page legitimacy over raw HTTP.
type Checker struct {
	client *http.Client
}

// Option configures the checker.
type Option func(*Checker)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) {
		c.client = hc
	}
}

// NewChecker creates a Checker with a 10-second overall timeout.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 8 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 8 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Validate checks a single URL. Excluded domains and redirect aggregators are
// rejected before any network I/O. A timeout or connection failure is a
// definitive invalid for this attempt; there are no retries at this layer.
func (c *Checker) Validate(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if reason := disallowedURL(normalized); reason != "" {
		res.Error = reason
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		res.Error = fmt.Sprintf("create request: %v", err)
		return res
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadcheckBot/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("fetch failed: %v", err)
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()

	// A reachable page can still land on a disallowed domain after redirects.
	if reason := disallowedURL(res.FinalURL); reason != "" {
		res.Error = "redirected to excluded destination: " + reason
		return res
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
		return res
	}
	res.IsAccessible = true

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.Error = fmt.Sprintf("read body: %v", err)
		return res
	}

	res.HasContent, res.IsRealWebsite = contentHeuristics(body)
	if !res.HasContent {
		res.Error = "page has no meaningful content"
		return res
	}
	if !res.IsRealWebsite {
		res.Error = "page looks like a placeholder or parked domain"
		return res
	}

	res.IsValid = true
	return res
}

// ValidateBatch validates URLs with a bounded worker pool. Any per-URL panic
// or error becomes an error Result; one bad URL never aborts the batch.
func (c *Checker) ValidateBatch(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{URL: u, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()
			results[i] = c.Validate(gCtx, u)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// NormalizeURL adds an https scheme when missing and validates the host.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unparseable url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" || !strings.Contains(parsed.Host, ".") {
		return "", fmt.Errorf("missing or invalid host")
	}
	return parsed.String(), nil
}

// disallowedURL returns a human-readable reason when the URL is a redirect
// aggregator or lives on an excluded domain, "" otherwise.
func disallowedURL(rawURL string) string {
	if redirectAggregatorPattern.MatchString(rawURL) {
		return "redirect aggregator url"
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unparseable url"
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	for _, d := range excludedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return "excluded domain " + d
		}
	}
	return ""
}

// contentHeuristics decides whether a body has real content and whether it
// reads as a legitimate site rather than a parked placeholder.
func contentHeuristics(body []byte) (hasContent, isReal bool) {
	if len(body) < minContentLength {
		return false, false
	}
	if !bodyTagPattern.Match(body) {
		return false, false
	}
	hasContent = true

	lower := strings.ToLower(string(body))
	for _, phrase := range parkedPhrases {
		if strings.Contains(lower, phrase) {
			return hasContent, false
		}
	}
	return hasContent, true
}
