package reachability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// previewMaxChars caps the content snippet attached to review items.
const previewMaxChars = 600

// PagePreview is what an operator sees for a pending review: enough of the
// fetched page to decide ownership in a few seconds without re-running
// anything.
type PagePreview struct {
	URL     string   `json:"url"`
	Title   string   `json:"title,omitempty"`
	Phones  []string `json:"phones,omitempty"`
	Emails  []string `json:"emails,omitempty"`
	Content string   `json:"content,omitempty"`
}

var phonePattern = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`)
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// FetchPreview downloads a page and extracts title, phone numbers, email
// addresses, and a text snippet.
func (c *Checker) FetchPreview(ctx context.Context, rawURL string) (*PagePreview, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "preview: normalize url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return nil, eris.Wrap(err, "preview: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadcheckBot/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "preview: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("preview: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "preview: read body")
	}

	return ExtractPreview(normalized, body), nil
}

// ExtractPreview parses HTML into a PagePreview. Parse failures degrade to a
// preview with only the raw-text extractions.
func ExtractPreview(pageURL string, body []byte) *PagePreview {
	preview := &PagePreview{
		URL:    pageURL,
		Phones: dedupe(phonePattern.FindAllString(string(body), 5)),
		Emails: dedupe(emailPattern.FindAllString(string(body), 5)),
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return preview
	}

	preview.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > previewMaxChars {
		cut := previewMaxChars
		// Back off to a rune boundary so the snippet stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	preview.Content = text

	return preview
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
