package reachability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realPage is large enough and shaped enough to pass content heuristics.
const realPage = `<!DOCTYPE html>
<html>
<head><title>Summit Plumbing of Austin</title></head>
<body>
<h1>Summit Plumbing</h1>
<p>Family owned and operated since 1998, serving Austin and the surrounding
hill country. Licensed and insured. Water heaters, drain cleaning, repipes,
and emergency service around the clock.</p>
<p>Call us at (512) 555-0134 or email office@summitplumbingatx.com.</p>
</body>
</html>`

func newTestChecker(srv *httptest.Server) *Checker {
	return NewChecker(WithHTTPClient(srv.Client()))
}

func TestValidate_RealWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(realPage))
	}))
	defer srv.Close()

	res := newTestChecker(srv).Validate(context.Background(), srv.URL)
	assert.True(t, res.IsValid)
	assert.True(t, res.IsAccessible)
	assert.True(t, res.HasContent)
	assert.True(t, res.IsRealWebsite)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Error)
}

func TestValidate_ExcludedDomainSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestChecker(srv)
	for _, u := range []string{
		"https://facebook.com/summitplumbing",
		"https://www.yelp.com/biz/summit-plumbing-austin",
		"https://maps.google.com/?cid=123",
		"https://bit.ly/3xyzabc",
		"https://summitplumbing.wixsite.com/home",
	} {
		res := c.Validate(context.Background(), u)
		assert.False(t, res.IsValid, u)
		assert.Contains(t, res.Error, "excluded domain", u)
	}
	assert.Zero(t, calls.Load(), "excluded domains must be rejected before any HTTP call")
}

func TestValidate_RedirectAggregatorRejected(t *testing.T) {
	c := NewChecker()
	res := c.Validate(context.Background(), "https://www.google.com/url?q=https://summitplumbing.com")
	assert.False(t, res.IsValid)
	assert.Equal(t, "redirect aggregator url", res.Error)
}

func TestValidate_SubdomainOfExcludedDomain(t *testing.T) {
	c := NewChecker()
	res := c.Validate(context.Background(), "https://pages.facebook.com/whatever")
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, "facebook.com")
}

func TestValidate_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	res := newTestChecker(srv).Validate(context.Background(), srv.URL)
	assert.False(t, res.IsValid)
	assert.False(t, res.IsAccessible)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.Error, "status 404")
}

func TestValidate_ParkedDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>This domain is parked</h1>
		<p>` + strings.Repeat("Interested in this domain? ", 20) + `</p></body></html>`))
	}))
	defer srv.Close()

	res := newTestChecker(srv).Validate(context.Background(), srv.URL)
	assert.False(t, res.IsValid)
	assert.True(t, res.IsAccessible)
	assert.True(t, res.HasContent)
	assert.False(t, res.IsRealWebsite)
	assert.Contains(t, res.Error, "parked")
}

func TestValidate_ThinContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>hi</body></html>`))
	}))
	defer srv.Close()

	res := newTestChecker(srv).Validate(context.Background(), srv.URL)
	assert.False(t, res.IsValid)
	assert.False(t, res.HasContent)
}

func TestValidate_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewChecker().Validate(context.Background(), url)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Error, "fetch failed")
}

func TestValidateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/dead") {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(realPage))
	}))
	defer srv.Close()

	urls := []string{
		srv.URL + "/ok",
		srv.URL + "/dead",
		"https://facebook.com/nope",
	}
	results := newTestChecker(srv).ValidateBatch(context.Background(), urls)
	require.Len(t, results, 3)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)
	assert.False(t, results[2].IsValid)
	// Results stay positionally aligned with the input.
	assert.Equal(t, urls[1], results[1].URL)
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("summitplumbing.com")
	require.NoError(t, err)
	assert.Equal(t, "https://summitplumbing.com", got)

	got, err = NormalizeURL("  http://example.com/path  ")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/path", got)

	for _, bad := range []string{"", "ftp://example.com", "not a url", "https://nohost"} {
		_, err := NormalizeURL(bad)
		assert.Error(t, err, bad)
	}
}
