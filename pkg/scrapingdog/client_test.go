package scrapingdog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
	"organic_results": [
		{"title": "Summit Plumbing", "link": "https://summitplumbingatx.com", "snippet": "Plumbers in Austin TX", "displayed_link": "summitplumbingatx.com", "rank": 1},
		{"title": "Summit Plumbing - Yelp", "link": "https://yelp.com/biz/summit", "snippet": "Reviews", "rank": 2}
	]
}`

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "Summit Plumbing Austin TX", r.URL.Query().Get("query"))
		assert.Equal(t, "us", r.URL.Query().Get("country"))
		assert.Equal(t, "10", r.URL.Query().Get("results"))
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{Query: "Summit Plumbing Austin TX"})
	require.NoError(t, err)
	require.Len(t, resp.OrganicResults, 2)
	assert.Equal(t, "https://summitplumbingatx.com", resp.OrganicResults[0].Link)
	assert.Equal(t, 1, resp.OrganicResults[0].Rank)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty query")
}

func TestSearch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{Query: "retry me"})
	require.NoError(t, err)
	assert.Len(t, resp.OrganicResults, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "whatever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load(), "401 must not be retried")
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "whatever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
