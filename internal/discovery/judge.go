// Package discovery rediscovers a business's website when the
// directory-supplied candidate URL is missing or dead. It pairs a search
// proxy with a Claude judge that cross-references results against the
// business identity.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/pkg/anthropic"
	"github.com/sells-group/leadcheck/pkg/scrapingdog"
)

// judgeSystemPrompt encodes the cross-referencing protocol in strict signal
// priority order. The judge must never accept a name match alone.
const judgeSystemPrompt = `You identify whether any of the given web search results is the official website of a specific local business. Cross-reference in this priority order:

1. PHONE MATCH (strongest): the business phone number appears in a result's title, snippet, or displayed link.
2. ADDRESS MATCH (strong): the street address appears in a result's text.
3. NAME + LOCATION: the business name matches AND the city/state appears. A name match alone is NEVER sufficient; near-duplicate business names are common.

Exclude these categories even when the name matches:
- Directory listings and review sites (Yelp, Yellow Pages, BBB, Angi, Thumbtack, MapQuest, etc.)
- Franchise or brand aggregator landing pages, UNLESS the phone or address in the snippet confirms this specific local franchise
- Membership or association directories
- Third-party booking or ordering platforms
- Document files (PDF, DOC)

Confidence rules:
- 0.8-1.0 only with phone or address corroboration
- 0.5-0.7 for name plus city/state with no phone/address corroboration
- Return found=false when only excluded-category results are present

Respond with ONLY a JSON object:
{"found": <bool>, "url": <string or null>, "confidence": <0.0-1.0>, "reasoning": <string>, "match_signals": {"phone_match": <bool>, "address_match": <bool>, "name_match": <bool>, "location_match": <bool>}}`

// noResultsConfidence is reported when the search proxy returns nothing;
// absence of any organic result is itself a strong no-website signal and
// costs no inference call.
const noResultsConfidence = 0.95

// MatchSignals breaks down which identity fields corroborated the pick.
type MatchSignals struct {
	PhoneMatch    bool `json:"phone_match"`
	AddressMatch  bool `json:"address_match"`
	NameMatch     bool `json:"name_match"`
	LocationMatch bool `json:"location_match"`
}

// Finding is the judge's verdict for one business.
type Finding struct {
	Found        bool         `json:"found"`
	URL          string       `json:"url,omitempty"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning,omitempty"`
	MatchSignals MatchSignals `json:"match_signals"`
	// RawError preserves the upstream failure for prompt tuning when the
	// model output could not be parsed.
	RawError string `json:"raw_error,omitempty"`
	// Results holds the organic results the judge saw, for audit.
	Results []model.SearchResult `json:"results,omitempty"`
}

// Identity is the subset of business fields the judge cross-references.
type Identity struct {
	Name    string
	Phone   string
	Address string
	City    string
	State   string
	Country string
}

// Judge runs the two-stage search-then-cross-reference discovery.
type Judge struct {
	search         scrapingdog.Client
	ai             anthropic.Client
	model          string
	results        int
	maxTokens      int64
	defaultCountry string
}

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithResultCount sets how many organic results to request per search.
func WithResultCount(n int) JudgeOption {
	return func(j *Judge) {
		if n > 0 {
			j.results = n
		}
	}
}

// WithMaxTokens caps the judge's inference output.
func WithMaxTokens(n int64) JudgeOption {
	return func(j *Judge) {
		if n > 0 {
			j.maxTokens = n
		}
	}
}

// WithDefaultCountry sets the search country used when a business carries no
// country of its own.
func WithDefaultCountry(code string) JudgeOption {
	return func(j *Judge) {
		if code != "" {
			j.defaultCountry = code
		}
	}
}

// NewJudge creates a Judge.
func NewJudge(search scrapingdog.Client, ai anthropic.Client, aiModel string, opts ...JudgeOption) *Judge {
	j := &Judge{
		search:    search,
		ai:        ai,
		model:     aiModel,
		results:   10,
		maxTokens: 1024,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Discover attempts to find the business's website. Stage one queries the
// search proxy; zero results short-circuits without an inference call. Stage
// two asks Claude to cross-reference the ranked results. Any external
// failure degrades to a not-found Finding, never an error that aborts the
// caller's batch.
func (j *Judge) Discover(ctx context.Context, identity Identity) (*Finding, error) {
	if identity.Name == "" {
		return nil, eris.New("discovery: business name is required")
	}

	query := BuildQuery(identity)
	country := countryCode(identity.Country)
	if strings.TrimSpace(identity.Country) == "" && j.defaultCountry != "" {
		country = j.defaultCountry
	}
	resp, err := j.search.Search(ctx, scrapingdog.SearchRequest{
		Query:   query,
		Country: country,
		Results: j.results,
	})
	if err != nil {
		zap.L().Warn("discovery: search proxy failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return &Finding{
			Found:      false,
			Confidence: 0,
			Reasoning:  "search proxy call failed",
			RawError:   err.Error(),
		}, nil
	}

	results := toSearchResults(resp.OrganicResults)
	if len(results) == 0 {
		return &Finding{
			Found:      false,
			Confidence: noResultsConfidence,
			Reasoning:  "no organic search results for business identity",
			Results:    results,
		}, nil
	}

	finding := j.judge(ctx, identity, results)
	finding.Results = results
	return finding, nil
}

// judge runs the cross-referencing inference call and strictly parses its
// structured output. A malformed response is a discovery failure recorded
// with the raw error, not a crash.
func (j *Judge) judge(ctx context.Context, identity Identity, results []model.SearchResult) *Finding {
	prompt := buildUserPrompt(identity, results)

	resp, err := j.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     j.model,
		MaxTokens: j.maxTokens,
		System:    judgeSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		zap.L().Warn("discovery: inference call failed", zap.Error(err))
		return &Finding{
			Found:      false,
			Confidence: 0,
			Reasoning:  "inference call failed",
			RawError:   err.Error(),
		}
	}
	resp.Usage.LogCost(j.model, "discovery_judge")

	finding, parseErr := parseFinding(anthropic.ExtractText(resp))
	if parseErr != nil {
		zap.L().Warn("discovery: malformed judge output", zap.Error(parseErr))
		return &Finding{
			Found:      false,
			Confidence: 0,
			Reasoning:  "judge returned malformed output",
			RawError:   parseErr.Error(),
		}
	}
	return finding
}

// buildUserPrompt embeds the business identity and the ranked result list.
func buildUserPrompt(identity Identity, results []model.SearchResult) string {
	var b strings.Builder
	b.WriteString("Business identity:\n")
	fmt.Fprintf(&b, "Name: %s\n", identity.Name)
	if identity.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", identity.Phone)
	}
	if identity.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", identity.Address)
	}
	if identity.City != "" {
		fmt.Fprintf(&b, "City: %s\n", identity.City)
	}
	if identity.State != "" {
		fmt.Fprintf(&b, "State: %s\n", identity.State)
	}

	b.WriteString("\nSearch results (ranked):\n")
	for _, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n", r.Rank, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   Snippet: %s\n", r.Snippet)
		}
		if r.DisplayedLink != "" {
			fmt.Fprintf(&b, "   Displayed: %s\n", r.DisplayedLink)
		}
	}
	return b.String()
}

// parseFinding strictly parses the judge's JSON verdict.
func parseFinding(text string) (*Finding, error) {
	cleaned := stripFences(text)

	var raw struct {
		Found        bool         `json:"found"`
		URL          *string      `json:"url"`
		Confidence   float64      `json:"confidence"`
		Reasoning    string       `json:"reasoning"`
		MatchSignals MatchSignals `json:"match_signals"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrapf(err, "discovery: parse judge output %q", truncate(text, 200))
	}

	f := &Finding{
		Found:        raw.Found,
		Confidence:   raw.Confidence,
		Reasoning:    raw.Reasoning,
		MatchSignals: raw.MatchSignals,
	}
	if raw.URL != nil {
		f.URL = *raw.URL
	}
	if f.Found && f.URL == "" {
		return nil, eris.New("discovery: judge reported found without a url")
	}
	return f, nil
}

// stripFences removes markdown code fences and isolates the JSON object.
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toSearchResults(organic []scrapingdog.OrganicResult) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(organic))
	for i, r := range organic {
		rank := r.Rank
		if rank == 0 {
			rank = i + 1
		}
		out = append(out, model.SearchResult{
			Title:         r.Title,
			URL:           r.Link,
			Snippet:       r.Snippet,
			DisplayedLink: r.DisplayedLink,
			Rank:          rank,
		})
	}
	return out
}

func countryCode(country string) string {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "", "us", "usa", "united states":
		return "us"
	case "ca", "canada":
		return "ca"
	default:
		if len(country) == 2 {
			return strings.ToLower(country)
		}
		return "us"
	}
}
