package model

import "time"

// SiteStatus represents the lifecycle of an AI-generated website.
type SiteStatus string

const (
	SiteStatusDraft      SiteStatus = "draft"
	SiteStatusGenerating SiteStatus = "generating"
	SiteStatusCompleted  SiteStatus = "completed"
	SiteStatusPublished  SiteStatus = "published"
	// SiteStatusSuperseded marks a generated site obsolete because the
	// business turned out to own a legitimate website.
	SiteStatusSuperseded SiteStatus = "superseded"
)

// GeneratedSite is a site produced by the generation pipeline for a business
// believed to have no website. This core only reads and supersedes them.
type GeneratedSite struct {
	ID         string     `json:"id"`
	BusinessID string     `json:"business_id"`
	Status     SiteStatus `json:"status"`
	URL        string     `json:"url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SearchResult is one organic result returned by the search proxy.
type SearchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	DisplayedLink string `json:"displayed_link,omitempty"`
	Rank          int    `json:"rank"`
}

// ReviewDecisionKind enumerates operator decisions on a pending review.
type ReviewDecisionKind string

const (
	DecisionValidWebsite ReviewDecisionKind = "valid_website"
	DecisionNoWebsite    ReviewDecisionKind = "no_website"
	DecisionReRun        ReviewDecisionKind = "re_run"
)

// ReviewDecision is an operator's ruling on a business parked in
// NEEDS_HUMAN_REVIEW.
type ReviewDecision struct {
	Kind     ReviewDecisionKind `json:"decision"`
	URL      string             `json:"url,omitempty"`
	Notes    string             `json:"notes,omitempty"`
	Operator string             `json:"operator,omitempty"`
}
