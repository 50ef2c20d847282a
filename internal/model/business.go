package model

import (
	"time"
)

// ValidationState represents the authoritative website-validation status of a
// business. Transitions are one-directional except for the operator re_run
// decision, which resets to StateNeedsDiscovery.
type ValidationState string

const (
	// StateNeedsDiscovery means no usable URL exists and rediscovery has not
	// been exhausted yet.
	StateNeedsDiscovery ValidationState = "NEEDS_DISCOVERY"
	// StateValidOutscraper means the directory-supplied URL was confirmed
	// reachable and legitimate.
	StateValidOutscraper ValidationState = "VALID_OUTSCRAPER"
	// StateValidManual means the URL was confirmed or corrected by an operator.
	StateValidManual ValidationState = "VALID_MANUAL"
	// StateConfirmedNoWebsite means discovery is exhausted and no website exists.
	StateConfirmedNoWebsite ValidationState = "CONFIRMED_NO_WEBSITE"
	// StateNeedsHumanReview means automated signals conflict or confidence is
	// below threshold. Terminal until an operator decides.
	StateNeedsHumanReview ValidationState = "NEEDS_HUMAN_REVIEW"
)

// Terminal reports whether the state is final absent an operator override.
func (s ValidationState) Terminal() bool {
	switch s {
	case StateValidOutscraper, StateValidManual, StateConfirmedNoWebsite:
		return true
	}
	return false
}

// MetadataSource identifies which channel currently supplies website_url.
type MetadataSource string

const (
	SourceNone        MetadataSource = "none"
	SourceOutscraper  MetadataSource = "outscraper"
	SourceScrapingdog MetadataSource = "scrapingdog"
	SourceManual      MetadataSource = "manual"
)

// Discovery method keys for WebsiteMetadata.DiscoveryAttempts.
const (
	MethodOutscraper  = "outscraper"
	MethodScrapingdog = "scrapingdog"
	MethodManual      = "manual"
)

// InvalidReason tags why a candidate URL was rejected.
type InvalidReason string

const (
	ReasonWrongBusiness InvalidReason = "wrong_business"
	ReasonNoContact     InvalidReason = "no_contact"
)

// Business is a lead ingested from the directory-scraping provider, subject
// to website validation before it is eligible for outreach.
type Business struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	Address     string          `json:"address,omitempty"`
	City        string          `json:"city,omitempty"`
	State       string          `json:"state,omitempty"`
	Country     string          `json:"country,omitempty"`
	WebsiteURL  *string         `json:"website_url,omitempty"`
	Status      ValidationState `json:"website_validation_status"`
	ValidatedAt *time.Time      `json:"website_validated_at,omitempty"`
	Metadata    WebsiteMetadata `json:"website_metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WebsiteMetadata is the accumulated, append-only ledger of validation
// history and discovery attempts for one business. All mutation goes through
// the metadata package; history entries are never edited in place.
type WebsiteMetadata struct {
	Source            MetadataSource              `json:"source"`
	SourceTimestamp   *time.Time                  `json:"source_timestamp,omitempty"`
	ValidationHistory []ValidationHistoryEntry    `json:"validation_history"`
	DiscoveryAttempts map[string]DiscoveryAttempt `json:"discovery_attempts"`
	Notes             string                      `json:"notes,omitempty"`
}

// ValidationHistoryEntry records one automated or manual validation attempt.
// Immutable once appended; the full list reconstructs why a business carries
// its current status.
type ValidationHistoryEntry struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	URL            string        `json:"url,omitempty"`
	Verdict        string        `json:"verdict"`
	Confidence     float64       `json:"confidence"`
	Reasoning      string        `json:"reasoning,omitempty"`
	Recommendation string        `json:"recommendation,omitempty"`
	InvalidReason  InvalidReason `json:"invalid_reason,omitempty"`
	Operator       string        `json:"operator,omitempty"`
}

// DiscoveryAttempt tracks one discovery method's single allowed automatic
// run. Its presence with Attempted=true gates repeat spend on the paid
// search and inference pipeline.
type DiscoveryAttempt struct {
	Attempted   bool       `json:"attempted"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	FoundURL    bool       `json:"found_url"`
	URL         string     `json:"url,omitempty"`
	Valid       bool       `json:"valid"`
	Notes       string     `json:"notes,omitempty"`
}

// Verdicts recorded in validation history entries.
const (
	VerdictValid       = "valid"
	VerdictInvalid     = "invalid"
	VerdictNoWebsite   = "no_website"
	VerdictNeedsReview = "needs_review"
	VerdictReRun       = "re_run"
)
