// Package metadata implements the append-only website-validation ledger.
// Every mutator deep-copies the incoming WebsiteMetadata and returns a new
// value; callers persist the returned structure. History entries are never
// rewritten, so the ledger always supports full reconstruction of how a
// business arrived at its current status.
package metadata

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/internal/reachability"
)

// DefaultMaxAttempts is the number of automatic rediscovery runs allowed per
// method before the gate closes. Only an operator re_run reopens it.
const DefaultMaxAttempts = 1

// New creates the initial ledger for a freshly ingested business.
func New(source model.MetadataSource) model.WebsiteMetadata {
	now := time.Now().UTC()
	m := model.WebsiteMetadata{
		Source:            source,
		ValidationHistory: []model.ValidationHistoryEntry{},
		DiscoveryAttempts: map[string]model.DiscoveryAttempt{},
	}
	if source != model.SourceNone {
		m.SourceTimestamp = &now
	}
	return m
}

// Clone returns a deep copy of the ledger. Slices and maps are reallocated
// so appends to the copy can never alias the original's backing storage.
func Clone(m model.WebsiteMetadata) model.WebsiteMetadata {
	out := m

	out.ValidationHistory = make([]model.ValidationHistoryEntry, len(m.ValidationHistory))
	copy(out.ValidationHistory, m.ValidationHistory)

	out.DiscoveryAttempts = make(map[string]model.DiscoveryAttempt, len(m.DiscoveryAttempts))
	for k, v := range m.DiscoveryAttempts {
		if v.AttemptedAt != nil {
			ts := *v.AttemptedAt
			v.AttemptedAt = &ts
		}
		out.DiscoveryAttempts[k] = v
	}

	if m.SourceTimestamp != nil {
		ts := *m.SourceTimestamp
		out.SourceTimestamp = &ts
	}
	return out
}

// AddValidationEntry appends one reachability result to the history.
func AddValidationEntry(m model.WebsiteMetadata, url string, result reachability.Result) model.WebsiteMetadata {
	out := Clone(m)

	verdict := model.VerdictInvalid
	if result.IsValid {
		verdict = model.VerdictValid
	}

	out.ValidationHistory = append(out.ValidationHistory, model.ValidationHistoryEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		URL:       url,
		Verdict:   verdict,
		Reasoning: result.Error,
	})
	return out
}

// AddEntry appends an arbitrary history entry, filling ID and Timestamp when
// absent. Used for judge verdicts and operator decisions.
func AddEntry(m model.WebsiteMetadata, entry model.ValidationHistoryEntry) model.WebsiteMetadata {
	out := Clone(m)
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	out.ValidationHistory = append(out.ValidationHistory, entry)
	return out
}

// UpdateSource switches the channel that supplies website_url.
func UpdateSource(m model.WebsiteMetadata, source model.MetadataSource, url string) model.WebsiteMetadata {
	out := Clone(m)
	now := time.Now().UTC()
	out.Source = source
	out.SourceTimestamp = &now
	if url != "" && out.Notes == "" {
		out.Notes = "source url: " + url
	}
	return out
}

// RecordDiscoveryAttempt marks a discovery method as spent and stores what it
// found. One entry per method; a second automatic attempt never happens while
// the entry exists (see ShouldTriggerDiscovery).
func RecordDiscoveryAttempt(m model.WebsiteMetadata, method string, found bool, url string, valid bool, notes string) model.WebsiteMetadata {
	out := Clone(m)
	now := time.Now().UTC()
	out.DiscoveryAttempts[method] = model.DiscoveryAttempt{
		Attempted:   true,
		AttemptedAt: &now,
		FoundURL:    found,
		URL:         url,
		Valid:       valid,
		Notes:       notes,
	}
	return out
}

// ClearDiscoveryAttempt removes a method's attempt entry, re-enabling it.
// Invoked only from the operator re_run path.
func ClearDiscoveryAttempt(m model.WebsiteMetadata, method string) model.WebsiteMetadata {
	out := Clone(m)
	delete(out.DiscoveryAttempts, method)
	return out
}

// ShouldTriggerDiscovery reports whether automatic rediscovery may run. The
// gate closes after maxAttempts attempted entries for the rediscovery method;
// this is what prevents runaway spend on the paid search pipeline.
func ShouldTriggerDiscovery(m model.WebsiteMetadata, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	attempts := 0
	if a, ok := m.DiscoveryAttempts[model.MethodScrapingdog]; ok && a.Attempted {
		attempts++
	}
	return attempts < maxAttempts
}

// LastValidation returns the most recent history entry, or nil when the
// ledger has none.
func LastValidation(m model.WebsiteMetadata) *model.ValidationHistoryEntry {
	if len(m.ValidationHistory) == 0 {
		return nil
	}
	entry := m.ValidationHistory[len(m.ValidationHistory)-1]
	return &entry
}
