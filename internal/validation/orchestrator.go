// Package validation sequences the reachability checker and the discovery
// judge over a business's current state, updates the ledger, and decides the
// next authoritative validation state.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/discovery"
	"github.com/sells-group/leadcheck/internal/metadata"
	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/internal/reachability"
	"github.com/sells-group/leadcheck/internal/store"
)

// Confidence routing thresholds for judge findings.
const (
	// confidentThreshold accepts a finding outright when corroborated by a
	// phone or address match.
	confidentThreshold = 0.8
	// reviewThreshold parks a finding for human review instead of discarding.
	reviewThreshold = 0.5
)

// Disposition summarizes what Process decided for one business.
type Disposition string

const (
	DispositionValid     Disposition = "valid"
	DispositionNoWebsite Disposition = "no_website"
	DispositionReview    Disposition = "needs_review"
	DispositionSkipped   Disposition = "skipped"
	DispositionPending   Disposition = "pending"
)

// Outcome reports the result of processing one business.
type Outcome struct {
	BusinessID  string
	Disposition Disposition
	State       model.ValidationState
	URL         string
	Reasoning   string
}

// Locker guards a discovery run against duplicate concurrent spend.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a Locker for a business's search parameters. A nil
// factory disables locking.
type LockFactory func(name, city, state string) Locker

// Orchestrator drives the website validation state machine per business.
type Orchestrator struct {
	store    store.Store
	checker  *reachability.Checker
	judge    *discovery.Judge
	newLock  LockFactory
	maxTries int
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(st store.Store, checker *reachability.Checker, judge *discovery.Judge, newLock LockFactory) *Orchestrator {
	return &Orchestrator{
		store:    st,
		checker:  checker,
		judge:    judge,
		newLock:  newLock,
		maxTries: metadata.DefaultMaxAttempts,
	}
}

// Process runs one full validation cycle for a business: candidate URL check
// first, then gated rediscovery. Status and ledger are written together in a
// single store transaction; external failures degrade to recorded outcomes.
func (o *Orchestrator) Process(ctx context.Context, b *model.Business) (*Outcome, error) {
	log := zap.L().With(zap.String("business_id", b.ID), zap.String("name", b.Name))

	if b.Status != model.StateNeedsDiscovery {
		return &Outcome{
			BusinessID:  b.ID,
			Disposition: DispositionSkipped,
			State:       b.Status,
			Reasoning:   "business is not awaiting validation",
		}, nil
	}

	if b.WebsiteURL != nil && *b.WebsiteURL != "" {
		return o.validateCandidate(ctx, b, log)
	}
	return o.rediscover(ctx, b, b.Metadata, log)
}

// validateCandidate checks the directory-supplied URL. A confirmed URL is
// terminal; a dead one falls through to rediscovery in the same cycle.
func (o *Orchestrator) validateCandidate(ctx context.Context, b *model.Business, log *zap.Logger) (*Outcome, error) {
	candidate := *b.WebsiteURL
	result := o.checker.Validate(ctx, candidate)

	meta := metadata.AddValidationEntry(b.Metadata, candidate, result)

	if result.IsValid {
		meta = metadata.UpdateSource(meta, model.SourceOutscraper, candidate)
		update := store.ValidationUpdate{
			BusinessID:     b.ID,
			Status:         model.StateValidOutscraper,
			WebsiteURL:     &candidate,
			Source:         model.SourceOutscraper,
			Notes:          meta.Notes,
			HistoryEntries: newEntries(b.Metadata, meta),
		}
		if err := o.store.ApplyValidation(ctx, update); err != nil {
			return nil, eris.Wrapf(err, "validation: persist valid outcome for %s", b.ID)
		}
		log.Info("candidate url confirmed", zap.String("url", candidate))
		return &Outcome{
			BusinessID:  b.ID,
			Disposition: DispositionValid,
			State:       model.StateValidOutscraper,
			URL:         candidate,
		}, nil
	}

	log.Info("candidate url rejected",
		zap.String("url", candidate),
		zap.String("reason", result.Error),
	)

	// Carry the rejection entry into the rediscovery path so both commit in
	// one transaction. The original metadata stays the delta baseline; the
	// working copy holds entries that are not persisted yet.
	working := *b
	working.Metadata = meta
	working.WebsiteURL = nil
	return o.rediscover(ctx, &working, b.Metadata, log)
}

// rediscover runs the judge behind the idempotency gate and the distributed
// lock, then routes on confidence. baseline is the last persisted metadata;
// every write computes its history delta against it.
func (o *Orchestrator) rediscover(ctx context.Context, b *model.Business, baseline model.WebsiteMetadata, log *zap.Logger) (*Outcome, error) {
	if !metadata.ShouldTriggerDiscovery(b.Metadata, o.maxTries) {
		if pending := newEntries(baseline, b.Metadata); len(pending) > 0 {
			// The candidate rejection must still reach the ledger, and with
			// no discovery left a human breaks the tie.
			update := store.ValidationUpdate{
				BusinessID:     b.ID,
				Status:         model.StateNeedsHumanReview,
				WebsiteURL:     nil,
				Source:         b.Metadata.Source,
				Notes:          b.Metadata.Notes,
				HistoryEntries: pending,
			}
			if err := o.store.ApplyValidation(ctx, update); err != nil {
				return nil, eris.Wrapf(err, "validation: persist rejection for %s", b.ID)
			}
			log.Info("candidate rejected with rediscovery exhausted; routed to review")
			return &Outcome{
				BusinessID:  b.ID,
				Disposition: DispositionReview,
				State:       model.StateNeedsHumanReview,
				Reasoning:   "candidate url failed and rediscovery is exhausted",
			}, nil
		}

		// Not an error: the gate exists precisely to make repeat calls free.
		log.Debug("rediscovery gate closed; skipping")
		return &Outcome{
			BusinessID:  b.ID,
			Disposition: DispositionSkipped,
			State:       b.Status,
			Reasoning:   "rediscovery already attempted",
		}, nil
	}

	if o.newLock != nil {
		lk := o.newLock(b.Name, b.City, b.State)
		acquired, err := lk.Acquire(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "validation: acquire discovery lock for %s", b.ID)
		}
		if !acquired {
			log.Info("discovery already in flight elsewhere; skipping")
			return &Outcome{
				BusinessID:  b.ID,
				Disposition: DispositionSkipped,
				State:       b.Status,
				Reasoning:   "concurrent discovery in progress",
			}, nil
		}
		defer func() {
			if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release discovery lock failed", zap.Error(err))
			}
		}()
	}

	finding, err := o.judge.Discover(ctx, discovery.Identity{
		Name:    b.Name,
		Phone:   b.Phone,
		Address: b.Address,
		City:    b.City,
		State:   b.State,
		Country: b.Country,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "validation: discover for %s", b.ID)
	}

	return o.routeFinding(ctx, b, baseline, finding, log)
}

// routeFinding converts a judge finding into the next state, recording both
// the history entry and the spent discovery attempt atomically.
func (o *Orchestrator) routeFinding(ctx context.Context, b *model.Business, baseline model.WebsiteMetadata, finding *discovery.Finding, log *zap.Logger) (*Outcome, error) {
	corroborated := finding.MatchSignals.PhoneMatch || finding.MatchSignals.AddressMatch

	var (
		status  model.ValidationState
		url     *string
		source  = b.Metadata.Source
		verdict string
		disp    Disposition
	)

	switch {
	case finding.Found && finding.Confidence >= confidentThreshold && corroborated:
		// Confident pick still has to resolve to a live page.
		check := o.checker.Validate(ctx, finding.URL)
		if check.IsValid {
			status = model.StateValidOutscraper
			u := finding.URL
			url = &u
			source = model.SourceScrapingdog
			verdict = model.VerdictValid
			disp = DispositionValid
		} else {
			// Judge and checker disagree: conflicting signals go to a human.
			status = model.StateNeedsHumanReview
			verdict = model.VerdictNeedsReview
			disp = DispositionReview
			finding.Reasoning = fmt.Sprintf("%s (url failed reachability: %s)", finding.Reasoning, check.Error)
		}

	case finding.Found && finding.Confidence >= reviewThreshold:
		status = model.StateNeedsHumanReview
		verdict = model.VerdictNeedsReview
		disp = DispositionReview

	case !finding.Found && finding.Confidence >= confidentThreshold:
		status = model.StateConfirmedNoWebsite
		verdict = model.VerdictNoWebsite
		disp = DispositionNoWebsite

	default:
		// Low-confidence or failed discovery; a human breaks the tie.
		status = model.StateNeedsHumanReview
		verdict = model.VerdictNeedsReview
		disp = DispositionReview
	}

	notes := finding.Reasoning
	if finding.RawError != "" {
		notes = fmt.Sprintf("%s; raw error: %s", notes, finding.RawError)
	}

	reasoning := finding.Reasoning
	if signals := signalSummary(finding.MatchSignals); signals != "" {
		reasoning = fmt.Sprintf("%s [signals: %s]", reasoning, signals)
	}

	meta := metadata.AddEntry(b.Metadata, model.ValidationHistoryEntry{
		URL:            finding.URL,
		Verdict:        verdict,
		Confidence:     finding.Confidence,
		Reasoning:      reasoning,
		Recommendation: string(disp),
	})
	meta = metadata.RecordDiscoveryAttempt(meta, model.MethodScrapingdog,
		finding.Found, finding.URL, disp == DispositionValid, notes)
	if url != nil {
		meta = metadata.UpdateSource(meta, source, *url)
	}

	update := store.ValidationUpdate{
		BusinessID:     b.ID,
		Status:         status,
		WebsiteURL:     url,
		Source:         meta.Source,
		Notes:          meta.Notes,
		HistoryEntries: newEntries(baseline, meta),
		AttemptUpserts: map[string]model.DiscoveryAttempt{
			model.MethodScrapingdog: meta.DiscoveryAttempts[model.MethodScrapingdog],
		},
	}
	if err := o.store.ApplyValidation(ctx, update); err != nil {
		return nil, eris.Wrapf(err, "validation: persist finding for %s", b.ID)
	}

	log.Info("discovery routed",
		zap.String("state", string(status)),
		zap.Float64("confidence", finding.Confidence),
		zap.Bool("found", finding.Found),
	)

	return &Outcome{
		BusinessID:  b.ID,
		Disposition: disp,
		State:       status,
		URL:         finding.URL,
		Reasoning:   finding.Reasoning,
	}, nil
}

// signalSummary renders the corroborating signals for the audit trail, so an
// operator sees the breakdown without parsing judge prose.
func signalSummary(s discovery.MatchSignals) string {
	var parts []string
	if s.PhoneMatch {
		parts = append(parts, "phone")
	}
	if s.AddressMatch {
		parts = append(parts, "address")
	}
	if s.NameMatch {
		parts = append(parts, "name")
	}
	if s.LocationMatch {
		parts = append(parts, "location")
	}
	return strings.Join(parts, ",")
}

// newEntries returns the history entries present in next but not in prev.
// The ledger is append-only, so the delta is always a suffix.
func newEntries(prev, next model.WebsiteMetadata) []model.ValidationHistoryEntry {
	if len(next.ValidationHistory) <= len(prev.ValidationHistory) {
		return nil
	}
	return next.ValidationHistory[len(prev.ValidationHistory):]
}
