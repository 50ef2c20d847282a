// Package review exposes the human review queue: listing businesses parked
// in NEEDS_HUMAN_REVIEW with enough context to decide quickly, and applying
// operator decisions back onto the state machine.
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/metadata"
	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/internal/reachability"
	"github.com/sells-group/leadcheck/internal/store"
	"github.com/sells-group/leadcheck/pkg/taskqueue"
)

// ErrNotPendingReview is returned when a decision targets a business that is
// not in NEEDS_HUMAN_REVIEW. Decisions are rejected, never silently retargeted.
var ErrNotPendingReview = eris.New("review: business is not pending review")

// ErrMissingURL is returned for a valid_website decision without a URL.
var ErrMissingURL = eris.New("review: valid_website decision requires a url")

// Item is one pending review with the context an operator needs.
type Item struct {
	Business       model.Business                `json:"business"`
	LastValidation *model.ValidationHistoryEntry `json:"last_validation,omitempty"`
	Preview        *reachability.PagePreview     `json:"preview,omitempty"`
	GeneratedSites []model.GeneratedSite         `json:"generated_sites,omitempty"`
}

// Previewer fetches a page preview for the operator UI.
type Previewer interface {
	FetchPreview(ctx context.Context, rawURL string) (*reachability.PagePreview, error)
}

// Service implements the review queue over the store.
type Service struct {
	store     store.Store
	previewer Previewer
	queue     taskqueue.Publisher
}

// NewService creates a Service. previewer and queue may be nil; items then
// ship without previews and re_run decisions rely on the next scheduled
// discovery pass instead of an immediate task.
func NewService(st store.Store, previewer Previewer, queue taskqueue.Publisher) *Service {
	return &Service{store: st, previewer: previewer, queue: queue}
}

// ListPending returns pending reviews, most consequential first. Preview
// fetch failures degrade to an item without a preview.
func (s *Service) ListPending(ctx context.Context, filter store.ReviewFilter) ([]Item, error) {
	businesses, err := s.store.ListPendingReview(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}

	items := make([]Item, 0, len(businesses))
	for i := range businesses {
		b := businesses[i]
		item := Item{Business: b, LastValidation: metadata.LastValidation(b.Metadata)}

		sites, err := s.store.ListGeneratedSites(ctx, b.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "review: load sites for %s", b.ID)
		}
		item.GeneratedSites = sites

		if s.previewer != nil && item.LastValidation != nil && item.LastValidation.URL != "" {
			preview, err := s.previewer.FetchPreview(ctx, item.LastValidation.URL)
			if err != nil {
				zap.L().Debug("preview fetch failed",
					zap.String("business_id", b.ID),
					zap.String("url", item.LastValidation.URL),
					zap.Error(err),
				)
			} else {
				item.Preview = preview
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Decide applies an operator ruling. The status change and its audit entry
// commit in one transaction; a business outside NEEDS_HUMAN_REVIEW is
// rejected with ErrNotPendingReview.
func (s *Service) Decide(ctx context.Context, businessID string, decision model.ReviewDecision) (*model.Business, error) {
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load business %s", businessID)
	}
	if b.Status != model.StateNeedsHumanReview {
		return nil, eris.Wrapf(ErrNotPendingReview, "business %s in state %s", businessID, b.Status)
	}

	switch decision.Kind {
	case model.DecisionValidWebsite:
		return s.decideValid(ctx, b, decision)
	case model.DecisionNoWebsite:
		return s.decideNoWebsite(ctx, b, decision)
	case model.DecisionReRun:
		return s.decideReRun(ctx, b, decision)
	default:
		return nil, eris.Errorf("review: unknown decision %q", decision.Kind)
	}
}

func (s *Service) decideValid(ctx context.Context, b *model.Business, decision model.ReviewDecision) (*model.Business, error) {
	if decision.URL == "" {
		return nil, ErrMissingURL
	}
	url, err := reachability.NormalizeURL(decision.URL)
	if err != nil {
		return nil, eris.Wrap(err, "review: normalize decision url")
	}

	entry := manualEntry(decision, model.VerdictValid)
	entry.URL = url

	update := store.ValidationUpdate{
		BusinessID:     b.ID,
		Status:         model.StateValidManual,
		WebsiteURL:     &url,
		Source:         model.SourceManual,
		Notes:          notesFor(b, decision),
		HistoryEntries: []model.ValidationHistoryEntry{entry},
	}
	if err := s.store.ApplyValidation(ctx, update); err != nil {
		return nil, eris.Wrapf(err, "review: persist valid decision for %s", b.ID)
	}

	// The business owns a real site, so any generated one is obsolete.
	superseded, err := s.store.SupersedeGeneratedSites(ctx, b.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "review: supersede sites for %s", b.ID)
	}
	if superseded > 0 {
		zap.L().Info("generated sites superseded",
			zap.String("business_id", b.ID),
			zap.Int64("count", superseded),
		)
	}
	return s.store.GetBusiness(ctx, b.ID)
}

func (s *Service) decideNoWebsite(ctx context.Context, b *model.Business, decision model.ReviewDecision) (*model.Business, error) {
	update := store.ValidationUpdate{
		BusinessID:     b.ID,
		Status:         model.StateConfirmedNoWebsite,
		WebsiteURL:     nil,
		Source:         model.SourceManual,
		Notes:          notesFor(b, decision),
		HistoryEntries: []model.ValidationHistoryEntry{manualEntry(decision, model.VerdictNoWebsite)},
	}
	if err := s.store.ApplyValidation(ctx, update); err != nil {
		return nil, eris.Wrapf(err, "review: persist no_website decision for %s", b.ID)
	}
	return s.store.GetBusiness(ctx, b.ID)
}

// decideReRun resets the business for another paid discovery pass: the spent
// attempt is cleared so the idempotency gate reopens.
func (s *Service) decideReRun(ctx context.Context, b *model.Business, decision model.ReviewDecision) (*model.Business, error) {
	update := store.ValidationUpdate{
		BusinessID:      b.ID,
		Status:          model.StateNeedsDiscovery,
		WebsiteURL:      nil,
		Source:          model.SourceNone,
		Notes:           notesFor(b, decision),
		HistoryEntries:  []model.ValidationHistoryEntry{manualEntry(decision, model.VerdictReRun)},
		AttemptRemovals: []string{model.MethodScrapingdog},
	}
	if err := s.store.ApplyValidation(ctx, update); err != nil {
		return nil, eris.Wrapf(err, "review: persist re_run decision for %s", b.ID)
	}

	if s.queue != nil {
		if err := s.queue.EnqueueDiscovery(ctx, b.ID, "operator re_run"); err != nil {
			// The reset committed; the worker's next sweep picks it up anyway.
			zap.L().Warn("enqueue discovery failed",
				zap.String("business_id", b.ID),
				zap.Error(err),
			)
		}
	}
	return s.store.GetBusiness(ctx, b.ID)
}

// notesFor keeps the business's accumulated notes when the decision supplies
// none; the notes column is written whole on every update.
func notesFor(b *model.Business, decision model.ReviewDecision) string {
	if decision.Notes != "" {
		return decision.Notes
	}
	return b.Metadata.Notes
}

func manualEntry(decision model.ReviewDecision, verdict string) model.ValidationHistoryEntry {
	return model.ValidationHistoryEntry{
		Verdict:        verdict,
		Confidence:     1.0,
		Reasoning:      decision.Notes,
		Recommendation: "operator decision",
		Operator:       decision.Operator,
	}
}
