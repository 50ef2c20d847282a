package review

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadcheck/internal/model"
	"github.com/sells-group/leadcheck/internal/store"
)

// fakeStore serves one business and records writes.
type fakeStore struct {
	store.Store
	business   *model.Business
	sites      []model.GeneratedSite
	applied    []store.ValidationUpdate
	superseded int
}

func (f *fakeStore) GetBusiness(_ context.Context, id string) (*model.Business, error) {
	if f.business == nil || f.business.ID != id {
		return nil, eris.Wrapf(store.ErrNotFound, "business %s", id)
	}
	b := *f.business
	return &b, nil
}

func (f *fakeStore) ListPendingReview(_ context.Context, _ store.ReviewFilter) ([]model.Business, error) {
	if f.business == nil {
		return nil, nil
	}
	return []model.Business{*f.business}, nil
}

func (f *fakeStore) ListGeneratedSites(_ context.Context, _ string) ([]model.GeneratedSite, error) {
	return f.sites, nil
}

func (f *fakeStore) ApplyValidation(_ context.Context, update store.ValidationUpdate) error {
	f.applied = append(f.applied, update)
	f.business.Status = update.Status
	f.business.WebsiteURL = update.WebsiteURL
	return nil
}

func (f *fakeStore) SupersedeGeneratedSites(_ context.Context, _ string) (int64, error) {
	f.superseded++
	return int64(len(f.sites)), nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) EnqueueDiscovery(_ context.Context, businessID, _ string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, businessID)
	return nil
}

func (q *fakeQueue) Close() {}

func pendingBusiness() *model.Business {
	return &model.Business{
		ID:     "biz-1",
		Name:   "Summit Plumbing",
		Status: model.StateNeedsHumanReview,
		Metadata: model.WebsiteMetadata{
			Source: model.SourceNone,
			ValidationHistory: []model.ValidationHistoryEntry{{
				ID:         "e1",
				URL:        "https://maybe.example.com",
				Verdict:    model.VerdictNeedsReview,
				Confidence: 0.6,
				Reasoning:  "name match only",
			}},
			DiscoveryAttempts: map[string]model.DiscoveryAttempt{
				model.MethodScrapingdog: {Attempted: true, FoundURL: true, URL: "https://maybe.example.com"},
			},
		},
	}
}

func TestListPending(t *testing.T) {
	st := &fakeStore{
		business: pendingBusiness(),
		sites:    []model.GeneratedSite{{ID: "site-1", BusinessID: "biz-1", Status: model.SiteStatusCompleted}},
	}
	svc := NewService(st, nil, nil)

	items, err := svc.ListPending(context.Background(), store.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "biz-1", items[0].Business.ID)
	require.NotNil(t, items[0].LastValidation)
	assert.Equal(t, "https://maybe.example.com", items[0].LastValidation.URL)
	require.Len(t, items[0].GeneratedSites, 1)
	assert.Nil(t, items[0].Preview, "no previewer configured")
}

func TestDecide_ValidWebsite(t *testing.T) {
	st := &fakeStore{
		business: pendingBusiness(),
		sites:    []model.GeneratedSite{{ID: "site-1", Status: model.SiteStatusPublished}},
	}
	svc := NewService(st, nil, nil)

	b, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionValidWebsite,
		URL:      "maybe.example.com",
		Operator: "alex",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateValidManual, b.Status)

	require.Len(t, st.applied, 1)
	update := st.applied[0]
	assert.Equal(t, model.SourceManual, update.Source)
	require.NotNil(t, update.WebsiteURL)
	assert.Equal(t, "https://maybe.example.com", *update.WebsiteURL, "decision url is normalized")
	require.Len(t, update.HistoryEntries, 1)
	assert.Equal(t, "alex", update.HistoryEntries[0].Operator)

	assert.Equal(t, 1, st.superseded, "a real website obsoletes generated sites")
}

func TestDecide_ValidWebsiteRequiresURL(t *testing.T) {
	svc := NewService(&fakeStore{business: pendingBusiness()}, nil, nil)

	_, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionValidWebsite,
		Operator: "alex",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingURL))
}

func TestDecide_NoWebsite(t *testing.T) {
	st := &fakeStore{business: pendingBusiness()}
	svc := NewService(st, nil, nil)

	b, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionNoWebsite,
		Notes:    "called them, no site",
		Operator: "alex",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmedNoWebsite, b.Status)
	assert.Nil(t, b.WebsiteURL)
	assert.Zero(t, st.superseded, "confirmed no-website keeps generated sites live")
}

func TestDecide_EmptyNotesPreserveExisting(t *testing.T) {
	b := pendingBusiness()
	b.Metadata.Notes = "source url: https://maybe.example.com"
	st := &fakeStore{business: b}
	svc := NewService(st, nil, nil)

	_, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionNoWebsite,
		Operator: "alex",
	})
	require.NoError(t, err)
	require.Len(t, st.applied, 1)
	assert.Equal(t, "source url: https://maybe.example.com", st.applied[0].Notes,
		"a decision without notes must not wipe the accumulated notes")
}

func TestDecide_ReRunReopensGateAndEnqueues(t *testing.T) {
	st := &fakeStore{business: pendingBusiness()}
	queue := &fakeQueue{}
	svc := NewService(st, nil, queue)

	b, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionReRun,
		Notes:    "judge saw a stale snapshot",
		Operator: "alex",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateNeedsDiscovery, b.Status)

	require.Len(t, st.applied, 1)
	update := st.applied[0]
	assert.Equal(t, []string{model.MethodScrapingdog}, update.AttemptRemovals)
	assert.Nil(t, update.WebsiteURL)
	require.Len(t, update.HistoryEntries, 1)
	assert.Equal(t, model.VerdictReRun, update.HistoryEntries[0].Verdict)

	assert.Equal(t, []string{"biz-1"}, queue.enqueued)
}

func TestDecide_ReRunSurvivesQueueFailure(t *testing.T) {
	st := &fakeStore{business: pendingBusiness()}
	svc := NewService(st, nil, &fakeQueue{err: eris.New("nats down")})

	b, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionReRun,
		Operator: "alex",
	})
	require.NoError(t, err, "the reset must commit even when publishing fails")
	assert.Equal(t, model.StateNeedsDiscovery, b.Status)
}

func TestDecide_RejectsNonPendingBusiness(t *testing.T) {
	b := pendingBusiness()
	b.Status = model.StateValidOutscraper
	svc := NewService(&fakeStore{business: b}, nil, nil)

	_, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     model.DecisionNoWebsite,
		Operator: "alex",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotPendingReview))
}

func TestDecide_UnknownKind(t *testing.T) {
	svc := NewService(&fakeStore{business: pendingBusiness()}, nil, nil)

	_, err := svc.Decide(context.Background(), "biz-1", model.ReviewDecision{
		Kind:     "promote",
		Operator: "alex",
	})
	require.Error(t, err)
}
