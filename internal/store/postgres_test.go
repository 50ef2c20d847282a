package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadcheck/internal/model"
)

// newMockStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

const testBusinessID = "8d7f4c2e-9b1a-4f3d-8e6c-1a2b3c4d5e6f"

func businessRow(mock pgxmock.PgxPoolIface, status string, websiteURL *string) *pgxmock.Rows {
	now := time.Now().UTC()
	return mock.NewRows([]string{
		"id", "name", "phone", "address", "city", "state", "country",
		"website_url", "status", "validated_at", "source", "source_timestamp",
		"notes", "created_at", "updated_at",
	}).AddRow(
		testBusinessID, "Summit Plumbing", "(512) 555-0134", "812 Ranch Rd",
		"Austin", "TX", "US", websiteURL, status, (*time.Time)(nil), "outscraper",
		&now, "", now, now,
	)
}

func expectLedgerLoad(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`SELECT id, ts, url, verdict, confidence, reasoning, recommendation, invalid_reason, operator`).
		WithArgs(testBusinessID).
		WillReturnRows(mock.NewRows([]string{
			"id", "ts", "url", "verdict", "confidence", "reasoning",
			"recommendation", "invalid_reason", "operator",
		}))
	mock.ExpectQuery(`SELECT method, attempted, attempted_at, found_url, url, valid, notes`).
		WithArgs(testBusinessID).
		WillReturnRows(mock.NewRows([]string{
			"method", "attempted", "attempted_at", "found_url", "url", "valid", "notes",
		}))
}

func TestGetBusiness(t *testing.T) {
	s, mock := newMockStore(t)

	url := "https://summitplumbingatx.com"
	mock.ExpectQuery(`SELECT (.+) FROM businesses WHERE id = \$1`).
		WithArgs(testBusinessID).
		WillReturnRows(businessRow(mock, "NEEDS_DISCOVERY", &url))
	expectLedgerLoad(mock)

	b, err := s.GetBusiness(context.Background(), testBusinessID)
	require.NoError(t, err)
	assert.Equal(t, "Summit Plumbing", b.Name)
	assert.Equal(t, model.StateNeedsDiscovery, b.Status)
	require.NotNil(t, b.WebsiteURL)
	assert.Equal(t, url, *b.WebsiteURL)
	assert.NotNil(t, b.Metadata.ValidationHistory)
	assert.NotNil(t, b.Metadata.DiscoveryAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusiness_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM businesses WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBusiness(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusiness_LedgerRestored(t *testing.T) {
	s, mock := newMockStore(t)

	attemptedAt := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM businesses WHERE id = \$1`).
		WithArgs(testBusinessID).
		WillReturnRows(businessRow(mock, "NEEDS_HUMAN_REVIEW", nil))
	mock.ExpectQuery(`SELECT id, ts, url, verdict, confidence, reasoning, recommendation, invalid_reason, operator`).
		WithArgs(testBusinessID).
		WillReturnRows(mock.NewRows([]string{
			"id", "ts", "url", "verdict", "confidence", "reasoning",
			"recommendation", "invalid_reason", "operator",
		}).
			AddRow("e1", attemptedAt, "https://a.example.com", "invalid", 0.0, "status 404", "", "", "").
			AddRow("e2", attemptedAt, "https://b.example.com", "needs_review", 0.6, "name match only", "needs_review", "", ""))
	mock.ExpectQuery(`SELECT method, attempted, attempted_at, found_url, url, valid, notes`).
		WithArgs(testBusinessID).
		WillReturnRows(mock.NewRows([]string{
			"method", "attempted", "attempted_at", "found_url", "url", "valid", "notes",
		}).AddRow("scrapingdog", true, &attemptedAt, true, "https://b.example.com", false, ""))

	b, err := s.GetBusiness(context.Background(), testBusinessID)
	require.NoError(t, err)
	require.Len(t, b.Metadata.ValidationHistory, 2)
	assert.Equal(t, "https://a.example.com", b.Metadata.ValidationHistory[0].URL, "history order follows insertion")
	attempt, ok := b.Metadata.DiscoveryAttempts[model.MethodScrapingdog]
	require.True(t, ok)
	assert.True(t, attempt.Attempted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyValidation_SingleTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	url := "https://summitplumbingatx.com"
	attemptedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE businesses SET`).
		WithArgs(testBusinessID, &url, "VALID_OUTSCRAPER", pgxmock.AnyArg(),
			"scrapingdog", pgxmock.AnyArg(), "source url: https://summitplumbingatx.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO validation_history`).
		WithArgs(pgxmock.AnyArg(), testBusinessID, pgxmock.AnyArg(), url, "valid",
			0.95, "phone match", "valid", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO discovery_attempts`).
		WithArgs(testBusinessID, "scrapingdog", true, &attemptedAt, true, url, true, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ApplyValidation(context.Background(), ValidationUpdate{
		BusinessID: testBusinessID,
		Status:     model.StateValidOutscraper,
		WebsiteURL: &url,
		Source:     model.SourceScrapingdog,
		Notes:      "source url: https://summitplumbingatx.com",
		HistoryEntries: []model.ValidationHistoryEntry{{
			URL:            url,
			Verdict:        model.VerdictValid,
			Confidence:     0.95,
			Reasoning:      "phone match",
			Recommendation: "valid",
		}},
		AttemptUpserts: map[string]model.DiscoveryAttempt{
			model.MethodScrapingdog: {
				Attempted:   true,
				AttemptedAt: &attemptedAt,
				FoundURL:    true,
				URL:         url,
				Valid:       true,
			},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyValidation_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE businesses SET`).
		WithArgs("ghost", pgxmock.AnyArg(), "CONFIRMED_NO_WEBSITE", pgxmock.AnyArg(),
			"manual", pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.ApplyValidation(context.Background(), ValidationUpdate{
		BusinessID: "ghost",
		Status:     model.StateConfirmedNoWebsite,
		Source:     model.SourceManual,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyValidation_AttemptRemoval(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE businesses SET`).
		WithArgs(testBusinessID, pgxmock.AnyArg(), "NEEDS_DISCOVERY", pgxmock.AnyArg(),
			"none", pgxmock.AnyArg(), "operator re_run", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM discovery_attempts WHERE business_id = \$1 AND method = \$2`).
		WithArgs(testBusinessID, "scrapingdog").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.ApplyValidation(context.Background(), ValidationUpdate{
		BusinessID:      testBusinessID,
		Status:          model.StateNeedsDiscovery,
		Source:          model.SourceNone,
		Notes:           "operator re_run",
		AttemptRemovals: []string{model.MethodScrapingdog},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupersedeGeneratedSites(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE generated_sites SET status = 'superseded'`).
		WithArgs(testBusinessID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.SupersedeGeneratedSites(context.Background(), testBusinessID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForDiscovery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM businesses\s+WHERE status = \$1 AND \(website_url IS NULL OR website_url = ''\)`).
		WithArgs("NEEDS_DISCOVERY", 10).
		WillReturnRows(businessRow(mock, "NEEDS_DISCOVERY", nil))
	expectLedgerLoad(mock)

	businesses, err := s.ListForDiscovery(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, businesses, 1)
	assert.Nil(t, businesses[0].WebsiteURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM businesses GROUP BY status`).
		WillReturnRows(mock.NewRows([]string{"status", "count"}).
			AddRow("NEEDS_DISCOVERY", 12).
			AddRow("VALID_OUTSCRAPER", 7))

	counts, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, counts[model.StateNeedsDiscovery])
	assert.Equal(t, 7, counts[model.StateValidOutscraper])
	assert.NoError(t, mock.ExpectationsWereMet())
}
