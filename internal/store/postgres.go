package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadcheck/internal/db"
	"github.com/sells-group/leadcheck/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool creates a PostgresStore over an existing pool. Used by
// tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema. History and attempts are proper append-only
// child tables rather than a JSON blob, so the never-overwrite invariant
// holds structurally and "no resolved attempt" style queries stay indexable.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return eris.Wrap(err, "postgres: migrate")
}

const schema = `
CREATE TABLE IF NOT EXISTS businesses (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	website_url TEXT,
	status TEXT NOT NULL DEFAULT 'NEEDS_DISCOVERY',
	validated_at TIMESTAMPTZ,
	source TEXT NOT NULL DEFAULT 'none',
	source_timestamp TIMESTAMPTZ,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses (status);

CREATE TABLE IF NOT EXISTS validation_history (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL,
	business_id UUID NOT NULL REFERENCES businesses(id),
	ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	url TEXT NOT NULL DEFAULT '',
	verdict TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	invalid_reason TEXT NOT NULL DEFAULT '',
	operator TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_validation_history_business ON validation_history (business_id, seq);

CREATE TABLE IF NOT EXISTS discovery_attempts (
	business_id UUID NOT NULL REFERENCES businesses(id),
	method TEXT NOT NULL,
	attempted BOOLEAN NOT NULL DEFAULT false,
	attempted_at TIMESTAMPTZ,
	found_url BOOLEAN NOT NULL DEFAULT false,
	url TEXT NOT NULL DEFAULT '',
	valid BOOLEAN NOT NULL DEFAULT false,
	notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (business_id, method)
);

CREATE TABLE IF NOT EXISTS generated_sites (
	id UUID PRIMARY KEY,
	business_id UUID NOT NULL REFERENCES businesses(id),
	status TEXT NOT NULL DEFAULT 'draft',
	url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_generated_sites_business ON generated_sites (business_id, status);
`

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const businessColumns = `id, name, phone, address, city, state, country,
	website_url, status, validated_at, source, source_timestamp, notes,
	created_at, updated_at`

// GetBusiness loads a business and assembles its ledger from the child tables.
func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)

	b, err := scanBusiness(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: business %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}

	if err := s.loadLedger(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ErrNotFound marks lookups of nonexistent businesses.
var ErrNotFound = eris.New("not found")

func (s *PostgresStore) ListForValidation(ctx context.Context, limit int) ([]model.Business, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+businessColumns+` FROM businesses
		WHERE status = $1 AND website_url IS NOT NULL AND website_url <> ''
		ORDER BY created_at LIMIT $2`,
		string(model.StateNeedsDiscovery), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list for validation")
	}
	defer rows.Close()

	return s.collectWithLedgers(ctx, rows)
}

func (s *PostgresStore) ListForDiscovery(ctx context.Context, limit int) ([]model.Business, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+businessColumns+` FROM businesses
		WHERE status = $1 AND (website_url IS NULL OR website_url = '')
		ORDER BY created_at LIMIT $2`,
		string(model.StateNeedsDiscovery), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list for discovery")
	}
	defer rows.Close()

	return s.collectWithLedgers(ctx, rows)
}

// ListPendingReview orders businesses with a completed/published generated
// site first (the costliest misclassification), then by most recent
// automated validation.
func (s *PostgresStore) ListPendingReview(ctx context.Context, filter ReviewFilter) ([]model.Business, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + businessColumns + `,
		EXISTS(SELECT 1 FROM generated_sites g
			WHERE g.business_id = businesses.id AND g.status IN ('completed', 'published')) AS has_site,
		(SELECT MAX(ts) FROM validation_history h WHERE h.business_id = businesses.id) AS last_validation
	FROM businesses
	WHERE status = $1`

	args := []any{string(model.StateNeedsHumanReview)}
	argIdx := 2
	if filter.HasGeneratedSite != nil {
		query += ` AND EXISTS(SELECT 1 FROM generated_sites g
			WHERE g.business_id = businesses.id AND g.status IN ('completed', 'published')) = $2`
		args = append(args, *filter.HasGeneratedSite)
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY has_site DESC, last_validation DESC NULLS LAST
		LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending review")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusinessExtra(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending review")
		}
		businesses = append(businesses, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: pending review rows")
	}

	for i := range businesses {
		if err := s.loadLedger(ctx, &businesses[i]); err != nil {
			return nil, err
		}
	}
	return businesses, nil
}

// ApplyValidation writes the business row and ledger deltas in one
// transaction. Partial-field updates are not possible through this path.
func (s *PostgresStore) ApplyValidation(ctx context.Context, update ValidationUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin validation tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE businesses SET
			website_url = $2,
			status = $3,
			validated_at = $4,
			source = $5,
			source_timestamp = $6,
			notes = $7,
			updated_at = $8
		WHERE id = $1`,
		update.BusinessID, update.WebsiteURL, string(update.Status), now,
		string(update.Source), now, update.Notes, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %s", update.BusinessID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: business %s", update.BusinessID)
	}

	for _, entry := range update.HistoryEntries {
		entryID := entry.ID
		if entryID == "" {
			entryID = uuid.New().String()
		}
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = now
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO validation_history
				(id, business_id, ts, url, verdict, confidence, reasoning, recommendation, invalid_reason, operator)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entryID, update.BusinessID, ts, entry.URL, entry.Verdict,
			entry.Confidence, entry.Reasoning, entry.Recommendation,
			string(entry.InvalidReason), entry.Operator,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: append history for %s", update.BusinessID)
		}
	}

	for method, attempt := range update.AttemptUpserts {
		_, err := tx.Exec(ctx,
			`INSERT INTO discovery_attempts
				(business_id, method, attempted, attempted_at, found_url, url, valid, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (business_id, method) DO UPDATE SET
				attempted = EXCLUDED.attempted,
				attempted_at = EXCLUDED.attempted_at,
				found_url = EXCLUDED.found_url,
				url = EXCLUDED.url,
				valid = EXCLUDED.valid,
				notes = EXCLUDED.notes`,
			update.BusinessID, method, attempt.Attempted, attempt.AttemptedAt,
			attempt.FoundURL, attempt.URL, attempt.Valid, attempt.Notes,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert attempt %s for %s", method, update.BusinessID)
		}
	}

	for _, method := range update.AttemptRemovals {
		_, err := tx.Exec(ctx,
			`DELETE FROM discovery_attempts WHERE business_id = $1 AND method = $2`,
			update.BusinessID, method,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: remove attempt %s for %s", method, update.BusinessID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit validation tx")
	}
	return nil
}

func (s *PostgresStore) ListGeneratedSites(ctx context.Context, businessID string) ([]model.GeneratedSite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, status, url, created_at, updated_at
		FROM generated_sites WHERE business_id = $1 ORDER BY created_at`,
		businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list generated sites for %s", businessID)
	}
	defer rows.Close()

	var sites []model.GeneratedSite
	for rows.Next() {
		var g model.GeneratedSite
		var status string
		if err := rows.Scan(&g.ID, &g.BusinessID, &status, &g.URL, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan generated site")
		}
		g.Status = model.SiteStatus(status)
		sites = append(sites, g)
	}
	return sites, rows.Err()
}

func (s *PostgresStore) SupersedeGeneratedSites(ctx context.Context, businessID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generated_sites SET status = 'superseded', updated_at = now()
		WHERE business_id = $1 AND status IN ('completed', 'published')`,
		businessID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: supersede sites for %s", businessID)
	}
	return tag.RowsAffected(), nil
}

// BulkInsertBusinesses ingests leads; conflicts on id update the identity
// fields but never touch the validation columns.
func (s *PostgresStore) BulkInsertBusinesses(ctx context.Context, businesses []model.Business) (int64, error) {
	if len(businesses) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(businesses))
	for i, b := range businesses {
		id := b.ID
		if id == "" {
			id = uuid.New().String()
		}
		status := b.Status
		if status == "" {
			status = model.StateNeedsDiscovery
		}
		source := b.Metadata.Source
		if source == "" {
			source = model.SourceNone
		}
		rows[i] = []any{
			id, b.Name, b.Phone, b.Address, b.City, b.State, b.Country,
			b.WebsiteURL, string(status), string(source),
		}
	}

	cfg := db.UpsertConfig{
		Table: "businesses",
		Columns: []string{
			"id", "name", "phone", "address", "city", "state", "country",
			"website_url", "status", "source",
		},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"name", "phone", "address", "city", "state", "country"},
	}

	return db.BulkUpsert(ctx, s.pool, cfg, rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.ValidationState]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM businesses GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.ValidationState]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.ValidationState(status)] = count
	}
	return counts, rows.Err()
}

// loadLedger attaches history entries and discovery attempts to a business.
func (s *PostgresStore) loadLedger(ctx context.Context, b *model.Business) error {
	histRows, err := s.pool.Query(ctx,
		`SELECT id, ts, url, verdict, confidence, reasoning, recommendation, invalid_reason, operator
		FROM validation_history WHERE business_id = $1 ORDER BY seq`,
		b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: load history for %s", b.ID)
	}
	defer histRows.Close()

	b.Metadata.ValidationHistory = []model.ValidationHistoryEntry{}
	for histRows.Next() {
		var e model.ValidationHistoryEntry
		var invalidReason string
		if err := histRows.Scan(&e.ID, &e.Timestamp, &e.URL, &e.Verdict,
			&e.Confidence, &e.Reasoning, &e.Recommendation, &invalidReason, &e.Operator); err != nil {
			return eris.Wrap(err, "postgres: scan history entry")
		}
		e.InvalidReason = model.InvalidReason(invalidReason)
		b.Metadata.ValidationHistory = append(b.Metadata.ValidationHistory, e)
	}
	if err := histRows.Err(); err != nil {
		return eris.Wrap(err, "postgres: history rows")
	}

	attRows, err := s.pool.Query(ctx,
		`SELECT method, attempted, attempted_at, found_url, url, valid, notes
		FROM discovery_attempts WHERE business_id = $1`,
		b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: load attempts for %s", b.ID)
	}
	defer attRows.Close()

	b.Metadata.DiscoveryAttempts = map[string]model.DiscoveryAttempt{}
	for attRows.Next() {
		var method string
		var a model.DiscoveryAttempt
		if err := attRows.Scan(&method, &a.Attempted, &a.AttemptedAt,
			&a.FoundURL, &a.URL, &a.Valid, &a.Notes); err != nil {
			return eris.Wrap(err, "postgres: scan attempt")
		}
		b.Metadata.DiscoveryAttempts[method] = a
	}
	return attRows.Err()
}

func (s *PostgresStore) collectWithLedgers(ctx context.Context, rows pgx.Rows) ([]model.Business, error) {
	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		businesses = append(businesses, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: business rows")
	}

	for i := range businesses {
		if err := s.loadLedger(ctx, &businesses[i]); err != nil {
			return nil, err
		}
	}
	return businesses, nil
}

func scanBusiness(row pgx.Row) (*model.Business, error) {
	var b model.Business
	var status, source string
	if err := row.Scan(
		&b.ID, &b.Name, &b.Phone, &b.Address, &b.City, &b.State, &b.Country,
		&b.WebsiteURL, &status, &b.ValidatedAt, &source,
		&b.Metadata.SourceTimestamp, &b.Metadata.Notes,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = model.ValidationState(status)
	b.Metadata.Source = model.MetadataSource(source)
	return &b, nil
}

// scanBusinessExtra scans the pending-review projection, which carries two
// trailing computed columns.
func scanBusinessExtra(row pgx.Row) (*model.Business, error) {
	var b model.Business
	var status, source string
	var hasSite bool
	var lastValidation *time.Time
	if err := row.Scan(
		&b.ID, &b.Name, &b.Phone, &b.Address, &b.City, &b.State, &b.Country,
		&b.WebsiteURL, &status, &b.ValidatedAt, &source,
		&b.Metadata.SourceTimestamp, &b.Metadata.Notes,
		&b.CreatedAt, &b.UpdatedAt,
		&hasSite, &lastValidation,
	); err != nil {
		return nil, err
	}
	b.Status = model.ValidationState(status)
	b.Metadata.Source = model.MetadataSource(source)
	return &b, nil
}
