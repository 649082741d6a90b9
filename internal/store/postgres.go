package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/tender-radar/internal/types"
)

// Postgres is a Store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Ping checks the database connection, for health endpoints.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const tenderColumns = `id, natural_key, source, title, description, organization, country, url,
	classification_codes, publication_date, deadline, source_tags,
	is_relevant, confidence, reasoning, method, classified_at,
	raw_payload, first_seen_at, last_seen_at`

// UpsertTender implements Store. xmax is zero only for a freshly inserted row.
func (p *Postgres) UpsertTender(ctx context.Context, t *types.Tender) (bool, error) {
	if t == nil || t.ID == "" {
		return false, fmt.Errorf("tender id is required")
	}
	seen := t.LastSeenAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	first := t.FirstSeenAt
	if first.IsZero() {
		first = seen
	}

	var created bool
	err := p.pool.QueryRow(ctx,
		`INSERT INTO tenders (id, natural_key, source, title, description, organization, country, url,
		                      classification_codes, publication_date, deadline, source_tags,
		                      raw_payload, first_seen_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
		     natural_key = EXCLUDED.natural_key,
		     source = EXCLUDED.source,
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     organization = EXCLUDED.organization,
		     country = EXCLUDED.country,
		     url = EXCLUDED.url,
		     classification_codes = ARRAY(SELECT DISTINCT unnest(tenders.classification_codes || EXCLUDED.classification_codes) ORDER BY 1),
		     publication_date = EXCLUDED.publication_date,
		     deadline = EXCLUDED.deadline,
		     source_tags = ARRAY(SELECT DISTINCT unnest(tenders.source_tags || EXCLUDED.source_tags) ORDER BY 1),
		     raw_payload = EXCLUDED.raw_payload,
		     first_seen_at = LEAST(tenders.first_seen_at, EXCLUDED.first_seen_at),
		     last_seen_at = GREATEST(tenders.last_seen_at, EXCLUDED.last_seen_at)
		 RETURNING (xmax = 0)`,
		t.ID, t.NaturalKey, string(t.Source), t.Title, t.Description, t.Organization, t.Country, t.URL,
		nonNil(t.ClassificationCodes), t.PublicationDate, t.Deadline, nonNil(t.SourceTags),
		nullableJSON(t.RawPayload), first, seen,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert tender %s: %w", t.ID, err)
	}
	return created, nil
}

// SetVerdict implements Store. The rank comparison mirrors types.ShouldReplace.
func (p *Postgres) SetVerdict(ctx context.Context, id string, v types.Verdict) (bool, error) {
	classifiedAt := v.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE tenders
		 SET is_relevant = $2, confidence = $3, reasoning = $4, method = $5, classified_at = $6
		 WHERE id = $1
		   AND (method IS NULL OR
		        CASE method WHEN 'primary' THEN 2 WHEN 'fallback' THEN 1 ELSE 0 END <= $7)`,
		id, v.IsRelevant, v.Confidence, v.Reasoning, string(v.Method), classifiedAt, v.Method.Rank(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to set verdict for %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tender %s: %w", id, err)
	}
	if !exists {
		return false, fmt.Errorf("tender %s: %w", id, ErrNotFound)
	}
	return false, nil
}

// GetTender implements Store.
func (p *Postgres) GetTender(ctx context.Context, id string) (*types.Tender, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+tenderColumns+` FROM tenders WHERE id = $1`, id)
	t, err := scanTender(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tender %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tender: %w", err)
	}
	return t, nil
}

// QueryTenders implements Store.
func (p *Postgres) QueryTenders(ctx context.Context, q Query) ([]*types.Tender, error) {
	where, args := buildWhere(q)
	sql := `SELECT ` + tenderColumns + ` FROM tenders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY last_seen_at DESC, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenders: %w", err)
	}
	defer rows.Close()

	var out []*types.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tender: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func buildWhere(q Query) ([]string, []any) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Unclassified {
		where = append(where, `(method IS NULL OR method = 'error')`)
	}
	if q.Relevant != nil {
		add(`is_relevant = $%d`, *q.Relevant)
	}
	if q.MinConfidence > 0 {
		add(`confidence >= $%d`, q.MinConfidence)
	}
	if q.Method != "" {
		add(`method = $%d`, string(q.Method))
	}
	if q.Source != "" {
		add(`source = $%d`, string(q.Source))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(title ILIKE $%d OR organization ILIKE $%d)`, n, n))
	}
	return where, args
}

// RelevantTenders implements Store.
func (p *Postgres) RelevantTenders(ctx context.Context, minConfidence float64) ([]*types.Tender, error) {
	return p.QueryTenders(ctx, Query{Relevant: Bool(true), MinConfidence: minConfidence})
}

func scanTender(row pgx.Row) (*types.Tender, error) {
	var t types.Tender
	var source string
	var isRelevant *bool
	var confidence *float64
	var reasoning, method *string
	var classifiedAt *time.Time
	var raw []byte

	err := row.Scan(&t.ID, &t.NaturalKey, &source, &t.Title, &t.Description, &t.Organization,
		&t.Country, &t.URL, &t.ClassificationCodes, &t.PublicationDate, &t.Deadline, &t.SourceTags,
		&isRelevant, &confidence, &reasoning, &method, &classifiedAt,
		&raw, &t.FirstSeenAt, &t.LastSeenAt)
	if err != nil {
		return nil, err
	}
	t.Source = types.SourceKind(source)
	t.RawPayload = raw

	if method != nil {
		v := types.Verdict{Method: types.Method(*method)}
		if isRelevant != nil {
			v.IsRelevant = *isRelevant
		}
		if confidence != nil {
			v.Confidence = *confidence
		}
		if reasoning != nil {
			v.Reasoning = *reasoning
		}
		if classifiedAt != nil {
			v.ClassifiedAt = *classifiedAt
		}
		t.Classification = &v
	}
	return &t, nil
}

// AppendRunLog implements Store.
func (p *Postgres) AppendRunLog(ctx context.Context, log types.RunLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO run_logs (id, source, started_at, found, new, updated, classified, relevant,
		                       success, error, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.Source, log.StartedAt, log.Found, log.New, log.Updated, log.Classified,
		log.Relevant, log.Success, log.Error, log.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// ListRunLogs implements Store.
func (p *Postgres) ListRunLogs(ctx context.Context, source string, limit int) ([]types.RunLog, error) {
	sql := `SELECT id, source, started_at, found, new, updated, classified, relevant,
	               success, error, duration_seconds
	        FROM run_logs WHERE ($1 = '' OR source = $1)
	        ORDER BY started_at DESC`
	args := []any{source}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var out []types.RunLog
	for rows.Next() {
		var l types.RunLog
		if err := rows.Scan(&l.ID, &l.Source, &l.StartedAt, &l.Found, &l.New, &l.Updated,
			&l.Classified, &l.Relevant, &l.Success, &l.Error, &l.DurationSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListExemplars implements Store and similarity.ExemplarRepository.
func (p *Postgres) ListExemplars(ctx context.Context) ([]types.PositiveExemplar, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, description, confidence, source, added_at
		 FROM positive_exemplars ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exemplars: %w", err)
	}
	defer rows.Close()

	var out []types.PositiveExemplar
	for rows.Next() {
		var e types.PositiveExemplar
		var source string
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Confidence, &source, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exemplar: %w", err)
		}
		e.Source = types.ExemplarSource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddExemplar implements Store and similarity.ExemplarRepository.
func (p *Postgres) AddExemplar(ctx context.Context, e types.PositiveExemplar) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO positive_exemplars (id, title, description, confidence, source, added_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Title, e.Description, e.Confidence, string(e.Source), e.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add exemplar: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
