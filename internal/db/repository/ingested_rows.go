package repository

import (
	"context"
	"database/sql"
	"time"

	"lakegov/internal/domain"
)

var _ domain.IngestedRowRepository = (*IngestedRowRepo)(nil)

// IngestedRowRepo stores landed rows keyed by the hash of their idempotency
// key. In append mode two rows with the same key hash whose event times lie
// within the dedupe window are the same logical row; in upsert mode every row
// with the same key hash is.
type IngestedRowRepo struct {
	db *sql.DB
}

// NewIngestedRowRepo creates a new IngestedRowRepo.
func NewIngestedRowRepo(db *sql.DB) *IngestedRowRepo {
	return &IngestedRowRepo{db: db}
}

type landedRow struct {
	id        int64
	eventTime time.Time
	payload   string
}

// batchPlanner applies the dedupe rules to one batch. It caches the landed
// rows of every key it has seen so later rows in the batch observe earlier
// ones, whether or not they were written.
type batchPlanner struct {
	q          dbtx
	contractID string
	rules      domain.DedupeRules
	write      bool
	now        time.Time
	seen       map[string][]*landedRow
	out        domain.ApplyOutcome
}

// Apply writes rows in a single transaction. With ConflictFail resolution a
// key that reappears with a different payload aborts the whole batch.
func (r *IngestedRowRepo) Apply(ctx context.Context, contractID string, rows []domain.IngestRow, rules domain.DedupeRules) (domain.ApplyOutcome, error) {
	var out domain.ApplyOutcome
	err := withTx(ctx, r.db, "apply ingest batch", func(tx *sql.Tx) error {
		p := newBatchPlanner(tx, contractID, rules, true)
		if err := p.run(ctx, rows); err != nil {
			return err
		}
		out = p.out
		return nil
	})
	return out, err
}

// Preview reports what Apply would do.
func (r *IngestedRowRepo) Preview(ctx context.Context, contractID string, rows []domain.IngestRow, rules domain.DedupeRules) (domain.ApplyOutcome, error) {
	return r.NewPreview(contractID, rules).Add(ctx, rows)
}

// NewPreview starts a multi-batch preview. Rows added in earlier batches are
// visible to later ones, so a dry run counts the same duplicates as a real one.
func (r *IngestedRowRepo) NewPreview(contractID string, rules domain.DedupeRules) domain.RowPreview {
	return &rowPreview{p: newBatchPlanner(r.db, contractID, rules, false)}
}

type rowPreview struct {
	p *batchPlanner
}

// Add plans one more batch and returns that batch's outcome.
func (v *rowPreview) Add(ctx context.Context, rows []domain.IngestRow) (domain.ApplyOutcome, error) {
	before := v.p.out
	err := v.p.run(ctx, rows)
	after := v.p.out
	return domain.ApplyOutcome{
		Applied:    after.Applied - before.Applied,
		Updated:    after.Updated - before.Updated,
		Duplicates: after.Duplicates - before.Duplicates,
	}, err
}

// Count returns the number of landed rows for a contract.
func (r *IngestedRowRepo) Count(ctx context.Context, contractID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingested_rows WHERE contract_id = ?`, contractID).Scan(&n)
	return n, err
}

func newBatchPlanner(q dbtx, contractID string, rules domain.DedupeRules, write bool) *batchPlanner {
	return &batchPlanner{
		q:          q,
		contractID: contractID,
		rules:      rules,
		write:      write,
		now:        time.Now().UTC(),
		seen:       make(map[string][]*landedRow),
	}
}

func (p *batchPlanner) run(ctx context.Context, rows []domain.IngestRow) error {
	for _, row := range rows {
		if err := p.apply(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (p *batchPlanner) apply(ctx context.Context, row domain.IngestRow) error {
	landed, err := p.landed(ctx, row.KeyHash)
	if err != nil {
		return err
	}
	eventTime := row.EventTime.UTC()
	match := p.match(landed, eventTime)

	switch {
	case match == nil:
		p.out.Applied++
		lr := &landedRow{eventTime: eventTime, payload: row.Payload}
		if p.write {
			res, err := p.q.ExecContext(ctx, `
				INSERT INTO ingested_rows (contract_id, key_hash, key_json, event_time, payload, ingested_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, p.contractID, row.KeyHash, row.KeyJSON, eventTime, row.Payload, p.now, p.now)
			if err != nil {
				return err
			}
			if lr.id, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		p.seen[row.KeyHash] = append(landed, lr)

	case match.payload == row.Payload:
		p.out.Duplicates++

	case p.rules.Conflict == domain.ConflictFail:
		return domain.ErrConflict("idempotency key %s: conflicting payload at %s (landed row at %s)",
			row.KeyJSON, eventTime.Format(time.RFC3339Nano), match.eventTime.Format(time.RFC3339Nano))

	case eventTime.Before(match.eventTime):
		// latest_wins: an older event never overwrites a newer one.
		p.out.Duplicates++

	default:
		p.out.Updated++
		if p.write {
			if _, err := p.q.ExecContext(ctx, `
				UPDATE ingested_rows SET payload = ?, event_time = ?, updated_at = ? WHERE id = ?
			`, row.Payload, eventTime, p.now, match.id); err != nil {
				return err
			}
		}
		match.payload = row.Payload
		match.eventTime = eventTime
	}
	return nil
}

func (p *batchPlanner) landed(ctx context.Context, keyHash string) ([]*landedRow, error) {
	if rows, ok := p.seen[keyHash]; ok {
		return rows, nil
	}
	rs, err := p.q.QueryContext(ctx, `
		SELECT id, event_time, payload FROM ingested_rows
		WHERE contract_id = ? AND key_hash = ?
	`, p.contractID, keyHash)
	if err != nil {
		return nil, err
	}
	defer rs.Close() //nolint:errcheck

	var out []*landedRow
	for rs.Next() {
		lr := &landedRow{}
		if err := rs.Scan(&lr.id, &lr.eventTime, &lr.payload); err != nil {
			return nil, err
		}
		lr.eventTime = lr.eventTime.UTC()
		out = append(out, lr)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	p.seen[keyHash] = out
	return out, nil
}

// match picks the landed row a new row at t collides with, or nil.
func (p *batchPlanner) match(rows []*landedRow, t time.Time) *landedRow {
	if p.rules.Mode == domain.IngestUpsert {
		return latest(rows)
	}
	return nearestWithin(rows, t, p.rules.Window)
}

// latest returns the landed row with the newest event time.
func latest(rows []*landedRow) *landedRow {
	var best *landedRow
	for _, lr := range rows {
		if best == nil || lr.eventTime.After(best.eventTime) {
			best = lr
		}
	}
	return best
}

// nearestWithin returns the landed row closest in event time to t, provided
// it lies within window.
func nearestWithin(rows []*landedRow, t time.Time, window time.Duration) *landedRow {
	var (
		best     *landedRow
		bestDist time.Duration
	)
	for _, lr := range rows {
		d := t.Sub(lr.eventTime)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = lr, d
		}
	}
	return best
}
