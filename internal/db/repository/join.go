package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"lakegov/internal/db/mapper"
	"lakegov/internal/domain"
)

var _ domain.JoinRepository = (*JoinRepo)(nil)

// JoinRepo stores join candidates, their validation reports and the
// versioned accepted joins of each table pair.
type JoinRepo struct {
	db *sql.DB
}

// NewJoinRepo creates a new JoinRepo.
func NewJoinRepo(db *sql.DB) *JoinRepo {
	return &JoinRepo{db: db}
}

const candidateColumns = `id, table_a, table_b, condition_json, declared_relation, confidence,
	risk_level, stats_json, state, created_by, created_at, updated_at`

const acceptedColumns = `join_id, candidate_id, table_a, table_b, condition_json, version,
	accepted_by, rationale, accepted_at, supersedes, superseded_at`

// CreateCandidate persists a proposed candidate.
func (r *JoinRepo) CreateCandidate(ctx context.Context, c *domain.JoinCandidate) (*domain.JoinCandidate, error) {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.State == "" {
		c.State = domain.CandidateProposed
	}
	cond, err := mapper.JSON(c.Condition)
	if err != nil {
		return nil, err
	}
	stats, err := nullJSON(c.ValidationStats)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO join_candidates (`+candidateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TableA, c.TableB, cond, string(c.DeclaredRelation), c.Confidence,
		string(c.RiskLevel), stats, string(c.State), c.CreatedBy, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetCandidate(ctx, c.ID)
}

// GetCandidate returns a candidate by ID.
func (r *JoinRepo) GetCandidate(ctx context.Context, id string) (*domain.JoinCandidate, error) {
	c, err := scanCandidate(r.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM join_candidates WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "join candidate %q not found", id)
	}
	return c, nil
}

// ListCandidates returns candidates, optionally filtered by table (in either
// position) and state, newest first.
func (r *JoinRepo) ListCandidates(ctx context.Context, tableA, tableB *string, state *domain.CandidateState) ([]domain.JoinCandidate, error) {
	var (
		where []string
		args  []any
	)
	if tableA != nil {
		where = append(where, "(table_a = ? OR table_b = ?)")
		args = append(args, *tableA, *tableA)
	}
	if tableB != nil {
		where = append(where, "(table_a = ? OR table_b = ?)")
		args = append(args, *tableB, *tableB)
	}
	if state != nil {
		where = append(where, "state = ?")
		args = append(args, string(*state))
	}
	query := `SELECT ` + candidateColumns + ` FROM join_candidates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.JoinCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetCandidateState moves a candidate between review states.
func (r *JoinRepo) SetCandidateState(ctx context.Context, id string, from, to domain.CandidateState, audit *domain.AuditEntry) error {
	return withTx(ctx, r.db, "set candidate state", func(tx *sql.Tx) error {
		if err := setCandidateState(ctx, tx, id, from, to); err != nil {
			return err
		}
		if audit != nil {
			audit.EntityID = id
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
}

func setCandidateState(ctx context.Context, tx *sql.Tx, id string, from, to domain.CandidateState) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE join_candidates SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return err
	}
	ok, err := requireOneRow(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	var current string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM join_candidates WHERE id = ?`, id).Scan(&current); err != nil {
		return notFound(err, "join candidate %q not found", id)
	}
	return domain.ErrConflict("join candidate %q is %s, not %s", id, current, from)
}

// SaveValidation appends a validation report and caches its stats on the
// candidate.
func (r *JoinRepo) SaveValidation(ctx context.Context, rep *domain.ValidationReport) (*domain.ValidationReport, error) {
	if rep.ID == "" {
		rep.ID = domain.NewID()
	}
	if rep.ValidatedAt.IsZero() {
		rep.ValidatedAt = time.Now().UTC()
	}
	stats, err := mapper.JSON(rep.Stats)
	if err != nil {
		return nil, err
	}
	checks, err := mapper.JSON(rep.Checks)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, "save join validation", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO join_validations (id, candidate_id, stats_json, checks_json, fan_out_override,
			                              validated_by, validated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rep.ID, rep.CandidateID, stats, checks, mapper.BoolToInt(rep.FanOutOverride),
			rep.ValidatedBy, rep.ValidatedAt.UTC()); err != nil {
			return mapDBError(err)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE join_candidates SET stats_json = ?, updated_at = ? WHERE id = ?`,
			stats, rep.ValidatedAt.UTC(), rep.CandidateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// LatestValidation returns the most recent validation report of a candidate.
func (r *JoinRepo) LatestValidation(ctx context.Context, candidateID string) (*domain.ValidationReport, error) {
	var (
		rep            domain.ValidationReport
		stats, checks  string
		fanOutOverride int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, candidate_id, stats_json, checks_json, fan_out_override, validated_by, validated_at
		FROM join_validations
		WHERE candidate_id = ?
		ORDER BY validated_at DESC, rowid DESC
		LIMIT 1
	`, candidateID).Scan(&rep.ID, &rep.CandidateID, &stats, &checks, &fanOutOverride,
		&rep.ValidatedBy, &rep.ValidatedAt)
	if err != nil {
		return nil, notFound(err, "join candidate %q has not been validated", candidateID)
	}
	if err := mapper.FromJSON(stats, &rep.Stats); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(checks, &rep.Checks); err != nil {
		return nil, err
	}
	rep.FanOutOverride = fanOutOverride == 1
	rep.ValidatedAt = rep.ValidatedAt.UTC()
	return &rep, nil
}

// GetPointer returns the accepted-join pointer of a table pair. Pairs with no
// accepted join have a zero pointer at revision 0.
func (r *JoinRepo) GetPointer(ctx context.Context, pairKey string) (*domain.JoinPointer, error) {
	return getJoinPointer(ctx, r.db, pairKey)
}

func getJoinPointer(ctx context.Context, q dbtx, pairKey string) (*domain.JoinPointer, error) {
	var current sql.NullString
	p := &domain.JoinPointer{PairKey: pairKey}
	err := q.QueryRowContext(ctx,
		`SELECT current_join_id, revision FROM join_pointers WHERE pair_key = ?`, pairKey,
	).Scan(&current, &p.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.CurrentJoinID = mapper.PtrFromNullStr(current)
	return p, nil
}

// Accept appends a new accepted join version for the pair. The version it
// supersedes is stamped and its candidate moves accepted -> deprecated in the
// same transaction.
func (r *JoinRepo) Accept(ctx context.Context, acc domain.JoinAcceptance, audit *domain.AuditEntry) (*domain.AcceptedJoin, error) {
	j := acc.Join
	if j.JoinID == "" {
		j.JoinID = domain.NewID()
	}
	if j.AcceptedAt.IsZero() {
		j.AcceptedAt = time.Now().UTC()
	}
	at := j.AcceptedAt.UTC()
	cond, err := mapper.JSON(j.Condition)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, "accept join", func(tx *sql.Tx) error {
		p, err := getJoinPointer(ctx, tx, acc.PairKey)
		if err != nil {
			return err
		}
		if p.Revision != acc.ExpectedRevision {
			return &domain.ConcurrentModificationError{
				EntityID:         acc.PairKey,
				ExpectedRevision: acc.ExpectedRevision,
				ActualRevision:   p.Revision,
			}
		}

		var latest int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM accepted_joins WHERE pair_key = ?`, acc.PairKey,
		).Scan(&latest); err != nil {
			return err
		}
		j.Version = latest + 1
		j.Supersedes = p.CurrentJoinID

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accepted_joins (join_id, candidate_id, pair_key, table_a, table_b, condition_json,
			                            version, accepted_by, rationale, accepted_at, supersedes, superseded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		`, j.JoinID, j.CandidateID, acc.PairKey, j.TableA, j.TableB, cond, j.Version,
			j.AcceptedBy, j.Rationale, at, mapper.NullStrFromPtr(j.Supersedes)); err != nil {
			return mapDBError(err)
		}

		if j.Supersedes != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accepted_joins SET superseded_at = ? WHERE join_id = ?`, at, *j.Supersedes); err != nil {
				return err
			}
			// The superseded join's candidate leaves the accepted state with it.
			var oldCandidate string
			if err := tx.QueryRowContext(ctx,
				`SELECT candidate_id FROM accepted_joins WHERE join_id = ?`, *j.Supersedes,
			).Scan(&oldCandidate); err != nil {
				return err
			}
			if err := setCandidateState(ctx, tx, oldCandidate, domain.CandidateAccepted, domain.CandidateDeprecated); err != nil {
				return err
			}
		}

		if p.Revision == 0 && p.CurrentJoinID == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO join_pointers (pair_key, current_join_id, revision, updated_at)
				VALUES (?, ?, 1, ?)
			`, acc.PairKey, j.JoinID, at)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE join_pointers SET current_join_id = ?, revision = revision + 1, updated_at = ?
				WHERE pair_key = ? AND revision = ?
			`, j.JoinID, at, acc.PairKey, acc.ExpectedRevision)
		}
		if err != nil {
			return mapDBError(err)
		}

		if err := setCandidateState(ctx, tx, j.CandidateID, domain.CandidateProposed, domain.CandidateAccepted); err != nil {
			return err
		}

		if audit != nil {
			audit.EntityID = j.CandidateID
			if audit.After == nil {
				audit.After = mapper.Snapshot(map[string]any{
					"join_id":    j.JoinID,
					"version":    j.Version,
					"condition":  j.Condition.String(),
					"supersedes": j.Supersedes,
				})
			}
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetAccepted(ctx, j.JoinID)
}

// GetAccepted returns an accepted join by ID.
func (r *JoinRepo) GetAccepted(ctx context.Context, joinID string) (*domain.AcceptedJoin, error) {
	j, err := scanAccepted(r.db.QueryRowContext(ctx,
		`SELECT `+acceptedColumns+` FROM accepted_joins WHERE join_id = ?`, joinID))
	if err != nil {
		return nil, notFound(err, "accepted join %q not found", joinID)
	}
	return j, nil
}

// ListAccepted returns every accepted version for a pair, oldest first.
func (r *JoinRepo) ListAccepted(ctx context.Context, pairKey string) ([]domain.AcceptedJoin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+acceptedColumns+` FROM accepted_joins WHERE pair_key = ? ORDER BY version`, pairKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AcceptedJoin
	for rows.Next() {
		j, err := scanAccepted(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func nullJSON(v *domain.ValidationStats) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := mapper.JSON(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func scanCandidate(s rowScanner) (*domain.JoinCandidate, error) {
	var (
		c                        domain.JoinCandidate
		cond, relation, risk, st string
		stats                    sql.NullString
	)
	if err := s.Scan(&c.ID, &c.TableA, &c.TableB, &cond, &relation, &c.Confidence, &risk,
		&stats, &st, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(cond, &c.Condition); err != nil {
		return nil, err
	}
	if stats.Valid {
		c.ValidationStats = &domain.ValidationStats{}
		if err := mapper.FromJSON(stats.String, c.ValidationStats); err != nil {
			return nil, err
		}
	}
	c.DeclaredRelation = domain.CardinalityRelation(relation)
	c.RiskLevel = domain.RiskLevel(risk)
	c.State = domain.CandidateState(st)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func scanAccepted(s rowScanner) (*domain.AcceptedJoin, error) {
	var (
		j            domain.AcceptedJoin
		cond         string
		supersedes   sql.NullString
		supersededAt sql.NullTime
	)
	if err := s.Scan(&j.JoinID, &j.CandidateID, &j.TableA, &j.TableB, &cond, &j.Version,
		&j.AcceptedBy, &j.Rationale, &j.AcceptedAt, &supersedes, &supersededAt); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(cond, &j.Condition); err != nil {
		return nil, err
	}
	j.Supersedes = mapper.PtrFromNullStr(supersedes)
	j.SupersededAt = mapper.PtrFromNullTime(supersededAt)
	j.AcceptedAt = j.AcceptedAt.UTC()
	return &j, nil
}
