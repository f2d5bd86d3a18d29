package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	"gradegate/pkg/platform/sentinel"
	txcontext "gradegate/pkg/platform/tx"
)

// Dialect selects placeholder style and schema.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) schemaFile() string {
	if d == DialectSQLite {
		return "sqlite.sql"
	}
	return "postgres.sql"
}

// SQL implements Store over database/sql. Queries are written with ?
// placeholders and rebound for PostgreSQL.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

func (s *SQL) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Exec(ctx, s.db)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) AppendResponses(ctx context.Context, responses []learner.Response) error {
	if len(responses) == 0 {
		return nil
	}
	query := s.rebind(`
		INSERT INTO responses (id, learner_id, subject, question_id, difficulty, answer, correct, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	return txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		for _, r := range responses {
			_, err := s.execer(txCtx).ExecContext(txCtx, query,
				uuid.New(),
				uuid.UUID(r.LearnerID),
				string(r.Subject),
				r.QuestionID,
				r.Difficulty,
				r.Answer,
				r.Correct,
				r.AnsweredAt.UTC(),
			)
			if err != nil {
				return translate(err, "insert response")
			}
		}
		return nil
	})
}

// FindResponses returns the learner's responses for subject ordered by AnsweredAt.
func (s *SQL) FindResponses(ctx context.Context, learnerID id.LearnerID, subject id.Subject, window *learner.DateRange) ([]learner.Response, error) {
	query := `
		SELECT question_id, difficulty, answer, correct, answered_at
		FROM responses
		WHERE learner_id = ? AND subject = ?`
	args := []any{uuid.UUID(learnerID), string(subject)}
	if window != nil && !window.From.IsZero() {
		query += ` AND answered_at >= ?`
		args = append(args, window.From.UTC())
	}
	if window != nil && !window.To.IsZero() {
		query += ` AND answered_at <= ?`
		args = append(args, window.To.UTC())
	}
	query += ` ORDER BY answered_at ASC`

	rows, err := s.execer(ctx).QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, translate(err, "query responses")
	}
	defer rows.Close()

	var out []learner.Response
	for rows.Next() {
		r := learner.Response{LearnerID: learnerID, Subject: subject}
		if err := rows.Scan(&r.QuestionID, &r.Difficulty, &r.Answer, &r.Correct, &r.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate responses")
	}
	return out, nil
}

func (s *SQL) GetSubjectLevel(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*learner.SubjectLevel, error) {
	query := s.rebind(`
		SELECT tenant_id, enrolled_grade, assessed_grade_level, mastery_score, updated_at
		FROM subject_levels
		WHERE learner_id = ? AND subject = ?
	`)
	level := learner.SubjectLevel{LearnerID: learnerID, Subject: subject}
	var tenantID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(learnerID), string(subject)).Scan(
		&tenantID, &level.EnrolledGrade, &level.AssessedGradeLevel, &level.MasteryScore, &level.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject level %s/%s: %w", learnerID, subject, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err, "get subject level")
	}
	level.TenantID = id.TenantID(tenantID)
	return &level, nil
}

func (s *SQL) UpsertSubjectLevel(ctx context.Context, level learner.SubjectLevel) error {
	query := s.rebind(`
		INSERT INTO subject_levels (learner_id, subject, tenant_id, enrolled_grade, assessed_grade_level, mastery_score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, subject) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			enrolled_grade = EXCLUDED.enrolled_grade,
			assessed_grade_level = EXCLUDED.assessed_grade_level,
			mastery_score = EXCLUDED.mastery_score,
			updated_at = EXCLUDED.updated_at
	`)
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(level.LearnerID),
		string(level.Subject),
		uuid.UUID(level.TenantID),
		level.EnrolledGrade,
		level.AssessedGradeLevel,
		level.MasteryScore,
		level.UpdatedAt.UTC(),
	)
	return translate(err, "upsert subject level")
}

// AddToRoster is idempotent per (viewer, scope, learner).
func (s *SQL) AddToRoster(ctx context.Context, entry learner.RosterEntry) error {
	query := s.rebind(`
		INSERT INTO roster (viewer_id, scope, learner_id, tenant_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (viewer_id, scope, learner_id) DO NOTHING
	`)
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ViewerID), string(entry.Scope), uuid.UUID(entry.LearnerID), uuid.UUID(entry.TenantID),
	)
	return translate(err, "add roster entry")
}

func (s *SQL) VisibleLearners(ctx context.Context, viewerID id.ViewerID, scope learner.Scope) ([]learner.RosterEntry, error) {
	query := s.rebind(`
		SELECT learner_id, tenant_id FROM roster
		WHERE viewer_id = ? AND scope = ?
		ORDER BY learner_id
	`)
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(viewerID), string(scope))
	if err != nil {
		return nil, translate(err, "query roster")
	}
	defer rows.Close()

	var out []learner.RosterEntry
	for rows.Next() {
		var learnerID, tenantID uuid.UUID
		if err := rows.Scan(&learnerID, &tenantID); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		out = append(out, learner.RosterEntry{
			ViewerID:  viewerID,
			Scope:     scope,
			LearnerID: id.LearnerID(learnerID),
			TenantID:  id.TenantID(tenantID),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate roster")
	}
	return out, nil
}

// CreatePending inserts p. The partial unique index on (learner_id, subject)
// for PENDING rows turns a concurrent duplicate into sentinel.ErrConflict.
func (s *SQL) CreatePending(ctx context.Context, p *models.Proposal) error {
	query := s.rebind(`
		INSERT INTO proposals (
			id, learner_id, tenant_id, subject, from_level, to_level,
			direction, tier, rationale, status, created_by, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID),
		uuid.UUID(p.LearnerID),
		uuid.UUID(p.TenantID),
		string(p.Subject),
		p.FromLevel,
		p.ToLevel,
		string(p.Direction),
		string(p.Tier),
		p.Rationale,
		string(models.StatusPending),
		p.CreatedBy,
		p.CreatedAt.UTC(),
	)
	return translate(err, "insert proposal")
}

const proposalColumns = `
	id, learner_id, tenant_id, subject, from_level, to_level, direction, tier,
	rationale, status, created_by, created_at, decided_by, decided_at, decision_notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*models.Proposal, error) {
	var (
		p                          models.Proposal
		proposalID, learnerID, tid uuid.UUID
		subject, direction, tier   string
		status                     string
		decidedBy, notes           sql.NullString
		decidedAt                  sql.NullTime
	)
	err := row.Scan(
		&proposalID, &learnerID, &tid, &subject, &p.FromLevel, &p.ToLevel, &direction, &tier,
		&p.Rationale, &status, &p.CreatedBy, &p.CreatedAt, &decidedBy, &decidedAt, &notes,
	)
	if err != nil {
		return nil, err
	}
	p.ID = id.ProposalID(proposalID)
	p.LearnerID = id.LearnerID(learnerID)
	p.TenantID = id.TenantID(tid)
	p.Subject = id.Subject(subject)
	p.Direction = placement.Direction(direction)
	p.Tier = placement.Tier(tier)
	p.Status = models.Status(status)
	if decidedBy.Valid {
		p.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		p.DecidedAt = &decidedAt.Time
	}
	if notes.Valid {
		p.DecisionNotes = &notes.String
	}
	return &p, nil
}

func (s *SQL) FindByID(ctx context.Context, proposalID id.ProposalID) (*models.Proposal, error) {
	query := s.rebind(`SELECT ` + proposalColumns + ` FROM proposals WHERE id = ?`)
	p, err := scanProposal(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(proposalID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err, "find proposal")
	}
	return p, nil
}

func (s *SQL) FindPending(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*models.Proposal, error) {
	query := s.rebind(`SELECT ` + proposalColumns + ` FROM proposals
		WHERE learner_id = ? AND subject = ? AND status = ?`)
	p, err := scanProposal(s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(learnerID), string(subject), string(models.StatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending proposal for %s/%s: %w", learnerID, subject, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, translate(err, "find pending proposal")
	}
	return p, nil
}

// ListPending returns the learner's pending proposals oldest first.
func (s *SQL) ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error) {
	return s.ListPendingForLearners(ctx, []id.LearnerID{learnerID})
}

func (s *SQL) ListPendingForLearners(ctx context.Context, learnerIDs []id.LearnerID) ([]*models.Proposal, error) {
	out := make([]*models.Proposal, 0)
	if len(learnerIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(learnerIDs))
	for i, l := range learnerIDs {
		ids[i] = l.String()
	}
	var (
		query string
		args  []any
	)
	if s.dialect == DialectPostgres {
		query = `SELECT ` + proposalColumns + ` FROM proposals
			WHERE learner_id = ANY(?::uuid[]) AND status = ?
			ORDER BY created_at ASC, id ASC`
		args = []any{pq.Array(ids), string(models.StatusPending)}
	} else {
		query = `SELECT ` + proposalColumns + ` FROM proposals
			WHERE learner_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `) AND status = ?
			ORDER BY created_at ASC, id ASC`
		for _, v := range ids {
			args = append(args, v)
		}
		args = append(args, string(models.StatusPending))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, translate(err, "list pending proposals")
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate proposals")
	}
	return out, nil
}

// ApplyDecision runs in one transaction: a conditional update claims the
// pending row, then an approval updates the learner's level. Zero rows on
// either step rolls back.
func (s *SQL) ApplyDecision(ctx context.Context, proposalID id.ProposalID, d models.Decision, now time.Time) (*models.Proposal, error) {
	status := models.StatusRejected
	if d.Approve {
		status = models.StatusApproved
	}
	var notes sql.NullString
	if d.Notes != "" {
		notes = sql.NullString{String: d.Notes, Valid: true}
	}

	var decided *models.Proposal
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		claim := s.rebind(`
			UPDATE proposals
			SET status = ?, decided_by = ?, decided_at = ?, decision_notes = ?
			WHERE id = ? AND status = ?
		`)
		res, err := s.execer(txCtx).ExecContext(txCtx, claim,
			string(status), d.DecidedBy, now.UTC(), notes, uuid.UUID(proposalID), string(models.StatusPending))
		if err != nil {
			return translate(err, "claim proposal")
		}
		if n, err := res.RowsAffected(); err != nil {
			return translate(err, "claim proposal")
		} else if n == 0 {
			existing, err := s.FindByID(txCtx, proposalID)
			if err != nil {
				return err
			}
			return fmt.Errorf("proposal %s is %s: %w", proposalID, existing.Status, sentinel.ErrInvalidState)
		}

		decided, err = s.FindByID(txCtx, proposalID)
		if err != nil {
			return err
		}
		if !d.Approve {
			return nil
		}

		apply := s.rebind(`
			UPDATE subject_levels
			SET assessed_grade_level = ?, updated_at = ?
			WHERE learner_id = ? AND subject = ?
		`)
		res, err = s.execer(txCtx).ExecContext(txCtx, apply,
			decided.ToLevel, now.UTC(), uuid.UUID(decided.LearnerID), string(decided.Subject))
		if err != nil {
			return translate(err, "apply level")
		}
		if n, err := res.RowsAffected(); err != nil {
			return translate(err, "apply level")
		} else if n == 0 {
			return fmt.Errorf("apply proposal %s: %w", proposalID, ErrNotEnrolled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}
