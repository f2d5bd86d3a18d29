// Package storage persists responses, subject levels, rosters and proposals.
//
// Proposals and subject levels live behind one store so that approving a
// proposal and applying its level change commit together. Two backends share
// the contract: Memory (a single mutex acting as the database) and SQL
// (PostgreSQL through pgx or lib/pq, or SQLite through modernc.org/sqlite).
//
// Stores return pkg/platform/sentinel errors; services translate them.
package storage

import (
	"context"
	"time"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
)

// Store is the full persistence contract implemented by Memory and SQL.
// Services depend on narrower interfaces declared where they are used.
type Store interface {
	AppendResponses(ctx context.Context, responses []learner.Response) error
	FindResponses(ctx context.Context, learnerID id.LearnerID, subject id.Subject, window *learner.DateRange) ([]learner.Response, error)

	GetSubjectLevel(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*learner.SubjectLevel, error)
	UpsertSubjectLevel(ctx context.Context, level learner.SubjectLevel) error

	AddToRoster(ctx context.Context, entry learner.RosterEntry) error
	VisibleLearners(ctx context.Context, viewerID id.ViewerID, scope learner.Scope) ([]learner.RosterEntry, error)

	CreatePending(ctx context.Context, p *models.Proposal) error
	FindByID(ctx context.Context, proposalID id.ProposalID) (*models.Proposal, error)
	FindPending(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*models.Proposal, error)
	ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error)
	ListPendingForLearners(ctx context.Context, learnerIDs []id.LearnerID) ([]*models.Proposal, error)
	ApplyDecision(ctx context.Context, proposalID id.ProposalID, d models.Decision, now time.Time) (*models.Proposal, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)

type levelKey struct {
	learner id.LearnerID
	subject id.Subject
}
