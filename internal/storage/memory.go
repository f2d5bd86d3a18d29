package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	"gradegate/pkg/platform/sentinel"
)

// Memory keeps everything in maps behind one lock. Every method takes the
// lock for its full duration, so multi-record writes are atomic.
type Memory struct {
	mu        sync.RWMutex
	responses map[id.LearnerID][]learner.Response
	levels    map[levelKey]learner.SubjectLevel
	roster    map[id.ViewerID][]learner.RosterEntry
	proposals map[id.ProposalID]*models.Proposal
	pending   map[levelKey]id.ProposalID
}

func NewMemory() *Memory {
	return &Memory{
		responses: make(map[id.LearnerID][]learner.Response),
		levels:    make(map[levelKey]learner.SubjectLevel),
		roster:    make(map[id.ViewerID][]learner.RosterEntry),
		proposals: make(map[id.ProposalID]*models.Proposal),
		pending:   make(map[levelKey]id.ProposalID),
	}
}

func (m *Memory) AppendResponses(_ context.Context, responses []learner.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.responses[r.LearnerID] = append(m.responses[r.LearnerID], r)
	}
	return nil
}

// FindResponses returns the learner's responses for subject ordered by AnsweredAt.
func (m *Memory) FindResponses(_ context.Context, learnerID id.LearnerID, subject id.Subject, window *learner.DateRange) ([]learner.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []learner.Response
	for _, r := range m.responses[learnerID] {
		if r.Subject == subject && window.Contains(r.AnsweredAt) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnsweredAt.Before(out[j].AnsweredAt)
	})
	return out, nil
}

func (m *Memory) GetSubjectLevel(_ context.Context, learnerID id.LearnerID, subject id.Subject) (*learner.SubjectLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	level, ok := m.levels[levelKey{learnerID, subject}]
	if !ok {
		return nil, fmt.Errorf("subject level %s/%s: %w", learnerID, subject, sentinel.ErrNotFound)
	}
	return &level, nil
}

func (m *Memory) UpsertSubjectLevel(_ context.Context, level learner.SubjectLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[levelKey{level.LearnerID, level.Subject}] = level
	return nil
}

// AddToRoster is idempotent per (viewer, scope, learner).
func (m *Memory) AddToRoster(_ context.Context, entry learner.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roster[entry.ViewerID] {
		if existing.Scope == entry.Scope && existing.LearnerID == entry.LearnerID {
			return nil
		}
	}
	m.roster[entry.ViewerID] = append(m.roster[entry.ViewerID], entry)
	return nil
}

func (m *Memory) VisibleLearners(_ context.Context, viewerID id.ViewerID, scope learner.Scope) ([]learner.RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []learner.RosterEntry
	for _, entry := range m.roster[viewerID] {
		if entry.Scope == scope {
			out = append(out, entry)
		}
	}
	return out, nil
}

// CreatePending stores p unless (learner, subject) already has a pending
// proposal, in which case it returns sentinel.ErrConflict.
func (m *Memory) CreatePending(_ context.Context, p *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := levelKey{p.LearnerID, p.Subject}
	if existing, ok := m.pending[key]; ok {
		return fmt.Errorf("pending proposal %s exists: %w", existing, sentinel.ErrConflict)
	}
	if _, ok := m.proposals[p.ID]; ok {
		return fmt.Errorf("proposal %s exists: %w", p.ID, sentinel.ErrConflict)
	}
	m.proposals[p.ID] = p.Clone()
	m.pending[key] = p.ID
	return nil
}

func (m *Memory) FindByID(_ context.Context, proposalID id.ProposalID) (*models.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *Memory) FindPending(_ context.Context, learnerID id.LearnerID, subject id.Subject) (*models.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	proposalID, ok := m.pending[levelKey{learnerID, subject}]
	if !ok {
		return nil, fmt.Errorf("pending proposal for %s/%s: %w", learnerID, subject, sentinel.ErrNotFound)
	}
	return m.proposals[proposalID].Clone(), nil
}

// ListPending returns the learner's pending proposals oldest first.
func (m *Memory) ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error) {
	return m.ListPendingForLearners(ctx, []id.LearnerID{learnerID})
}

func (m *Memory) ListPendingForLearners(_ context.Context, learnerIDs []id.LearnerID) ([]*models.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Proposal, 0)
	for key, proposalID := range m.pending {
		if slices.Contains(learnerIDs, key.learner) {
			out = append(out, m.proposals[proposalID].Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// ApplyDecision moves a pending proposal to its terminal state and, on
// approval, sets the learner's assessed grade level to ToLevel. Either both
// writes happen or neither does.
func (m *Memory) ApplyDecision(_ context.Context, proposalID id.ProposalID, d models.Decision, now time.Time) (*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, sentinel.ErrNotFound)
	}
	if stored.Status != models.StatusPending {
		return nil, fmt.Errorf("proposal %s is %s: %w", proposalID, stored.Status, sentinel.ErrInvalidState)
	}

	key := levelKey{stored.LearnerID, stored.Subject}
	var level learner.SubjectLevel
	if d.Approve {
		level, ok = m.levels[key]
		if !ok {
			return nil, fmt.Errorf("apply proposal %s: %w", proposalID, ErrNotEnrolled)
		}
	}

	decided := stored.Clone()
	decided.ApplyDecision(d, now)
	if d.Approve {
		level.AssessedGradeLevel = decided.ToLevel
		level.UpdatedAt = now
		m.levels[key] = level
	}
	m.proposals[proposalID] = decided
	delete(m.pending, key)
	return decided.Clone(), nil
}

func sortByCreated(ps []*models.Proposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID.String() < ps[j].ID.String()
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
