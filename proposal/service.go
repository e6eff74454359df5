package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotAssigned signals a decision from a faculty member outside the panel.
	ErrNotAssigned = errors.New("proposal: reviewer not on assigned panel")
	// ErrAlreadyReviewed signals a second decision from the same reviewer.
	ErrAlreadyReviewed = errors.New("proposal: reviewer already reviewed")
	// ErrReviewClosed signals a decision on a proposal already finalized.
	ErrReviewClosed = errors.New("proposal: review cycle concluded")
	// ErrFeedbackRequired signals a reject decision without feedback.
	ErrFeedbackRequired = errors.New("proposal: reject requires feedback")
	// ErrFeedbackTooLong signals feedback above the configured bound.
	ErrFeedbackTooLong = errors.New("proposal: feedback exceeds length bound")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service runs the reviewer assignment engine and the review consensus
// machine. Every mutating operation is one transaction: the precondition
// checks and the writes they guard commit together or not at all.
type Service struct {
	pool TxBeginner
	repo Repository
}

// NewService builds a proposal service.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{pool: pool, repo: repo}
}

// CreateParams carries a faculty member's new proposal submission.
type CreateParams struct {
	OwnerID      string
	Title        string
	Summary      string
	SeatCapacity int
}

// Create submits a proposal and assigns its reviewer panel atomically.
//
// The panel is PanelSize consecutive entries of the area ring (the area's
// faculty excluding the proposer, sorted by id), starting at an offset that
// advances with every proposal the area has seen. Each panelist's pending
// load is checked against LoadCeiling before anything is written; on success
// the proposal, its panel rows and the load increments commit together.
func (s *Service) Create(ctx context.Context, params CreateParams) (Detail, error) {
	if params.OwnerID == "" {
		return Detail{}, fmt.Errorf("proposal: missing owner id")
	}
	if strings.TrimSpace(params.Title) == "" {
		return Detail{}, fmt.Errorf("proposal: title required")
	}
	if params.SeatCapacity < 1 {
		return Detail{}, fmt.Errorf("proposal: seat capacity must be at least 1")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Detail{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	owner, err := s.repo.GetOwner(ctx, tx, params.OwnerID)
	if err != nil {
		return Detail{}, err
	}

	ring, err := s.repo.AreaRingForUpdate(ctx, tx, owner.ResearchArea, owner.ID)
	if err != nil {
		return Detail{}, err
	}

	prior, err := s.repo.CountAreaProposals(ctx, tx, owner.ResearchArea)
	if err != nil {
		return Detail{}, err
	}

	panel, err := panelFor(ring, prior)
	if err != nil {
		return Detail{}, err
	}

	created, err := s.repo.InsertProposal(ctx, tx, CreateRecord{
		OwnerID:      owner.ID,
		ResearchArea: owner.ResearchArea,
		Title:        strings.TrimSpace(params.Title),
		Summary:      strings.TrimSpace(params.Summary),
		SeatCapacity: params.SeatCapacity,
	})
	if err != nil {
		return Detail{}, err
	}

	panelIDs := make([]string, 0, PanelSize)
	for _, c := range panel {
		panelIDs = append(panelIDs, c.ID)
	}

	if err := s.repo.InsertPanel(ctx, tx, created.ID, panelIDs); err != nil {
		return Detail{}, err
	}
	if err := s.repo.AddPendingLoad(ctx, tx, panelIDs, 1); err != nil {
		return Detail{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Detail{}, fmt.Errorf("proposal: commit tx: %w", err)
	}

	return Detail{Proposal: created, Panel: panelIDs}, nil
}

// ReviewParams carries one reviewer decision.
type ReviewParams struct {
	ProposalID string
	ReviewerID string
	Decision   Decision
	Feedback   string
}

// ReviewResult reports the recorded review and the proposal state after it.
type ReviewResult struct {
	Review   Review
	Proposal Proposal
}

// Review records a panel decision and advances the consensus machine.
//
// Policy: a single reject (feedback mandatory) finalizes the proposal as
// rejected immediately; approvals accumulate and the proposal finalizes as
// approved at ApprovalThreshold. On either terminal transition every
// panelist's pending load is released exactly once, in the same transaction.
func (s *Service) Review(ctx context.Context, params ReviewParams) (ReviewResult, error) {
	feedback := strings.TrimSpace(params.Feedback)
	switch params.Decision {
	case DecisionApprove:
	case DecisionReject:
		if feedback == "" {
			return ReviewResult{}, ErrFeedbackRequired
		}
	default:
		return ReviewResult{}, fmt.Errorf("proposal: invalid decision %q", params.Decision)
	}
	if len(feedback) > MaxFeedbackLen {
		return ReviewResult{}, ErrFeedbackTooLong
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.GetForReview(ctx, tx, params.ProposalID)
	if err != nil {
		return ReviewResult{}, err
	}

	if snap.Proposal.Status != StatusPending {
		return ReviewResult{}, ErrReviewClosed
	}
	if !contains(snap.Panel, params.ReviewerID) {
		return ReviewResult{}, ErrNotAssigned
	}
	if snap.Reviewed[params.ReviewerID] {
		return ReviewResult{}, ErrAlreadyReviewed
	}

	rev, err := s.repo.InsertReview(ctx, tx, params.ProposalID, params.ReviewerID, params.Decision, feedback)
	if err != nil {
		return ReviewResult{}, err
	}

	result := ReviewResult{Review: rev, Proposal: snap.Proposal}

	switch params.Decision {
	case DecisionReject:
		if err := s.finalize(ctx, tx, &result.Proposal, snap.Panel, StatusRejected); err != nil {
			return ReviewResult{}, err
		}
	case DecisionApprove:
		result.Proposal.Approvals = snap.Proposal.Approvals + 1
		if err := s.repo.SetApprovals(ctx, tx, snap.Proposal.ID, result.Proposal.Approvals); err != nil {
			return ReviewResult{}, err
		}
		if result.Proposal.Approvals >= ApprovalThreshold {
			if err := s.finalize(ctx, tx, &result.Proposal, snap.Panel, StatusApproved); err != nil {
				return ReviewResult{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ReviewResult{}, fmt.Errorf("proposal: commit review: %w", err)
	}

	return result, nil
}

// finalize moves the proposal to a terminal status and releases every
// panelist's pending load, regardless of how many reviews were submitted.
func (s *Service) finalize(ctx context.Context, tx pgx.Tx, p *Proposal, panel []string, status Status) error {
	if err := s.repo.Finalize(ctx, tx, p.ID, status); err != nil {
		return err
	}
	if err := s.repo.AddPendingLoad(ctx, tx, panel, -1); err != nil {
		return err
	}
	p.Status = status
	return nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
