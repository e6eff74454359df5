package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrLimitExceeded signals the student already holds MaxPerStudent applications.
	ErrLimitExceeded = errors.New("application: application limit reached")
	// ErrNotApplicable signals the proposal is not approved or has no seats left.
	ErrNotApplicable = errors.New("application: proposal not open for applications")
	// ErrNotAuthorized signals an actor acting on another faculty's proposal.
	ErrNotAuthorized = errors.New("application: actor does not own proposal")
	// ErrNotPending signals a selection/rejection on an already-settled application.
	ErrNotPending = errors.New("application: application already settled")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service enforces the application consistency rules: the per-student cap,
// seat accounting and system-wide single selection. Lock order inside every
// transaction is student row first, then proposal row, so concurrent applies
// and selects for one student serialize instead of racing their checks.
type Service struct {
	pool TxBeginner
	repo Repository
}

// NewService builds an application service.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{pool: pool, repo: repo}
}

// Apply creates a pending application and takes one seat.
func (s *Service) Apply(ctx context.Context, studentID, proposalID string) (Application, error) {
	if studentID == "" || proposalID == "" {
		return Application{}, fmt.Errorf("application: student and proposal ids required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.LockStudent(ctx, tx, studentID); err != nil {
		return Application{}, err
	}

	count, err := s.repo.CountByStudent(ctx, tx, studentID)
	if err != nil {
		return Application{}, err
	}
	if count >= MaxPerStudent {
		return Application{}, ErrLimitExceeded
	}

	exists, err := s.repo.ExistsForProposal(ctx, tx, studentID, proposalID)
	if err != nil {
		return Application{}, err
	}
	if exists {
		return Application{}, ErrDuplicate
	}

	prop, err := s.repo.GetProposalForUpdate(ctx, tx, proposalID)
	if err != nil {
		return Application{}, err
	}
	if prop.Status != "approved" || prop.SeatsRemaining <= 0 {
		return Application{}, ErrNotApplicable
	}

	app, err := s.repo.Insert(ctx, tx, studentID, proposalID)
	if err != nil {
		return Application{}, err
	}
	if err := s.repo.AdjustSeats(ctx, tx, proposalID, -1); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit apply: %w", err)
	}

	return app, nil
}

// Select marks one application selected and, in the same transaction, rejects
// every other application the student holds anywhere in the system. Seats on
// those sibling proposals are not restored.
func (s *Service) Select(ctx context.Context, facultyID, applicationID string) (Application, error) {
	if facultyID == "" || applicationID == "" {
		return Application{}, fmt.Errorf("application: faculty and application ids required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetRecord(ctx, tx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if rec.ProposalOwnerID != facultyID {
		return Application{}, ErrNotAuthorized
	}

	if err := s.repo.LockStudent(ctx, tx, rec.StudentID); err != nil {
		return Application{}, err
	}

	// Re-read under the student lock; a concurrent select may have settled it.
	app, err := s.repo.GetForUpdate(ctx, tx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusPending {
		return Application{}, ErrNotPending
	}

	selected, err := s.repo.StudentHasSelection(ctx, tx, rec.StudentID)
	if err != nil {
		return Application{}, err
	}
	if selected {
		return Application{}, ErrAlreadySelected
	}

	if err := s.repo.SetStatus(ctx, tx, applicationID, StatusSelected); err != nil {
		return Application{}, err
	}
	if err := s.repo.RejectOthers(ctx, tx, rec.StudentID, applicationID); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit select: %w", err)
	}

	app.Status = StatusSelected
	return app, nil
}

// Reject settles one application as rejected and restores its seat.
func (s *Service) Reject(ctx context.Context, facultyID, applicationID string) (Application, error) {
	if facultyID == "" || applicationID == "" {
		return Application{}, fmt.Errorf("application: faculty and application ids required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetRecord(ctx, tx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if rec.ProposalOwnerID != facultyID {
		return Application{}, ErrNotAuthorized
	}

	if err := s.repo.LockStudent(ctx, tx, rec.StudentID); err != nil {
		return Application{}, err
	}

	app, err := s.repo.GetForUpdate(ctx, tx, applicationID)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusPending {
		return Application{}, ErrNotPending
	}

	if err := s.repo.SetStatus(ctx, tx, applicationID, StatusRejected); err != nil {
		return Application{}, err
	}
	if err := s.repo.AdjustSeats(ctx, tx, app.ProposalID, 1); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit reject: %w", err)
	}

	app.Status = StatusRejected
	return app, nil
}
