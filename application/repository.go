package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the application does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrStudentNotFound signals the applying account is missing or not a student.
	ErrStudentNotFound = errors.New("application: student not found")
	// ErrDuplicate signals the student already applied to this proposal.
	ErrDuplicate = errors.New("application: already applied to proposal")
	// ErrAlreadySelected signals the student already holds a selection somewhere.
	ErrAlreadySelected = errors.New("application: student already selected elsewhere")
)

// ProposalState is the locked proposal view the apply precondition needs.
type ProposalState struct {
	ID             string
	OwnerID        string
	Status         string
	SeatsRemaining int
}

// Repository defines the data access required by the application engine.
type Repository interface {
	LockStudent(ctx context.Context, tx pgx.Tx, studentID string) error
	CountByStudent(ctx context.Context, tx pgx.Tx, studentID string) (int, error)
	ExistsForProposal(ctx context.Context, tx pgx.Tx, studentID, proposalID string) (bool, error)
	GetProposalForUpdate(ctx context.Context, tx pgx.Tx, proposalID string) (ProposalState, error)
	Insert(ctx context.Context, tx pgx.Tx, studentID, proposalID string) (Application, error)
	AdjustSeats(ctx context.Context, tx pgx.Tx, proposalID string, delta int) error
	GetRecord(ctx context.Context, tx pgx.Tx, applicationID string) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, applicationID string) (Application, error)
	StudentHasSelection(ctx context.Context, tx pgx.Tx, studentID string) (bool, error)
	SetStatus(ctx context.Context, tx pgx.Tx, applicationID string, status Status) error
	RejectOthers(ctx context.Context, tx pgx.Tx, studentID, keepApplicationID string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed application repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LockStudent takes the student's row lock. It is the serialization point for
// the per-student invariants: the application cap and single selection.
func (r *PGRepository) LockStudent(ctx context.Context, tx pgx.Tx, studentID string) error {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id FROM users WHERE id = $1 AND role = 'student' FOR UPDATE
	`, studentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("application: lock student: %w", err)
	}
	return nil
}

func (r *PGRepository) CountByStudent(ctx context.Context, tx pgx.Tx, studentID string) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM applications WHERE student_id = $1`, studentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("application: count by student: %w", err)
	}
	return n, nil
}

func (r *PGRepository) ExistsForProposal(ctx context.Context, tx pgx.Tx, studentID, proposalID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE student_id = $1 AND proposal_id = $2)
	`, studentID, proposalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("application: check duplicate: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) GetProposalForUpdate(ctx context.Context, tx pgx.Tx, proposalID string) (ProposalState, error) {
	var p ProposalState
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, status::text, seats_remaining
		FROM proposals
		WHERE id = $1
		FOR UPDATE
	`, proposalID).Scan(&p.ID, &p.OwnerID, &p.Status, &p.SeatsRemaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProposalState{}, ErrNotFound
		}
		return ProposalState{}, fmt.Errorf("application: lock proposal: %w", err)
	}
	return p, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, studentID, proposalID string) (Application, error) {
	const insertSQL = `
		INSERT INTO applications (student_id, proposal_id)
		VALUES ($1, $2)
		RETURNING id, student_id, proposal_id, status::text, created_at, updated_at
	`

	var app Application
	err := tx.QueryRow(ctx, insertSQL, studentID, proposalID).Scan(
		&app.ID, &app.StudentID, &app.ProposalID, &app.Status, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, ErrDuplicate
		}
		return Application{}, fmt.Errorf("application: insert: %w", err)
	}
	return app, nil
}

func (r *PGRepository) AdjustSeats(ctx context.Context, tx pgx.Tx, proposalID string, delta int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE proposals
		SET seats_remaining = seats_remaining + $2,
		    updated_at = now()
		WHERE id = $1
	`, proposalID, delta); err != nil {
		return fmt.Errorf("application: adjust seats: %w", err)
	}
	return nil
}

func (r *PGRepository) GetRecord(ctx context.Context, tx pgx.Tx, applicationID string) (Record, error) {
	const query = `
		SELECT a.id, a.student_id, a.proposal_id, a.status::text, a.created_at, a.updated_at,
		       p.owner_id, p.title
		FROM applications a
		JOIN proposals p ON p.id = a.proposal_id
		WHERE a.id = $1
	`

	var rec Record
	err := tx.QueryRow(ctx, query, applicationID).Scan(
		&rec.ID, &rec.StudentID, &rec.ProposalID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.ProposalOwnerID, &rec.ProposalTitle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("application: get record: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, applicationID string) (Application, error) {
	var app Application
	err := tx.QueryRow(ctx, `
		SELECT id, student_id, proposal_id, status::text, created_at, updated_at
		FROM applications
		WHERE id = $1
		FOR UPDATE
	`, applicationID).Scan(&app.ID, &app.StudentID, &app.ProposalID, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("application: lock application: %w", err)
	}
	return app, nil
}

func (r *PGRepository) StudentHasSelection(ctx context.Context, tx pgx.Tx, studentID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE student_id = $1 AND status = 'selected')
	`, studentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("application: check selection: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, tx pgx.Tx, applicationID string, status Status) error {
	if _, err := tx.Exec(ctx, `
		UPDATE applications
		SET status = $2::application_status,
		    updated_at = now()
		WHERE id = $1
	`, applicationID, status); err != nil {
		return fmt.Errorf("application: set status: %w", err)
	}
	return nil
}

// RejectOthers marks every other application by the student rejected. Seats on
// those proposals are deliberately left untouched; only an explicit faculty
// rejection restores a seat.
func (r *PGRepository) RejectOthers(ctx context.Context, tx pgx.Tx, studentID, keepApplicationID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE applications
		SET status = 'rejected',
		    updated_at = now()
		WHERE student_id = $1 AND id <> $2 AND status <> 'rejected'
	`, studentID, keepApplicationID); err != nil {
		return fmt.Errorf("application: reject siblings: %w", err)
	}
	return nil
}
