package proposal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the proposal does not exist.
	ErrNotFound = errors.New("proposal: not found")
	// ErrOwnerNotFaculty signals the proposing account is missing or not a faculty member.
	ErrOwnerNotFaculty = errors.New("proposal: owner is not a faculty member")
)

// Owner is the subset of the proposing account the assignment engine needs.
type Owner struct {
	ID           string
	ResearchArea string
}

// ReviewSnapshot is the locked proposal state the consensus machine decides on.
type ReviewSnapshot struct {
	Proposal Proposal
	Panel    []string
	Reviewed map[string]bool
}

// CreateRecord enumerates the proposal insert parameters.
type CreateRecord struct {
	OwnerID      string
	ResearchArea string
	Title        string
	Summary      string
	SeatCapacity int
}

// Repository defines the data access required by the proposal services.
type Repository interface {
	GetOwner(ctx context.Context, tx pgx.Tx, ownerID string) (Owner, error)
	AreaRingForUpdate(ctx context.Context, tx pgx.Tx, area, excludeID string) ([]Candidate, error)
	CountAreaProposals(ctx context.Context, tx pgx.Tx, area string) (int, error)
	InsertProposal(ctx context.Context, tx pgx.Tx, rec CreateRecord) (Proposal, error)
	InsertPanel(ctx context.Context, tx pgx.Tx, proposalID string, reviewerIDs []string) error
	AddPendingLoad(ctx context.Context, tx pgx.Tx, reviewerIDs []string, delta int) error
	GetForReview(ctx context.Context, tx pgx.Tx, proposalID string) (ReviewSnapshot, error)
	InsertReview(ctx context.Context, tx pgx.Tx, proposalID, reviewerID string, decision Decision, feedback string) (Review, error)
	SetApprovals(ctx context.Context, tx pgx.Tx, proposalID string, approvals int) error
	Finalize(ctx context.Context, tx pgx.Tx, proposalID string, status Status) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed proposal repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetOwner(ctx context.Context, tx pgx.Tx, ownerID string) (Owner, error) {
	const query = `
		SELECT id, research_area
		FROM users
		WHERE id = $1 AND role = 'faculty' AND research_area IS NOT NULL
	`
	var o Owner
	if err := tx.QueryRow(ctx, query, ownerID).Scan(&o.ID, &o.ResearchArea); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Owner{}, ErrOwnerNotFaculty
		}
		return Owner{}, fmt.Errorf("proposal: get owner: %w", err)
	}
	return o, nil
}

// AreaRingForUpdate locks the area's eligible faculty rows in id order and
// returns them as the rotation ring. The consistent ordering keeps concurrent
// assignments in one area from deadlocking against each other.
func (r *PGRepository) AreaRingForUpdate(ctx context.Context, tx pgx.Tx, area, excludeID string) ([]Candidate, error) {
	const query = `
		SELECT id, pending_reviews
		FROM users
		WHERE role = 'faculty' AND research_area = $1 AND id <> $2
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, area, excludeID)
	if err != nil {
		return nil, fmt.Errorf("proposal: lock area ring: %w", err)
	}
	defer rows.Close()

	ring := make([]Candidate, 0, 16)
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.PendingReviews); err != nil {
			return nil, fmt.Errorf("proposal: scan candidate: %w", err)
		}
		ring = append(ring, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: iterate candidates: %w", err)
	}
	return ring, nil
}

func (r *PGRepository) CountAreaProposals(ctx context.Context, tx pgx.Tx, area string) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM proposals WHERE research_area = $1`, area).Scan(&n); err != nil {
		return 0, fmt.Errorf("proposal: count area proposals: %w", err)
	}
	return n, nil
}

func (r *PGRepository) InsertProposal(ctx context.Context, tx pgx.Tx, rec CreateRecord) (Proposal, error) {
	const insertSQL = `
		INSERT INTO proposals (owner_id, research_area, title, summary, seat_capacity, seats_remaining)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, owner_id, research_area, title, summary, status::text, seat_capacity, seats_remaining, approvals, created_at, updated_at
	`

	p, err := scanProposal(tx.QueryRow(ctx, insertSQL, rec.OwnerID, rec.ResearchArea, rec.Title, rec.Summary, rec.SeatCapacity))
	if err != nil {
		return Proposal{}, fmt.Errorf("proposal: insert: %w", err)
	}
	return p, nil
}

func (r *PGRepository) InsertPanel(ctx context.Context, tx pgx.Tx, proposalID string, reviewerIDs []string) error {
	for i, reviewerID := range reviewerIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO proposal_reviewers (proposal_id, reviewer_id, position)
			VALUES ($1, $2, $3)
		`, proposalID, reviewerID, i); err != nil {
			return fmt.Errorf("proposal: insert panel row: %w", err)
		}
	}
	return nil
}

func (r *PGRepository) AddPendingLoad(ctx context.Context, tx pgx.Tx, reviewerIDs []string, delta int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET pending_reviews = pending_reviews + $1,
		    updated_at = now()
		WHERE id = ANY($2)
	`, delta, reviewerIDs)
	if err != nil {
		return fmt.Errorf("proposal: adjust pending load: %w", err)
	}
	if int(tag.RowsAffected()) != len(reviewerIDs) {
		return fmt.Errorf("proposal: adjusted %d of %d reviewer loads", tag.RowsAffected(), len(reviewerIDs))
	}
	return nil
}

func (r *PGRepository) GetForReview(ctx context.Context, tx pgx.Tx, proposalID string) (ReviewSnapshot, error) {
	const lockSQL = `
		SELECT id, owner_id, research_area, title, summary, status::text, seat_capacity, seats_remaining, approvals, created_at, updated_at
		FROM proposals
		WHERE id = $1
		FOR UPDATE
	`

	p, err := scanProposal(tx.QueryRow(ctx, lockSQL, proposalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReviewSnapshot{}, ErrNotFound
		}
		return ReviewSnapshot{}, fmt.Errorf("proposal: lock for review: %w", err)
	}

	snap := ReviewSnapshot{
		Proposal: p,
		Reviewed: make(map[string]bool, PanelSize),
	}

	rows, err := tx.Query(ctx, `
		SELECT reviewer_id
		FROM proposal_reviewers
		WHERE proposal_id = $1
		ORDER BY position ASC
	`, proposalID)
	if err != nil {
		return ReviewSnapshot{}, fmt.Errorf("proposal: load panel: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ReviewSnapshot{}, fmt.Errorf("proposal: scan panel row: %w", err)
		}
		snap.Panel = append(snap.Panel, id)
	}
	if err := rows.Err(); err != nil {
		return ReviewSnapshot{}, fmt.Errorf("proposal: iterate panel: %w", err)
	}

	reviewedRows, err := tx.Query(ctx, `SELECT reviewer_id FROM reviews WHERE proposal_id = $1`, proposalID)
	if err != nil {
		return ReviewSnapshot{}, fmt.Errorf("proposal: load reviews: %w", err)
	}
	defer reviewedRows.Close()
	for reviewedRows.Next() {
		var id string
		if err := reviewedRows.Scan(&id); err != nil {
			return ReviewSnapshot{}, fmt.Errorf("proposal: scan review row: %w", err)
		}
		snap.Reviewed[id] = true
	}
	if err := reviewedRows.Err(); err != nil {
		return ReviewSnapshot{}, fmt.Errorf("proposal: iterate reviews: %w", err)
	}

	return snap, nil
}

func (r *PGRepository) InsertReview(ctx context.Context, tx pgx.Tx, proposalID, reviewerID string, decision Decision, feedback string) (Review, error) {
	const insertSQL = `
		INSERT INTO reviews (proposal_id, reviewer_id, decision, feedback)
		VALUES ($1, $2, $3::review_decision, $4)
		RETURNING id, proposal_id, reviewer_id, decision::text, feedback, created_at
	`

	var rev Review
	err := tx.QueryRow(ctx, insertSQL, proposalID, reviewerID, decision, feedback).Scan(
		&rev.ID,
		&rev.ProposalID,
		&rev.ReviewerID,
		&rev.Decision,
		&rev.Feedback,
		&rev.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Review{}, ErrAlreadyReviewed
		}
		return Review{}, fmt.Errorf("proposal: insert review: %w", err)
	}
	return rev, nil
}

func (r *PGRepository) SetApprovals(ctx context.Context, tx pgx.Tx, proposalID string, approvals int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE proposals SET approvals = $2, updated_at = now() WHERE id = $1
	`, proposalID, approvals); err != nil {
		return fmt.Errorf("proposal: set approvals: %w", err)
	}
	return nil
}

func (r *PGRepository) Finalize(ctx context.Context, tx pgx.Tx, proposalID string, status Status) error {
	if _, err := tx.Exec(ctx, `
		UPDATE proposals
		SET status = $2::proposal_status,
		    updated_at = now()
		WHERE id = $1
	`, proposalID, status); err != nil {
		return fmt.Errorf("proposal: finalize: %w", err)
	}
	return nil
}

func scanProposal(row pgx.Row) (Proposal, error) {
	var p Proposal
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.ResearchArea,
		&p.Title,
		&p.Summary,
		&p.Status,
		&p.SeatCapacity,
		&p.SeatsRemaining,
		&p.Approvals,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}
