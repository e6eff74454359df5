package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"projectmatch/application"
	"projectmatch/db"
	"projectmatch/proposal"
)

// tolerable reports whether an actor error is an expected outcome under
// contention or chaos rather than a harness failure. Codes 08 and 57 show
// up when the chaos goroutine kills our backend mid-operation.
func tolerable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, proposal.ErrInsufficientReviewers),
		errors.Is(err, proposal.ErrWorkloadExceeded),
		errors.Is(err, proposal.ErrAlreadyReviewed),
		errors.Is(err, proposal.ErrReviewClosed),
		errors.Is(err, proposal.ErrNotAssigned),
		errors.Is(err, proposal.ErrNotFound):
		return true
	case errors.Is(err, application.ErrLimitExceeded),
		errors.Is(err, application.ErrDuplicate),
		errors.Is(err, application.ErrNotApplicable),
		errors.Is(err, application.ErrAlreadySelected),
		errors.Is(err, application.ErrNotPending),
		errors.Is(err, application.ErrNotFound):
		return true
	case db.IsUnavailable(err):
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "57", "40":
			return true
		}
	}
	return false
}

// Proposer submits proposals on behalf of a rotating set of faculty owners.
// Panel assignment and the load ceiling run inside the service, so rejections
// for thin rings or overloaded reviewers are expected outcomes.
func Proposer(ctx context.Context, svc *proposal.Service, ownerIDs []string, stop <-chan struct{}) error {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		owner := ownerIDs[rand.Intn(len(ownerIDs))]
		n++
		_, err := svc.Create(ctx, proposal.CreateParams{
			OwnerID:      owner,
			Title:        fmt.Sprintf("stress proposal %d", n),
			Summary:      "generated under load",
			SeatCapacity: 1 + rand.Intn(3),
		})
		if !tolerable(err) {
			return fmt.Errorf("proposer: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
	}
}

// Reviewer drains one panelist's queue with randomized decisions. Most
// decisions approve so proposals reach the approved pool the applicants need.
func Reviewer(ctx context.Context, svc *proposal.Service, queries *proposal.Queries, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		queue, err := queries.ListForReviewer(ctx, reviewerID)
		if err != nil {
			if tolerable(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("reviewer queue: %w", err)
		}
		if len(queue) == 0 {
			time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
			continue
		}

		target := queue[rand.Intn(len(queue))]
		params := proposal.ReviewParams{
			ProposalID: target.ID,
			ReviewerID: reviewerID,
			Decision:   proposal.DecisionApprove,
		}
		if rand.Intn(10) == 0 {
			params.Decision = proposal.DecisionReject
			params.Feedback = "insufficient methodology detail"
		}
		if _, err := svc.Review(ctx, params); !tolerable(err) {
			return fmt.Errorf("reviewer decide: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	}
}

// Applicant applies to random approved proposals, racing siblings for seats
// and its own cap.
func Applicant(ctx context.Context, svc *application.Service, queries *proposal.Queries, studentID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		approved, err := queries.ListByStatus(ctx, proposal.StatusApproved)
		if err != nil {
			if tolerable(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("applicant list: %w", err)
		}
		if len(approved) == 0 {
			time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
			continue
		}

		target := approved[rand.Intn(len(approved))]
		if _, err := svc.Apply(ctx, studentID, target.ID); !tolerable(err) {
			return fmt.Errorf("applicant apply: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
	}
}

// Selector settles pending applications on one owner's proposals, mostly
// selecting, sometimes rejecting to hand the seat back.
func Selector(ctx context.Context, svc *application.Service, queries *application.Queries, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		records, err := queries.ListForOwner(ctx, ownerID)
		if err != nil {
			if tolerable(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("selector list: %w", err)
		}

		var pending []application.Record
		for _, r := range records {
			if r.Status == application.StatusPending {
				pending = append(pending, r)
			}
		}
		if len(pending) == 0 {
			time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
			continue
		}

		target := pending[rand.Intn(len(pending))]
		if rand.Intn(4) == 0 {
			_, err = svc.Reject(ctx, ownerID, target.ID)
		} else {
			_, err = svc.Select(ctx, ownerID, target.ID)
		}
		if !tolerable(err) {
			return fmt.Errorf("selector settle: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(70)) * time.Millisecond)
	}
}
