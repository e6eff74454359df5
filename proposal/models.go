package proposal

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

const (
	// PanelSize is the fixed number of reviewers assigned to every proposal.
	PanelSize = 5
	// LoadCeiling caps concurrently pending review assignments per faculty.
	LoadCeiling = 7
	// ApprovalThreshold is the majority of a full panel. Three approvals
	// finalize a proposal; a single reject finalizes it first.
	ApprovalThreshold = 3
	// MaxFeedbackLen bounds review feedback (~500 words).
	MaxFeedbackLen = 2500
)

// Proposal mirrors the proposals table columns touched by the services.
type Proposal struct {
	ID             string
	OwnerID        string
	ResearchArea   string
	Title          string
	Summary        string
	Status         Status
	SeatCapacity   int
	SeatsRemaining int
	Approvals      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Review is an immutable reviewer decision on a proposal.
type Review struct {
	ID         string
	ProposalID string
	ReviewerID string
	Decision   Decision
	Feedback   string
	CreatedAt  time.Time
}

// Candidate is a faculty member eligible for panel duty, as seen by the
// rotation ring: stable identifier plus current pending-review load.
type Candidate struct {
	ID             string
	PendingReviews int
}

// Detail bundles a proposal with its panel and the reviews recorded so far.
type Detail struct {
	Proposal Proposal
	Panel    []string
	Reviews  []Review
}
