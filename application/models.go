package application

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusSelected Status = "selected"
	StatusRejected Status = "rejected"
)

// MaxPerStudent caps a student's applications across every status.
const MaxPerStudent = 3

// Application mirrors the applications table.
type Application struct {
	ID         string
	StudentID  string
	ProposalID string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Record joins an application with the owning faculty of its proposal,
// which the select/reject authorization rule needs.
type Record struct {
	Application
	ProposalOwnerID string
	ProposalTitle   string
}
