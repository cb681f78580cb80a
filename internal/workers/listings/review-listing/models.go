// internal/workers/listings/review-listing/models.go
package reviewlisting

import (
	"time"

	"suburbmates-workers/internal/common/validation"
)

const (
	ActionApprove   = "approve"
	ActionReject    = "reject"
	ActionSuspend   = "suspend"
	ActionReinstate = "reinstate"

	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusSuspended = "suspended"
)

type transition struct {
	from string
	to   string
}

// transitions is the full review state machine: each action is legal from
// exactly one status.
var transitions = map[string]transition{
	ActionApprove:   {from: StatusPending, to: StatusApproved},
	ActionReject:    {from: StatusPending, to: StatusRejected},
	ActionSuspend:   {from: StatusApproved, to: StatusSuspended},
	ActionReinstate: {from: StatusSuspended, to: StatusApproved},
}

type Input struct {
	BusinessID string `json:"businessId"`
	Action     string `json:"action"`
	ReviewerID string `json:"reviewerId"`
	Reason     string `json:"reason,omitempty"`
}

type Output struct {
	BusinessID    string    `json:"businessId"`
	ReviewID      string    `json:"reviewId"`
	Action        string    `json:"action"`
	FromStatus    string    `json:"fromStatus"`
	ToStatus      string    `json:"toStatus"`
	Indexed       bool      `json:"indexed"`
	OwnerNotified bool      `json:"ownerNotified"`
	ReviewedAt    time.Time `json:"reviewedAt"`
}

// business is the row locked for the duration of a review.
type business struct {
	ID          string
	Name        string
	Suburb      string
	Category    string
	Bio         string
	Logo        string
	Website     string
	Phone       string
	OwnerEmail  string
	Status      string
	Rating      *float64
	ReviewCount *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["businessId", "action", "reviewerId"],
	"properties": {
		"businessId": {"type": "string", "minLength": 1},
		"action":     {"type": "string", "enum": ["approve", "reject", "suspend", "reinstate"]},
		"reviewerId": {"type": "string", "minLength": 1},
		"reason":     {"type": "string", "maxLength": 2000}
	}
}`)
