package keyring

import "context"

// ApprovalStatus is the outcome of a human-approval round trip.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// Operation summarizes a pending signing request for a human reviewer.
type Operation struct {
	WalletID string `json:"wallet_id"`
	Method   string `json:"method"`
	Summary  string `json:"summary"`
}

// Approver is the human-approval collaborator (e.g. a messaging-bot
// workflow). When configured, a signing request that passed policy
// still waits for an explicit approval.
type Approver interface {
	RequestApproval(ctx context.Context, op Operation) (ApprovalStatus, error)
}
