package models

import "time"

// ApprovalStatus captures the decision state of one approval slot.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is one approver's decision slot within a submission round.
type ApprovalRequest struct {
	ID             string         `db:"id" json:"id"`
	DocumentID     string         `db:"document_id" json:"documentId"`
	Round          int            `db:"round" json:"round"`
	ApproverUserID string         `db:"approver_user_id" json:"approverUserId"`
	ApproverRole   Role           `db:"approver_role" json:"approverRole"`
	Level          int            `db:"level" json:"level"`
	Status         ApprovalStatus `db:"status" json:"status"`
	Comments       *string        `db:"comments" json:"comments,omitempty"`
	ApprovedAt     *time.Time     `db:"approved_at" json:"approvedAt,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// ApprovalTally counts slot states for one round.
type ApprovalTally struct {
	Pending  int `db:"pending"`
	Approved int `db:"approved"`
	Rejected int `db:"rejected"`
}

// Complete reports whether every slot in the round approved.
func (t ApprovalTally) Complete() bool {
	return t.Pending == 0 && t.Rejected == 0 && t.Approved > 0
}
