package dto

import "github.com/noah-isme/arc-docs-api/internal/models"

// Decision values accepted by the decision endpoint.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DecisionRequest records one approver's decision.
type DecisionRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approve reject"`
	Comments *string `json:"comments" validate:"omitempty,max=2000"`
}

// DecisionResult reports the slot outcome and the document afterwards.
type DecisionResult struct {
	Approval     models.ApprovalRequest `json:"approval"`
	Document     models.Document        `json:"document"`
	Transitioned bool                   `json:"transitioned"`
}

// SubmissionResult is the submitted document with the slots opened for it.
type SubmissionResult struct {
	Document  models.Document          `json:"document"`
	Approvals []models.ApprovalRequest `json:"approvals"`
}
