package models

import "time"

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	DocumentStatusDraft           DocumentStatus = "draft"
	DocumentStatusPendingApproval DocumentStatus = "pending_approval"
	DocumentStatusApproved        DocumentStatus = "approved"
	DocumentStatusObsolete        DocumentStatus = "obsolete"
)

// Valid reports whether the status is known.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusPendingApproval, DocumentStatusApproved, DocumentStatusObsolete:
		return true
	}
	return false
}

// Document is a controlled governance document.
type Document struct {
	ID               string         `db:"id" json:"id"`
	DocumentNumber   *string        `db:"document_number" json:"documentNumber,omitempty"`
	Title            string         `db:"title" json:"title"`
	Prefix           string         `db:"prefix" json:"prefix"`
	Version          string         `db:"version" json:"version"`
	Status           DocumentStatus `db:"status" json:"status"`
	Level            int            `db:"level" json:"level"`
	DepartmentID     string         `db:"department_id" json:"departmentId"`
	OwnerUserID      string         `db:"owner_user_id" json:"ownerUserId"`
	EffectiveDate    *time.Time     `db:"effective_date" json:"effectiveDate,omitempty"`
	ReviewDate       *time.Time     `db:"review_date" json:"reviewDate,omitempty"`
	NextReviewDate   *time.Time     `db:"next_review_date" json:"nextReviewDate,omitempty"`
	ApprovedByUserID *string        `db:"approved_by_user_id" json:"approvedByUserId,omitempty"`
	ApprovedAt       *time.Time     `db:"approved_at" json:"approvedAt,omitempty"`
	IsObsolete       bool           `db:"is_obsolete" json:"isObsolete"`
	ParentDocumentID *string        `db:"parent_document_id" json:"parentDocumentId,omitempty"`
	SubmissionRound  int            `db:"submission_round" json:"submissionRound"`
	ContentReference *string        `db:"content_reference" json:"contentReference,omitempty"`
	Filename         *string        `db:"filename" json:"filename,omitempty"`
	DocumentType     *string        `db:"document_type" json:"documentType,omitempty"`
	Confidence       *float64       `db:"confidence" json:"confidence,omitempty"`
	ExtractedText    *string        `db:"extracted_text" json:"extractedText,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// DocumentFilter constrains listing queries. Visibility is applied through the
// Visibility field, never by callers composing their own predicates.
type DocumentFilter struct {
	Status       []DocumentStatus
	Level        int
	DepartmentID string
	DocumentType string
	Search       string
	OwnerUserID  string
	Visibility   *Visibility
	Limit        int
	Offset       int
}

// Visibility is the SQL-expressible form of the read predicate for a subject.
// All=true means no restriction.
type Visibility struct {
	All           bool
	UserID        string
	DepartmentIDs []string
}

// DocumentStatistics summarises the caller's visible documents.
type DocumentStatistics struct {
	TotalDocuments    int            `json:"totalDocuments"`
	ByStatus          map[string]int `json:"byStatus"`
	ByLevel           map[string]int `json:"byLevel"`
	ByCategory        map[string]int `json:"byCategory"`
	AverageConfidence float64        `json:"averageConfidence"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
