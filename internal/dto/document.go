package dto

import "github.com/noah-isme/arc-docs-api/internal/models"

// CreateDocumentRequest is the payload for authoring a new controlled document.
// Extraction fields (filename, type, confidence, text) come from the upstream
// ingestion pipeline and are stored as provided.
type CreateDocumentRequest struct {
	Title            string   `json:"title" validate:"required,max=255"`
	Prefix           string   `json:"prefix" validate:"required,alphanum,max=16"`
	DepartmentID     string   `json:"departmentId" validate:"required,uuid"`
	Level            int      `json:"level" validate:"required,min=1,max=4"`
	Version          string   `json:"version" validate:"omitempty,max=32"`
	ContentReference *string  `json:"contentReference" validate:"omitempty,min=1"`
	Filename         *string  `json:"filename" validate:"omitempty,max=255"`
	DocumentType     *string  `json:"documentType" validate:"omitempty,max=128"`
	Confidence       *float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
	ExtractedText    *string  `json:"extractedText"`
	EffectiveDate    *string  `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	ReviewDate       *string  `json:"reviewDate" validate:"omitempty,datetime=2006-01-02"`
	NextReviewDate   *string  `json:"nextReviewDate" validate:"omitempty,datetime=2006-01-02"`
	Year             int      `json:"year" validate:"omitempty,min=2000,max=9999"`
}

// UpdateDocumentRequest carries a partial update; nil fields are left untouched.
type UpdateDocumentRequest struct {
	Title             *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Level             *int     `json:"level" validate:"omitempty,min=1,max=4"`
	Version           *string  `json:"version" validate:"omitempty,min=1,max=32"`
	ContentReference  *string  `json:"contentReference" validate:"omitempty,min=1"`
	ChangeDescription *string  `json:"changeDescription" validate:"omitempty,max=1000"`
	Filename          *string  `json:"filename" validate:"omitempty,max=255"`
	DocumentType      *string  `json:"documentType" validate:"omitempty,max=128"`
	Confidence        *float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
	ExtractedText     *string  `json:"extractedText"`
	EffectiveDate     *string  `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	ReviewDate        *string  `json:"reviewDate" validate:"omitempty,datetime=2006-01-02"`
	NextReviewDate    *string  `json:"nextReviewDate" validate:"omitempty,datetime=2006-01-02"`
}

// TouchesContent reports whether the update changes the document body or version.
func (r UpdateDocumentRequest) TouchesContent() bool {
	return r.Version != nil || r.ContentReference != nil || r.ExtractedText != nil
}

// ChangesLevel reports whether the update moves the document to another
// level. The level fixes the approver set, so it is frozen once submitted.
func (r UpdateDocumentRequest) ChangesLevel(current int) bool {
	return r.Level != nil && *r.Level != current
}

// DocumentQuery holds list filters bound from the query string.
type DocumentQuery struct {
	Status       []string `form:"status"`
	Level        int      `form:"level" validate:"omitempty,min=1,max=4"`
	DepartmentID string   `form:"departmentId" validate:"omitempty,uuid"`
	DocumentType string   `form:"documentType"`
	Search       string   `form:"search" validate:"omitempty,max=200"`
	Mine         bool     `form:"mine"`
	Page         int      `form:"page" validate:"omitempty,min=1"`
	PageSize     int      `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// DocumentListResult pairs a page of documents with its pagination block.
type DocumentListResult struct {
	Documents  []models.Document
	Pagination models.Pagination
}

// ObsoleteRequest retires an approved document, optionally naming the
// approved successor that replaces it.
type ObsoleteRequest struct {
	Reason              string  `json:"reason" validate:"required,max=1000"`
	SuccessorDocumentID *string `json:"successorDocumentId" validate:"omitempty,uuid"`
}

// ReviseRequest creates a draft successor of an approved document.
type ReviseRequest struct {
	Title            *string `json:"title" validate:"omitempty,min=1,max=255"`
	Version          string  `json:"version" validate:"required,max=32"`
	ContentReference *string `json:"contentReference" validate:"omitempty,min=1"`
}

// WithdrawRequest pulls a pending document back to draft.
type WithdrawRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}
