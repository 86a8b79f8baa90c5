package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/events"
)

// Trigger names the reason a document changes status.
type Trigger string

const (
	TriggerSubmit   Trigger = "submit"
	TriggerApprove  Trigger = "approve"
	TriggerReject   Trigger = "reject"
	TriggerWithdraw Trigger = "withdraw"
	TriggerObsolete Trigger = "obsolete"
)

type transitionRule struct {
	from   models.DocumentStatus
	to     models.DocumentStatus
	action models.AuditAction
	event  events.Type
}

var transitionTable = map[Trigger]transitionRule{
	TriggerSubmit:   {from: models.DocumentStatusDraft, to: models.DocumentStatusPendingApproval, action: models.AuditActionSubmit, event: events.DocumentSubmitted},
	TriggerApprove:  {from: models.DocumentStatusPendingApproval, to: models.DocumentStatusApproved, action: models.AuditActionApprove, event: events.DocumentApproved},
	TriggerReject:   {from: models.DocumentStatusPendingApproval, to: models.DocumentStatusDraft, action: models.AuditActionReject, event: events.DocumentRejected},
	TriggerWithdraw: {from: models.DocumentStatusPendingApproval, to: models.DocumentStatusDraft, action: models.AuditActionWithdraw, event: events.DocumentWithdrawn},
	TriggerObsolete: {from: models.DocumentStatusApproved, to: models.DocumentStatusObsolete, action: models.AuditActionObsolete, event: events.DocumentObsoleted},
}

// CanTransition reports whether trigger is legal for a document in from.
func CanTransition(from models.DocumentStatus, trigger Trigger) bool {
	rule, ok := transitionTable[trigger]
	return ok && rule.from == from
}

type statusWriter interface {
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, change repository.StatusChange) (bool, error)
}

// Transition asks the lifecycle to move a locked document.
type Transition struct {
	Document *models.Document
	Trigger  Trigger
	ActorID  string
	// ApprovedBy is required for TriggerApprove.
	ApprovedBy string
	Metadata   map[string]interface{}
}

// Lifecycle owns document status. Each transition is a compare-and-set on
// the prior status plus exactly one audit entry, both written through exec.
type Lifecycle struct {
	documents statusWriter
	audit     auditRecorder
	now       func() time.Time
}

// NewLifecycle builds the state machine.
func NewLifecycle(documents statusWriter, audit auditRecorder) *Lifecycle {
	return &Lifecycle{documents: documents, audit: audit, now: time.Now}
}

// Apply performs the transition and updates t.Document in place. The
// returned event must only be dispatched after the transaction commits.
func (l *Lifecycle) Apply(ctx context.Context, exec sqlx.ExtContext, t Transition) (events.Event, error) {
	doc := t.Document
	rule, ok := transitionTable[t.Trigger]
	if !ok {
		return events.Event{}, appErrors.WithField(appErrors.ErrInvalidTransition, "status", fmt.Sprintf("unknown trigger %q", t.Trigger))
	}
	if doc.Status != rule.from {
		return events.Event{}, appErrors.WithField(appErrors.ErrInvalidTransition, "status",
			fmt.Sprintf("cannot %s a document in status %s", t.Trigger, doc.Status))
	}

	now := l.now().UTC()
	change := repository.StatusChange{
		ID:        doc.ID,
		From:      rule.from,
		To:        rule.to,
		BumpRound: t.Trigger == TriggerSubmit,
	}
	if t.Trigger == TriggerApprove {
		if t.ApprovedBy == "" {
			return events.Event{}, appErrors.Clone(appErrors.ErrInternal, "approval transition without approver")
		}
		approvedBy := t.ApprovedBy
		change.ApprovedByUserID = &approvedBy
		change.ApprovedAt = &now
	}

	applied, err := l.documents.TransitionStatus(ctx, exec, change)
	if err != nil {
		return events.Event{}, internalError(err, "failed to update document status")
	}
	if !applied {
		return events.Event{}, appErrors.WithField(appErrors.ErrInvalidTransition, "status", "document status changed concurrently")
	}

	doc.Status = rule.to
	doc.IsObsolete = rule.to == models.DocumentStatusObsolete
	doc.UpdatedAt = now
	if change.BumpRound {
		doc.SubmissionRound++
	}
	if change.ApprovedByUserID != nil {
		doc.ApprovedByUserID = change.ApprovedByUserID
		doc.ApprovedAt = change.ApprovedAt
	}

	metadata := map[string]interface{}{
		"from": string(rule.from),
		"to":   string(rule.to),
	}
	for k, v := range t.Metadata {
		if k == "from" || k == "to" {
			continue
		}
		metadata[k] = v
	}
	if err := l.audit.Log(ctx, exec, AuditEntry{
		DocumentID: doc.ID,
		ActorID:    t.ActorID,
		Action:     rule.action,
		Metadata:   metadata,
	}); err != nil {
		return events.Event{}, err
	}

	return events.Event{
		Type:           rule.event,
		DocumentID:     doc.ID,
		DocumentNumber: stringValue(doc.DocumentNumber),
		DepartmentID:   doc.DepartmentID,
		ActorUserID:    t.ActorID,
		From:           string(rule.from),
		To:             string(rule.to),
		Data:           t.Metadata,
		OccurredAt:     now,
	}, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
