package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/access"
	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/events"
)

type approvalStore interface {
	InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.ApprovalRequest) error
	GetSlotForUpdate(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, approverID string) (*models.ApprovalRequest, error)
	Decide(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApprovalStatus, comments *string, at time.Time) (bool, error)
	InvalidatePending(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, comment string, at time.Time) (int64, error)
	Tally(ctx context.Context, exec sqlx.ExtContext, documentID string, round int) (models.ApprovalTally, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.ApprovalRequest, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]models.ApprovalRequest, error)
}

type approverDirectory interface {
	ListByRoles(ctx context.Context, exec sqlx.ExtContext, roles []models.Role) ([]models.RoleAssignment, error)
}

type lockingDocumentStore interface {
	statusWriter
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error)
}

// ApprovalService materialises approver slots on submission and records
// decisions, driving the lifecycle when a round completes or is rejected.
type ApprovalService struct {
	db        txProvider
	documents lockingDocumentStore
	approvals approvalStore
	directory approverDirectory
	subjects  subjectResolver
	lifecycle *Lifecycle
	audit     auditRecorder
	effects   postCommit
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalServiceDeps groups the collaborators of ApprovalService.
type ApprovalServiceDeps struct {
	DB         txProvider
	Documents  lockingDocumentStore
	Approvals  approvalStore
	Directory  approverDirectory
	Subjects   subjectResolver
	Lifecycle  *Lifecycle
	Audit      auditRecorder
	Dispatcher *EventDispatcher
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewApprovalService builds an ApprovalService.
func NewApprovalService(deps ApprovalServiceDeps) *ApprovalService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ApprovalService{
		db:        deps.DB,
		documents: deps.Documents,
		approvals: deps.Approvals,
		directory: deps.Directory,
		subjects:  deps.Subjects,
		lifecycle: deps.Lifecycle,
		audit:     deps.Audit,
		effects:   postCommit{dispatcher: deps.Dispatcher, cache: deps.Cache, metrics: deps.Metrics},
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// RequireApprovals inserts one pending slot per eligible approver for the
// document's current round. The owner never approves their own document and
// a user holding several eligible roles gets a single slot recorded under
// the highest ranked one.
func (s *ApprovalService) RequireApprovals(ctx context.Context, exec sqlx.ExtContext, doc models.Document) ([]models.ApprovalRequest, error) {
	candidates, err := s.directory.ListByRoles(ctx, exec, models.ApproverRoles(doc.Level))
	if err != nil {
		return nil, internalError(err, "failed to resolve approvers")
	}

	chosen := make(map[string]models.Role)
	for _, assignment := range candidates {
		if assignment.UserID == doc.OwnerUserID {
			continue
		}
		if !access.EligibleApprover(assignment, doc.Level, doc.DepartmentID) {
			continue
		}
		if current, ok := chosen[assignment.UserID]; !ok || assignment.Role.Rank() > current.Rank() {
			chosen[assignment.UserID] = assignment.Role
		}
	}
	if len(chosen) == 0 {
		return nil, appErrors.ErrNoEligibleApprovers
	}

	userIDs := make([]string, 0, len(chosen))
	for userID := range chosen {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	now := s.now().UTC()
	slots := make([]models.ApprovalRequest, 0, len(userIDs))
	for _, userID := range userIDs {
		slots = append(slots, models.ApprovalRequest{
			DocumentID:     doc.ID,
			Round:          doc.SubmissionRound,
			ApproverUserID: userID,
			ApproverRole:   chosen[userID],
			Level:          doc.Level,
			Status:         models.ApprovalStatusPending,
			CreatedAt:      now,
		})
	}
	if err := s.approvals.InsertSlots(ctx, exec, slots); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrDuplicateApproval
		}
		return nil, internalError(err, "failed to create approval slots")
	}
	return slots, nil
}

// RecordDecision applies one approver's decision. The document row is
// locked first so concurrent decisions on it serialize and only one of them
// can complete the round.
func (s *ApprovalService) RecordDecision(ctx context.Context, actor models.Actor, documentID string, req dto.DecisionRequest) (*dto.DecisionResult, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	var (
		result    dto.DecisionResult
		published []events.Event
	)
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		published = nil
		doc, err := s.documents.GetForUpdate(ctx, tx, documentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "document not found")
			}
			return internalError(err, "failed to load document")
		}

		slot, err := s.approvals.GetSlotForUpdate(ctx, tx, doc.ID, doc.SubmissionRound, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotAuthorized, "caller holds no approval slot for this document")
			}
			return internalError(err, "failed to load approval slot")
		}
		if slot.Status != models.ApprovalStatusPending {
			return appErrors.ErrAlreadyDecided
		}
		if doc.Status != models.DocumentStatusPendingApproval {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "document is not awaiting approval")
		}

		now := s.now().UTC()
		status := models.ApprovalStatusApproved
		if req.Decision == dto.DecisionReject {
			status = models.ApprovalStatusRejected
		}
		decided, err := s.approvals.Decide(ctx, tx, slot.ID, status, req.Comments, now)
		if err != nil {
			return internalError(err, "failed to record decision")
		}
		if !decided {
			return appErrors.ErrAlreadyDecided
		}
		slot.Status = status
		slot.Comments = req.Comments
		slot.ApprovedAt = &now

		metadata := map[string]interface{}{
			"approvalId": slot.ID,
			"round":      slot.Round,
			"role":       string(slot.ApproverRole),
		}
		if req.Comments != nil {
			metadata["comments"] = *req.Comments
		}

		if status == models.ApprovalStatusRejected {
			invalidated, err := s.approvals.InvalidatePending(ctx, tx, doc.ID, doc.SubmissionRound,
				fmt.Sprintf("invalidated: rejected by %s", actor.UserID), now)
			if err != nil {
				return internalError(err, "failed to invalidate pending approvals")
			}
			metadata["invalidated"] = invalidated
			event, err := s.lifecycle.Apply(ctx, tx, Transition{Document: doc, Trigger: TriggerReject, ActorID: actor.UserID, Metadata: metadata})
			if err != nil {
				return err
			}
			published = append(published, event)
			result = dto.DecisionResult{Approval: *slot, Document: *doc, Transitioned: true}
			return nil
		}

		tally, err := s.approvals.Tally(ctx, tx, doc.ID, doc.SubmissionRound)
		if err != nil {
			return internalError(err, "failed to tally approvals")
		}
		if !tally.Complete() {
			metadata["pending"] = tally.Pending
			if err := s.audit.Log(ctx, tx, AuditEntry{
				DocumentID: doc.ID,
				ActorID:    actor.UserID,
				Action:     models.AuditActionApprove,
				Metadata:   metadata,
			}); err != nil {
				return err
			}
			result = dto.DecisionResult{Approval: *slot, Document: *doc}
			return nil
		}

		event, err := s.lifecycle.Apply(ctx, tx, Transition{
			Document:   doc,
			Trigger:    TriggerApprove,
			ActorID:    actor.UserID,
			ApprovedBy: actor.UserID,
			Metadata:   metadata,
		})
		if err != nil {
			return err
		}
		published = append(published, event)

		cascaded, err := s.obsoletePredecessor(ctx, tx, doc, actor.UserID)
		if err != nil {
			return err
		}
		published = append(published, cascaded...)
		result = dto.DecisionResult{Approval: *slot, Document: *doc, Transitioned: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.effects.metrics.DecisionRecorded(req.Decision)
	s.effects.run(ctx, published...)
	s.logger.Info("approval decision recorded",
		zap.String("document_id", documentID),
		zap.String("approver", actor.UserID),
		zap.String("decision", req.Decision),
		zap.Bool("transitioned", result.Transitioned),
	)
	return &result, nil
}

// obsoletePredecessor retires the approved document that doc supersedes, in
// the same transaction that approved doc.
func (s *ApprovalService) obsoletePredecessor(ctx context.Context, exec sqlx.ExtContext, doc *models.Document, actorID string) ([]events.Event, error) {
	if doc.ParentDocumentID == nil {
		return nil, nil
	}
	parent, err := s.documents.GetForUpdate(ctx, exec, *doc.ParentDocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, internalError(err, "failed to load superseded document")
	}
	if parent.Status != models.DocumentStatusApproved {
		return nil, nil
	}
	event, err := s.lifecycle.Apply(ctx, exec, Transition{
		Document: parent,
		Trigger:  TriggerObsolete,
		ActorID:  actorID,
		Metadata: map[string]interface{}{
			"cascade":      true,
			"supersededBy": doc.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	return []events.Event{event}, nil
}

// ListApprovals returns every slot of a readable document, across rounds.
func (s *ApprovalService) ListApprovals(ctx context.Context, actor models.Actor, documentID string) ([]models.ApprovalRequest, error) {
	if _, _, err := loadReadable(ctx, s.documents, s.subjects, actor, documentID); err != nil {
		return nil, err
	}
	slots, err := s.approvals.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, internalError(err, "failed to list approvals")
	}
	return slots, nil
}

// ListPending returns the caller's open slots.
func (s *ApprovalService) ListPending(ctx context.Context, actor models.Actor) ([]models.ApprovalRequest, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	slots, err := s.approvals.ListPendingForApprover(ctx, actor.UserID)
	if err != nil {
		return nil, internalError(err, "failed to list pending approvals")
	}
	return slots, nil
}

type documentReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error)
}

// loadReadable fetches a document and checks the caller may read it.
func loadReadable(ctx context.Context, documents documentReader, subjects subjectResolver, actor models.Actor, documentID string) (*models.Document, models.Subject, error) {
	subject, err := subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, models.Subject{}, err
	}
	doc, err := documents.FindByID(ctx, nil, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.Subject{}, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, models.Subject{}, internalError(err, "failed to load document")
	}
	if !access.CanRead(subject, *doc) {
		return nil, models.Subject{}, appErrors.ErrNotAuthorized
	}
	return doc, subject, nil
}
