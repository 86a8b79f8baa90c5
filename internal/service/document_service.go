package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/access"
	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/events"
)

const (
	defaultDocumentVersion = "1.0"
	defaultPageSize        = 20
	dateLayout             = "2006-01-02"
)

type documentStore interface {
	lockingDocumentStore
	Create(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	UpdateDetails(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error
	HasHistory(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	Statistics(ctx context.Context, visibility models.Visibility) (*models.DocumentStatistics, error)
}

type departmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

type approvalRequirer interface {
	RequireApprovals(ctx context.Context, exec sqlx.ExtContext, doc models.Document) ([]models.ApprovalRequest, error)
}

type pendingInvalidator interface {
	InvalidatePending(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, comment string, at time.Time) (int64, error)
}

type versionRecorder interface {
	Record(ctx context.Context, exec sqlx.ExtContext, change VersionChange) (*models.DocumentVersion, error)
}

// DocumentServiceDeps groups the collaborators of DocumentService.
type DocumentServiceDeps struct {
	DB          txProvider
	Documents   documentStore
	Departments departmentLookup
	Approvals   approvalRequirer
	Slots       pendingInvalidator
	Versions    versionRecorder
	Sequences   *SequenceService
	Lifecycle   *Lifecycle
	Subjects    subjectResolver
	Audit       auditRecorder
	Dispatcher  *EventDispatcher
	Cache       *CacheService
	Metrics     *MetricsService
	StatsTTL    time.Duration
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// DocumentService composes the governance components behind the document
// API: every mutation runs in one transaction together with its audit entry.
type DocumentService struct {
	db          txProvider
	documents   documentStore
	departments departmentLookup
	approvals   approvalRequirer
	slots       pendingInvalidator
	versions    versionRecorder
	sequences   *SequenceService
	lifecycle   *Lifecycle
	subjects    subjectResolver
	audit       auditRecorder
	cache       *CacheService
	effects     postCommit
	statsTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewDocumentService builds a DocumentService.
func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &DocumentService{
		db:          deps.DB,
		documents:   deps.Documents,
		departments: deps.Departments,
		approvals:   deps.Approvals,
		slots:       deps.Slots,
		versions:    deps.Versions,
		sequences:   deps.Sequences,
		lifecycle:   deps.Lifecycle,
		subjects:    deps.Subjects,
		audit:       deps.Audit,
		cache:       deps.Cache,
		effects:     postCommit{dispatcher: deps.Dispatcher, cache: deps.Cache, metrics: deps.Metrics},
		statsTTL:    deps.StatsTTL,
		validator:   deps.Validator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// Create allocates a number and inserts a draft in one transaction. The
// whole transaction is retried on serialization failures so no number is
// ever skipped or handed out twice.
func (s *DocumentService) Create(ctx context.Context, actor models.Actor, req dto.CreateDocumentRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	department, err := s.loadDepartment(ctx, req.DepartmentID)
	if err != nil {
		return nil, err
	}
	if !access.CanCreate(subject, department.ID) {
		return nil, appErrors.ErrNotAuthorized
	}

	draft := models.Document{
		Title:            strings.TrimSpace(req.Title),
		Version:          strings.TrimSpace(req.Version),
		Level:            req.Level,
		DepartmentID:     department.ID,
		OwnerUserID:      actor.UserID,
		ContentReference: req.ContentReference,
		Filename:         req.Filename,
		DocumentType:     req.DocumentType,
		Confidence:       req.Confidence,
		ExtractedText:    req.ExtractedText,
	}
	if draft.Version == "" {
		draft.Version = defaultDocumentVersion
	}
	dates := []struct {
		field  string
		raw    *string
		target **time.Time
	}{
		{"effectiveDate", req.EffectiveDate, &draft.EffectiveDate},
		{"reviewDate", req.ReviewDate, &draft.ReviewDate},
		{"nextReviewDate", req.NextReviewDate, &draft.NextReviewDate},
	}
	for _, d := range dates {
		parsed, err := parseDate(d.field, d.raw)
		if err != nil {
			return nil, err
		}
		*d.target = parsed
	}

	bucket := s.sequences.Bucket(req.Prefix, department.Code, req.Year)
	doc, err := s.insertDraft(ctx, actor, draft, bucket, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document created", zap.String("document_id", doc.ID), zap.String("number", stringValue(doc.DocumentNumber)), zap.String("actor", actor.UserID))
	return doc, nil
}

// insertDraft runs the allocation transaction shared by Create and Revise.
func (s *DocumentService) insertDraft(ctx context.Context, actor models.Actor, draft models.Document, bucket models.SequenceBucket, extra map[string]interface{}) (*models.Document, error) {
	var doc models.Document
	err := s.sequences.WithRetry(ctx, func() error {
		return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
			doc = draft
			number, _, err := s.sequences.Allocate(ctx, tx, bucket)
			if err != nil {
				return err
			}
			doc.DocumentNumber = &number
			doc.Prefix = bucket.Prefix
			doc.Status = models.DocumentStatusDraft
			if err := s.documents.Create(ctx, tx, &doc); err != nil {
				// still matches repository.ErrSerialization for WithRetry
				return internalError(err, "failed to create document")
			}
			version, err := s.versions.Record(ctx, tx, VersionChange{Document: doc, Initial: true, AuthorID: actor.UserID})
			if err != nil {
				return err
			}
			metadata := map[string]interface{}{
				"documentNumber":  number,
				"version":         doc.Version,
				"level":           doc.Level,
				"versionRecorded": version != nil,
			}
			for k, v := range extra {
				metadata[k] = v
			}
			return s.audit.Log(ctx, tx, AuditEntry{
				DocumentID: doc.ID,
				ActorID:    actor.UserID,
				Action:     models.AuditActionUpload,
				Metadata:   metadata,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.effects.metrics.NumberAllocated(bucket.Prefix)
	s.effects.run(ctx, events.Event{
		Type:           events.DocumentCreated,
		DocumentID:     doc.ID,
		DocumentNumber: stringValue(doc.DocumentNumber),
		DepartmentID:   doc.DepartmentID,
		ActorUserID:    actor.UserID,
		Data:           extra,
	})
	return &doc, nil
}

// Get returns a readable document and records the view.
func (s *DocumentService) Get(ctx context.Context, actor models.Actor, id string) (*models.Document, error) {
	doc, _, err := loadReadable(ctx, s.documents, s.subjects, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Log(ctx, nil, AuditEntry{DocumentID: doc.ID, ActorID: actor.UserID, Action: models.AuditActionView}); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the caller's visible documents, newest first.
func (s *DocumentService) List(ctx context.Context, actor models.Actor, query dto.DocumentQuery) (*dto.DocumentListResult, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document query")
	}
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	visibility := access.VisibilityFor(subject)

	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	filter := models.DocumentFilter{
		Level:        query.Level,
		DepartmentID: query.DepartmentID,
		DocumentType: strings.TrimSpace(query.DocumentType),
		Search:       strings.TrimSpace(query.Search),
		Visibility:   &visibility,
		Limit:        size,
		Offset:       (page - 1) * size,
	}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			status := models.DocumentStatus(strings.ToLower(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !status.Valid() {
				return nil, appErrors.WithField(appErrors.ErrValidation, "status", "unknown document status")
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if query.Mine {
		filter.OwnerUserID = actor.UserID
	}

	docs, total, err := s.documents.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list documents")
	}
	if err := s.audit.Log(ctx, nil, AuditEntry{
		ActorID: actor.UserID,
		Action:  models.AuditActionList,
		Metadata: map[string]interface{}{
			"status":   filter.Status,
			"level":    filter.Level,
			"search":   filter.Search,
			"mine":     query.Mine,
			"page":     page,
			"returned": len(docs),
		},
	}); err != nil {
		return nil, err
	}
	return &dto.DocumentListResult{
		Documents:  docs,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}, nil
}

// Update edits a document. Content and version are frozen outside draft;
// metadata follows CanWrite.
func (s *DocumentService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateDocumentRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		doc, err = s.lockDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanWrite(subject, *doc) {
			return appErrors.ErrNotAuthorized
		}
		if doc.Status == models.DocumentStatusObsolete {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "obsolete documents are read-only")
		}
		if req.TouchesContent() && doc.Status != models.DocumentStatusDraft {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "content can only change while the document is a draft")
		}
		if req.ChangesLevel(doc.Level) && doc.Status != models.DocumentStatusDraft {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "level", "level can only change while the document is a draft")
		}

		previousVersion := doc.Version
		changed, err := applyUpdate(doc, req)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		if err := s.documents.UpdateDetails(ctx, tx, doc); err != nil {
			return internalError(err, "failed to update document")
		}
		contentChanged := req.ContentReference != nil
		if _, err := s.versions.Record(ctx, tx, VersionChange{
			Document:        *doc,
			PreviousVersion: previousVersion,
			ContentChanged:  contentChanged,
			Description:     req.ChangeDescription,
			AuthorID:        actor.UserID,
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			DocumentID: doc.ID,
			ActorID:    actor.UserID,
			Action:     models.AuditActionEdit,
			Metadata: map[string]interface{}{
				"fields":          changed,
				"previousVersion": previousVersion,
				"version":         doc.Version,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.effects.run(ctx)
	return doc, nil
}

// Delete physically removes a draft that has no history. Anything with
// versions, approval slots or successors must be obsoleted instead.
func (s *DocumentService) Delete(ctx context.Context, actor models.Actor, id string) error {
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return err
	}
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		doc, err := s.lockDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanDelete(subject, *doc) {
			return appErrors.ErrNotAuthorized
		}
		if doc.Status != models.DocumentStatusDraft {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "only drafts can be deleted; mark the document obsolete instead")
		}
		hasHistory, err := s.documents.HasHistory(ctx, tx, doc.ID)
		if err != nil {
			return internalError(err, "failed to check document history")
		}
		if hasHistory {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "document has version or approval history; mark it obsolete instead")
		}
		if err := s.documents.Delete(ctx, tx, doc.ID); err != nil {
			return internalError(err, "failed to delete document")
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			ActorID: actor.UserID,
			Action:  models.AuditActionDelete,
			Metadata: map[string]interface{}{
				"documentId":     doc.ID,
				"documentNumber": stringValue(doc.DocumentNumber),
				"title":          doc.Title,
			},
		})
	})
	if err != nil {
		return err
	}
	s.effects.run(ctx)
	return nil
}

// Submit freezes a draft and opens a new approval round.
func (s *DocumentService) Submit(ctx context.Context, actor models.Actor, id string) (*dto.SubmissionResult, error) {
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	var (
		result dto.SubmissionResult
		event  events.Event
	)
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		doc, err := s.lockDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanSubmit(subject, *doc) {
			return appErrors.ErrNotAuthorized
		}
		event, err = s.lifecycle.Apply(ctx, tx, Transition{
			Document: doc,
			Trigger:  TriggerSubmit,
			ActorID:  actor.UserID,
			Metadata: map[string]interface{}{"level": doc.Level, "version": doc.Version},
		})
		if err != nil {
			return err
		}
		slots, err := s.approvals.RequireApprovals(ctx, tx, *doc)
		if err != nil {
			return err
		}
		approvers := make([]string, 0, len(slots))
		for _, slot := range slots {
			approvers = append(approvers, slot.ApproverUserID)
		}
		event.Data = map[string]interface{}{"round": doc.SubmissionRound, "approvers": approvers}
		result = dto.SubmissionResult{Document: *doc, Approvals: slots}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.effects.run(ctx, event)
	s.logger.Info("document submitted", zap.String("document_id", id), zap.Int("approvers", len(result.Approvals)), zap.String("actor", actor.UserID))
	return &result, nil
}

// Withdraw lets the owner pull a pending document back to draft, closing
// the open slots of the round.
func (s *DocumentService) Withdraw(ctx context.Context, actor models.Actor, id string, req dto.WithdrawRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdraw payload")
	}
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	var (
		doc   *models.Document
		event events.Event
	)
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		doc, err = s.lockDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanWithdraw(subject, *doc) {
			return appErrors.ErrNotAuthorized
		}
		if !CanTransition(doc.Status, TriggerWithdraw) {
			return appErrors.WithField(appErrors.ErrInvalidTransition, "status", "only pending documents can be withdrawn")
		}
		invalidated, err := s.slots.InvalidatePending(ctx, tx, doc.ID, doc.SubmissionRound, "invalidated: withdrawn by "+actor.UserID, s.now().UTC())
		if err != nil {
			return internalError(err, "failed to invalidate pending approvals")
		}
		metadata := map[string]interface{}{"invalidated": invalidated}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			metadata["reason"] = reason
		}
		event, err = s.lifecycle.Apply(ctx, tx, Transition{Document: doc, Trigger: TriggerWithdraw, ActorID: actor.UserID, Metadata: metadata})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.effects.run(ctx, event)
	return doc, nil
}

// Obsolete retires an approved document, optionally naming the approved
// successor that points back to it.
func (s *DocumentService) Obsolete(ctx context.Context, actor models.Actor, id string, req dto.ObsoleteRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid obsolete payload")
	}
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	var (
		doc   *models.Document
		event events.Event
	)
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		doc, err = s.lockDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanObsolete(subject, *doc) {
			return appErrors.ErrNotAuthorized
		}
		metadata := map[string]interface{}{"reason": strings.TrimSpace(req.Reason)}
		if req.SuccessorDocumentID != nil {
			successor, err := s.documents.FindByID(ctx, tx, *req.SuccessorDocumentID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.WithField(appErrors.ErrNotFound, "successorDocumentId", "successor document not found")
				}
				return internalError(err, "failed to load successor document")
			}
			if successor.ParentDocumentID == nil || *successor.ParentDocumentID != doc.ID {
				return appErrors.WithField(appErrors.ErrValidation, "successorDocumentId", "successor does not supersede this document")
			}
			metadata["supersededBy"] = successor.ID
		}
		event, err = s.lifecycle.Apply(ctx, tx, Transition{Document: doc, Trigger: TriggerObsolete, ActorID: actor.UserID, Metadata: metadata})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.effects.run(ctx, event)
	return doc, nil
}

// Revise opens a draft successor of an approved document. The successor
// gets its own number and points at its predecessor; approving it retires
// the predecessor.
func (s *DocumentService) Revise(ctx context.Context, actor models.Actor, id string, req dto.ReviseRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid revision payload")
	}
	predecessor, subject, err := loadReadable(ctx, s.documents, s.subjects, actor, id)
	if err != nil {
		return nil, err
	}
	if !access.CanCreate(subject, predecessor.DepartmentID) {
		return nil, appErrors.ErrNotAuthorized
	}
	if predecessor.Status != models.DocumentStatusApproved {
		return nil, appErrors.WithField(appErrors.ErrInvalidTransition, "status", "only approved documents can be revised")
	}
	version := strings.TrimSpace(req.Version)
	if version == predecessor.Version {
		return nil, appErrors.WithField(appErrors.ErrDuplicateVersion, "version", "revision must carry a new version")
	}
	department, err := s.loadDepartment(ctx, predecessor.DepartmentID)
	if err != nil {
		return nil, err
	}

	parentID := predecessor.ID
	draft := models.Document{
		Title:            predecessor.Title,
		Version:          version,
		Level:            predecessor.Level,
		DepartmentID:     predecessor.DepartmentID,
		OwnerUserID:      actor.UserID,
		ParentDocumentID: &parentID,
		ContentReference: predecessor.ContentReference,
		Filename:         predecessor.Filename,
		DocumentType:     predecessor.DocumentType,
		ReviewDate:       predecessor.ReviewDate,
		NextReviewDate:   predecessor.NextReviewDate,
	}
	if req.Title != nil {
		draft.Title = strings.TrimSpace(*req.Title)
	}
	if req.ContentReference != nil {
		draft.ContentReference = req.ContentReference
	}

	bucket := s.sequences.Bucket(predecessor.Prefix, department.Code, 0)
	return s.insertDraft(ctx, actor, draft, bucket, map[string]interface{}{
		"revisionOf": predecessor.ID,
	})
}

// Statistics summarises the caller's visible documents and reports whether
// the cache served them. Results are cached per visibility scope and
// invalidated by every mutation.
func (s *DocumentService) Statistics(ctx context.Context, actor models.Actor) (*models.DocumentStatistics, bool, error) {
	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, false, err
	}
	visibility := access.VisibilityFor(subject)
	key := statsAllKey
	if !visibility.All {
		key = userStatsKey(subject.UserID)
	}

	var stats models.DocumentStatistics
	hit := s.cache.Lookup(ctx, key, &stats)
	if !hit {
		computed, err := s.documents.Statistics(ctx, visibility)
		if err != nil {
			return nil, false, internalError(err, "failed to compute statistics")
		}
		stats = *computed
		s.cache.Store(ctx, key, stats, s.statsTTL)
	}

	if err := s.audit.Log(ctx, nil, AuditEntry{
		ActorID:  actor.UserID,
		Action:   models.AuditActionStatsView,
		Metadata: map[string]interface{}{"cached": hit, "total": stats.TotalDocuments},
	}); err != nil {
		return nil, false, err
	}
	return &stats, hit, nil
}

// RecordPrint logs that a readable document was printed.
func (s *DocumentService) RecordPrint(ctx context.Context, actor models.Actor, id string) error {
	doc, _, err := loadReadable(ctx, s.documents, s.subjects, actor, id)
	if err != nil {
		return err
	}
	return s.audit.Log(ctx, nil, AuditEntry{
		DocumentID: doc.ID,
		ActorID:    actor.UserID,
		Action:     models.AuditActionPrint,
		Metadata:   map[string]interface{}{"version": doc.Version},
	})
}

func (s *DocumentService) lockDocument(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error) {
	doc, err := s.documents.GetForUpdate(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, internalError(err, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) loadDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithField(appErrors.ErrNotFound, "departmentId", "department not found")
		}
		return nil, internalError(err, "failed to load department")
	}
	return department, nil
}

// applyUpdate copies set fields onto doc and names the ones that changed.
func applyUpdate(doc *models.Document, req dto.UpdateDocumentRequest) ([]string, error) {
	var changed []string
	if req.Title != nil && strings.TrimSpace(*req.Title) != doc.Title {
		doc.Title = strings.TrimSpace(*req.Title)
		changed = append(changed, "title")
	}
	if req.Level != nil && *req.Level != doc.Level {
		doc.Level = *req.Level
		changed = append(changed, "level")
	}
	if req.Version != nil && strings.TrimSpace(*req.Version) != doc.Version {
		doc.Version = strings.TrimSpace(*req.Version)
		changed = append(changed, "version")
	}
	if req.ContentReference != nil {
		doc.ContentReference = req.ContentReference
		changed = append(changed, "contentReference")
	}
	if req.Filename != nil {
		doc.Filename = req.Filename
		changed = append(changed, "filename")
	}
	if req.DocumentType != nil {
		doc.DocumentType = req.DocumentType
		changed = append(changed, "documentType")
	}
	if req.Confidence != nil {
		doc.Confidence = req.Confidence
		changed = append(changed, "confidence")
	}
	if req.ExtractedText != nil {
		doc.ExtractedText = req.ExtractedText
		changed = append(changed, "extractedText")
	}
	dates := []struct {
		field  string
		raw    *string
		target **time.Time
	}{
		{"effectiveDate", req.EffectiveDate, &doc.EffectiveDate},
		{"reviewDate", req.ReviewDate, &doc.ReviewDate},
		{"nextReviewDate", req.NextReviewDate, &doc.NextReviewDate},
	}
	for _, d := range dates {
		if d.raw == nil {
			continue
		}
		parsed, err := parseDate(d.field, d.raw)
		if err != nil {
			return nil, err
		}
		*d.target = parsed
		changed = append(changed, d.field)
	}
	return changed, nil
}

func parseDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, field, "dates must use YYYY-MM-DD")
	}
	return &parsed, nil
}
