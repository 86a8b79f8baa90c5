package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/access"
	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/export"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type auditStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLog) error
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

type subjectResolver interface {
	Resolve(ctx context.Context, actor models.Actor) (models.Subject, error)
}

// AuditEntry is what callers hand to the audit service.
type AuditEntry struct {
	DocumentID string
	ActorID    string
	Action     models.AuditAction
	Metadata   map[string]interface{}
}

// AuditService appends to and reads the audit trail.
type AuditService struct {
	store     auditStore
	subjects  subjectResolver
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditService builds an AuditService.
func NewAuditService(store auditStore, subjects subjectResolver, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{store: store, subjects: subjects, validator: validate, logger: logger, now: time.Now}
}

// Log appends an entry inside exec's transaction (or directly when exec is
// nil). An unknown action is a programming error and is rejected.
func (s *AuditService) Log(ctx context.Context, exec sqlx.ExtContext, entry AuditEntry) error {
	if !entry.Action.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audit action %q", entry.Action))
	}
	if entry.ActorID == "" {
		entry.ActorID = models.SystemActorID
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return internalError(err, "failed to encode audit metadata")
	}
	log := &models.AuditLog{
		ActorUserID: entry.ActorID,
		Action:      entry.Action,
		Metadata:    raw,
		CreatedAt:   s.now().UTC(),
	}
	if entry.DocumentID != "" {
		id := entry.DocumentID
		log.DocumentID = &id
	}
	if err := s.store.Insert(ctx, exec, log); err != nil {
		return internalError(err, "failed to write audit log")
	}
	return nil
}

// Query returns entries newest first. Callers without audit authority only
// ever see their own entries, whatever actor filter they pass.
func (s *AuditService) Query(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditLog, error) {
	filter, err := s.buildFilter(ctx, actor, query)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to query audit logs")
	}
	return logs, nil
}

// Export renders the same query as Query into a CSV or PDF file.
func (s *AuditService) Export(ctx context.Context, actor models.Actor, query dto.AuditQuery) (*dto.ExportFile, error) {
	format, err := export.ParseFormat(query.Format)
	if err != nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, "format", err.Error())
	}
	logs, err := s.Query(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Audit trail export %s", s.now().UTC().Format(time.RFC3339)),
		Headers: []string{"created_at", "actor_user_id", "action", "document_id", "metadata"},
		Rows:    make([]map[string]string, 0, len(logs)),
	}
	for _, log := range logs {
		documentID := ""
		if log.DocumentID != nil {
			documentID = *log.DocumentID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"created_at":    log.CreatedAt.UTC().Format(time.RFC3339),
			"actor_user_id": log.ActorUserID,
			"action":        string(log.Action),
			"document_id":   documentID,
			"metadata":      string(log.Metadata),
		})
	}

	data, err := export.RendererFor(format).Render(dataset)
	if err != nil {
		return nil, internalError(err, "failed to render audit export")
	}
	s.logger.Info("audit export generated", zap.String("actor", actor.UserID), zap.String("format", string(format)), zap.Int("rows", len(logs)))
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("audit-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (s *AuditService) buildFilter(ctx context.Context, actor models.Actor, query dto.AuditQuery) (models.AuditFilter, error) {
	if actor.UserID == "" {
		return models.AuditFilter{}, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(query); err != nil {
		return models.AuditFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit query")
	}

	filter := models.AuditFilter{
		ActorContains: strings.TrimSpace(query.Actor),
		DocumentID:    query.DocumentID,
		Limit:         query.Limit,
	}
	if query.Action != "" {
		action := models.AuditAction(strings.ToLower(query.Action))
		if !action.Valid() {
			return models.AuditFilter{}, appErrors.WithField(appErrors.ErrValidation, "action", "unknown audit action")
		}
		filter.Action = action
	}
	if query.From != "" {
		from, _ := time.Parse(time.RFC3339, query.From)
		filter.From = &from
	}
	if query.To != "" {
		to, _ := time.Parse(time.RFC3339, query.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return models.AuditFilter{}, appErrors.WithField(appErrors.ErrValidation, "to", "to must not be before from")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}

	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return models.AuditFilter{}, err
	}
	if !access.CanQueryAudit(subject) {
		filter.ActorContains = ""
		filter.ActorExact = subject.UserID
	}
	return filter, nil
}
