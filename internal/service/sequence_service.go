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
	"github.com/noah-isme/arc-docs-api/internal/repository"
	"github.com/noah-isme/arc-docs-api/pkg/config"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
)

type sequenceStore interface {
	Next(ctx context.Context, exec sqlx.ExtContext, bucket models.SequenceBucket) (int, error)
}

// SequenceService hands out gap-free document numbers per
// (prefix, department, year) bucket.
type SequenceService struct {
	db          txProvider
	sequences   sequenceStore
	departments departmentStore
	subjects    subjectResolver
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// NewSequenceService builds a SequenceService.
func NewSequenceService(db txProvider, sequences sequenceStore, departments departmentStore, subjects subjectResolver, metrics *MetricsService, cfg config.SequenceConfig, validate *validator.Validate, logger *zap.Logger) *SequenceService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceService{
		db:          db,
		sequences:   sequences,
		departments: departments,
		subjects:    subjects,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		now:         time.Now,
	}
}

// Bucket normalises allocation inputs; year 0 means the current UTC year.
func (s *SequenceService) Bucket(prefix, departmentCode string, year int) models.SequenceBucket {
	if year == 0 {
		year = s.now().UTC().Year()
	}
	return models.SequenceBucket{
		Prefix:         strings.ToUpper(strings.TrimSpace(prefix)),
		DepartmentCode: strings.ToUpper(strings.TrimSpace(departmentCode)),
		Year:           year,
	}
}

// Allocate increments the bucket inside exec's transaction and returns the
// formatted number. The increment is only durable once that transaction
// commits, so a rolled back caller leaves no gap.
func (s *SequenceService) Allocate(ctx context.Context, exec sqlx.ExtContext, bucket models.SequenceBucket) (string, int, error) {
	value, err := s.sequences.Next(ctx, exec, bucket)
	if err != nil {
		return "", 0, internalError(err, "failed to allocate document number")
	}
	return models.FormatDocumentNumber(bucket, value), value, nil
}

// WithRetry runs fn again when it fails with a serialization failure or
// deadlock. fn must open and finish its own transaction so that every
// attempt starts clean. Exhausted retries surface as ALLOCATION_CONFLICT.
func (s *SequenceService) WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrSerialization) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		s.metrics.AllocationRetried()
		s.logger.Warn("retrying after serialization failure", zap.Int("attempt", attempt), zap.Error(err))
		if s.backoff > 0 {
			timer := time.NewTimer(s.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.metrics.AllocationConflicted()
	return appErrors.Wrap(err, appErrors.ErrAllocationConflict.Code, appErrors.ErrAllocationConflict.Status, appErrors.ErrAllocationConflict.Message)
}

// Next allocates a standalone number for callers that reserve one ahead of
// creating the document.
func (s *SequenceService) Next(ctx context.Context, actor models.Actor, req dto.NextNumberRequest) (*dto.NextNumberResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sequence request")
	}
	bucket := s.Bucket(req.Prefix, req.DepartmentCode, req.Year)

	subject, err := s.subjects.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	department, err := s.departments.FindByCode(ctx, bucket.DepartmentCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, internalError(err, "failed to load department")
	}
	if !access.CanCreate(subject, department.ID) {
		return nil, appErrors.ErrNotAuthorized
	}

	var (
		number string
		value  int
	)
	err = s.WithRetry(ctx, func() error {
		return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
			var allocErr error
			number, value, allocErr = s.Allocate(ctx, tx, bucket)
			return allocErr
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.NumberAllocated(bucket.Prefix)
	s.logger.Info("document number allocated", zap.String("number", number), zap.String("actor", actor.UserID))
	return &dto.NextNumberResponse{
		DocumentNumber: number,
		Prefix:         bucket.Prefix,
		DepartmentCode: bucket.DepartmentCode,
		Year:           bucket.Year,
		Sequence:       value,
	}, nil
}
