package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/storage"
)

type versionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, version *models.DocumentVersion) error
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	Find(ctx context.Context, documentID, version string) (*models.DocumentVersion, error)
}

// VersionChange describes a document write that may need a snapshot.
type VersionChange struct {
	Document        models.Document
	PreviousVersion string
	// Initial is set when the document is being created.
	Initial        bool
	ContentChanged bool
	Description    *string
	AuthorID       string
}

// VersionService records immutable version snapshots and hands out signed
// download links for them.
type VersionService struct {
	versions  versionStore
	documents documentReader
	subjects  subjectResolver
	audit     auditRecorder
	signer    *storage.SignedURLSigner
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
}

// NewVersionService builds a VersionService.
func NewVersionService(versions versionStore, documents documentReader, subjects subjectResolver, audit auditRecorder, signer *storage.SignedURLSigner, baseURL string, logger *zap.Logger) *VersionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionService{
		versions:  versions,
		documents: documents,
		subjects:  subjects,
		audit:     audit,
		signer:    signer,
		baseURL:   baseURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Record writes a snapshot when the version label or the content changed
// and a content reference is present. A label already recorded for the
// document is DUPLICATE_VERSION, so new content needs a new label and
// retried requests are visible to the caller.
func (s *VersionService) Record(ctx context.Context, exec sqlx.ExtContext, change VersionChange) (*models.DocumentVersion, error) {
	doc := change.Document
	contentRef := strings.TrimSpace(stringValue(doc.ContentReference))
	if contentRef == "" {
		return nil, nil
	}
	if !change.Initial && doc.Version == change.PreviousVersion && !change.ContentChanged {
		return nil, nil
	}

	description := "Version " + doc.Version
	if change.Description != nil && strings.TrimSpace(*change.Description) != "" {
		description = strings.TrimSpace(*change.Description)
	}
	version := &models.DocumentVersion{
		DocumentID:        doc.ID,
		Version:           doc.Version,
		ContentReference:  contentRef,
		ChangeDescription: description,
		AuthorUserID:      change.AuthorID,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.versions.Create(ctx, exec, version); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.WithField(appErrors.ErrDuplicateVersion, "version",
				fmt.Sprintf("version %s already recorded", doc.Version))
		}
		return nil, internalError(err, "failed to record document version")
	}
	return version, nil
}

// ListVersions returns the history of a readable document, oldest first.
func (s *VersionService) ListVersions(ctx context.Context, actor models.Actor, documentID string) ([]models.DocumentVersion, error) {
	if _, _, err := loadReadable(ctx, s.documents, s.subjects, actor, documentID); err != nil {
		return nil, err
	}
	versions, err := s.versions.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, internalError(err, "failed to list document versions")
	}
	return versions, nil
}

// DownloadVersion issues an expiring signed link to a version's content.
func (s *VersionService) DownloadVersion(ctx context.Context, actor models.Actor, documentID, version string) (*models.VersionDownload, error) {
	if _, _, err := loadReadable(ctx, s.documents, s.subjects, actor, documentID); err != nil {
		return nil, err
	}
	snapshot, err := s.versions.Find(ctx, documentID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document version not found")
		}
		return nil, internalError(err, "failed to load document version")
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signing is not configured")
	}
	token, expiresAt, err := s.signer.Generate(snapshot.DocumentID, snapshot.Version, snapshot.ContentReference)
	if err != nil {
		return nil, internalError(err, "failed to sign download link")
	}
	if err := s.audit.Log(ctx, nil, AuditEntry{
		DocumentID: documentID,
		ActorID:    actor.UserID,
		Action:     models.AuditActionDownload,
		Metadata: map[string]interface{}{
			"version":   snapshot.Version,
			"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return nil, err
	}
	return &models.VersionDownload{
		DocumentID: documentID,
		Version:    snapshot.Version,
		URL:        storage.URL(s.baseURL, token),
		ExpiresAt:  expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and returns what it grants.
func (s *VersionService) ResolveDownload(token string) (storage.Grant, error) {
	if s.signer == nil {
		return storage.Grant{}, appErrors.Clone(appErrors.ErrInternal, "download signing is not configured")
	}
	grant, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return storage.Grant{}, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return storage.Grant{}, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	return grant, nil
}
