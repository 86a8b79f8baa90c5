package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

// DocumentVersionRepository appends version snapshots. There is no update or
// delete path; the table is guarded by triggers as well.
type DocumentVersionRepository struct {
	db *sqlx.DB
}

// NewDocumentVersionRepository constructs the repository.
func NewDocumentVersionRepository(db *sqlx.DB) *DocumentVersionRepository {
	return &DocumentVersionRepository{db: db}
}

func (r *DocumentVersionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const versionColumns = `id, document_id, version, content_reference, change_description, author_user_id, created_at`

// Create inserts a version row; ErrDuplicate when (document, version) exists.
func (r *DocumentVersionRepository) Create(ctx context.Context, exec sqlx.ExtContext, version *models.DocumentVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_versions (` + versionColumns + `)
VALUES (:id, :document_id, :version, :content_reference, :change_description, :author_user_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, version); err != nil {
		return translate("insert document version", err)
	}
	return nil
}

// ListByDocument returns versions oldest first.
func (r *DocumentVersionRepository) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 ORDER BY created_at ASC, id ASC`
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	return versions, nil
}

// Find loads one version of a document; sql.ErrNoRows when missing.
func (r *DocumentVersionRepository) Find(ctx context.Context, documentID, version string) (*models.DocumentVersion, error) {
	const query = `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 AND version = $2`
	var v models.DocumentVersion
	if err := r.db.GetContext(ctx, &v, query, documentID, version); err != nil {
		return nil, err
	}
	return &v, nil
}
