package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

const documentColumns = `id, document_number, title, prefix, version, status, level, department_id, owner_user_id,
effective_date, review_date, next_review_date, approved_by_user_id, approved_at, is_obsolete, parent_document_id,
submission_round, content_reference, filename, document_type, confidence, extracted_text, created_at, updated_at`

// DocumentRepository persists governance documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a document row.
func (r *DocumentRepository) Create(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.IsObsolete = doc.Status == models.DocumentStatusObsolete

	const query = `
INSERT INTO documents (id, document_number, title, prefix, version, status, level, department_id, owner_user_id,
	effective_date, review_date, next_review_date, approved_by_user_id, approved_at, is_obsolete, parent_document_id,
	submission_round, content_reference, filename, document_type, confidence, extracted_text, created_at, updated_at)
VALUES (:id, :document_number, :title, :prefix, :version, :status, :level, :department_id, :owner_user_id,
	:effective_date, :review_date, :next_review_date, :approved_by_user_id, :approved_at, :is_obsolete, :parent_document_id,
	:submission_round, :content_reference, :filename, :document_type, :confidence, :extracted_text, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, doc); err != nil {
		return translate("insert document", err)
	}
	return nil
}

// FindByID loads a document; sql.ErrNoRows when missing.
func (r *DocumentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := sqlx.GetContext(ctx, r.exec(exec), &doc, query, id); err != nil {
		return nil, translate("find document", err)
	}
	return &doc, nil
}

// GetForUpdate loads and row-locks a document inside exec's transaction so
// concurrent decisions on the same document serialize.
func (r *DocumentRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	var doc models.Document
	if err := sqlx.GetContext(ctx, r.exec(exec), &doc, query, id); err != nil {
		return nil, translate("lock document", err)
	}
	return &doc, nil
}

// List returns documents matching filter along with the total count.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	where, args := buildDocumentWhere(filter)

	countQuery := "SELECT COUNT(*) FROM documents" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM documents%s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d",
		documentColumns, where, len(args)-1, len(args))

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

func buildDocumentWhere(filter models.DocumentFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if vis := filter.Visibility; vis != nil && !vis.All {
		switch {
		case vis.UserID != "" && len(vis.DepartmentIDs) > 0:
			args = append(args, vis.UserID, pq.Array(vis.DepartmentIDs))
			conditions = append(conditions, fmt.Sprintf("(owner_user_id = $%d OR department_id::text = ANY($%d))", len(args)-1, len(args)))
		case vis.UserID != "":
			add("owner_user_id = $%d", vis.UserID)
		case len(vis.DepartmentIDs) > 0:
			add("department_id::text = ANY($%d)", pq.Array(vis.DepartmentIDs))
		default:
			conditions = append(conditions, "FALSE")
		}
	}
	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			values[i] = string(status)
		}
		add("status = ANY($%d)", pq.Array(values))
	}
	if filter.Level > 0 {
		add("level = $%d", filter.Level)
	}
	if filter.DepartmentID != "" {
		add("department_id = $%d", filter.DepartmentID)
	}
	if filter.DocumentType != "" {
		add("document_type = $%d", filter.DocumentType)
	}
	if filter.OwnerUserID != "" {
		add("owner_user_id = $%d", filter.OwnerUserID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, containsPattern(search))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR document_number ILIKE $%d ESCAPE '\' OR extracted_text ILIKE $%d ESCAPE '\')`, n, n, n))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// UpdateDetails writes editable metadata and content fields. Status,
// ownership and numbering are never touched here.
func (r *DocumentRepository) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE documents SET title = :title, version = :version, level = :level, effective_date = :effective_date,
	review_date = :review_date, next_review_date = :next_review_date, content_reference = :content_reference,
	filename = :filename, document_type = :document_type, confidence = :confidence, extracted_text = :extracted_text,
	updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, doc)
	if err != nil {
		return translate("update document", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("document rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusChange describes a compare-and-set lifecycle update.
type StatusChange struct {
	ID               string
	From             models.DocumentStatus
	To               models.DocumentStatus
	ApprovedByUserID *string
	ApprovedAt       *time.Time
	// BumpRound increments submission_round (draft -> pending_approval).
	BumpRound bool
}

// TransitionStatus applies change only if the row still holds change.From.
// It reports false when another writer got there first.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, change StatusChange) (bool, error) {
	const query = `
UPDATE documents SET
	status = $1,
	is_obsolete = $2,
	approved_by_user_id = COALESCE($3, approved_by_user_id),
	approved_at = COALESCE($4, approved_at),
	submission_round = submission_round + $5,
	updated_at = $6
WHERE id = $7 AND status = $8`
	bump := 0
	if change.BumpRound {
		bump = 1
	}
	result, err := r.exec(exec).ExecContext(ctx, query,
		change.To,
		change.To == models.DocumentStatusObsolete,
		change.ApprovedByUserID,
		change.ApprovedAt,
		bump,
		time.Now().UTC(),
		change.ID,
		change.From,
	)
	if err != nil {
		return false, translate("transition document status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("document status rows affected: %w", err)
	}
	return affected == 1, nil
}

// HasHistory reports whether the document has versions, approval slots or
// successors that a physical delete would orphan.
func (r *DocumentRepository) HasHistory(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `
SELECT EXISTS (SELECT 1 FROM document_versions WHERE document_id = $1)
	OR EXISTS (SELECT 1 FROM document_approvals WHERE document_id = $1)
	OR EXISTS (SELECT 1 FROM documents WHERE parent_document_id = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, id); err != nil {
		return false, fmt.Errorf("check document history: %w", err)
	}
	return exists, nil
}

// Delete removes a document row; sql.ErrNoRows when missing.
func (r *DocumentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("document rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type statisticsRow struct {
	Status          string          `db:"status"`
	Level           int             `db:"level"`
	DocumentType    string          `db:"document_type"`
	Total           int             `db:"total"`
	ConfidenceSum   sql.NullFloat64 `db:"confidence_sum"`
	ConfidenceCount int             `db:"confidence_count"`
}

// Statistics aggregates counts over the documents admitted by visibility.
func (r *DocumentRepository) Statistics(ctx context.Context, visibility models.Visibility) (*models.DocumentStatistics, error) {
	where, args := buildDocumentWhere(models.DocumentFilter{Visibility: &visibility})
	query := `
SELECT status, level, COALESCE(document_type, 'unclassified') AS document_type, COUNT(*) AS total,
	SUM(confidence) AS confidence_sum, COUNT(confidence) AS confidence_count
FROM documents` + where + `
GROUP BY status, level, COALESCE(document_type, 'unclassified')`

	var rows []statisticsRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("document statistics: %w", err)
	}

	stats := &models.DocumentStatistics{
		ByStatus:   map[string]int{},
		ByLevel:    map[string]int{},
		ByCategory: map[string]int{},
	}
	var (
		confidenceSum   float64
		confidenceCount int
	)
	for _, row := range rows {
		stats.TotalDocuments += row.Total
		stats.ByStatus[row.Status] += row.Total
		stats.ByLevel[strconv.Itoa(row.Level)] += row.Total
		stats.ByCategory[row.DocumentType] += row.Total
		if row.ConfidenceSum.Valid {
			confidenceSum += row.ConfidenceSum.Float64
		}
		confidenceCount += row.ConfidenceCount
	}
	if confidenceCount > 0 {
		stats.AverageConfidence = math.Round(confidenceSum/float64(confidenceCount)*100) / 100
	}
	return stats, nil
}
