package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

// AuditRepository appends and queries the audit trail. It exposes no update
// or delete; the table rejects both through triggers.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert appends one entry, inside exec's transaction when provided.
func (r *AuditRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = json.RawMessage(`{}`)
	}
	const query = `INSERT INTO audit_logs (id, document_id, actor_user_id, action, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		entry.ID, entry.DocumentID, entry.ActorUserID, entry.Action, string(entry.Metadata), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Query returns entries newest first. The caller bounds filter.Limit.
func (r *AuditRepository) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorExact != "" {
		add("actor_user_id = $%d", filter.ActorExact)
	}
	if filter.ActorContains != "" {
		add(`actor_user_id ILIKE $%d ESCAPE '\'`, containsPattern(filter.ActorContains))
	}
	if filter.DocumentID != "" {
		add("document_id = $%d", filter.DocumentID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	query := strings.Builder{}
	query.WriteString("SELECT id, document_id, actor_user_id, action, metadata, created_at FROM audit_logs")
	if len(conditions) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit)
	fmt.Fprintf(&query, " ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	logs := make([]models.AuditLog, len(rows))
	for i, row := range rows {
		logs[i] = row.model()
	}
	return logs, nil
}

type auditRow struct {
	ID          string             `db:"id"`
	DocumentID  *string            `db:"document_id"`
	ActorUserID string             `db:"actor_user_id"`
	Action      models.AuditAction `db:"action"`
	Metadata    []byte             `db:"metadata"`
	CreatedAt   time.Time          `db:"created_at"`
}

func (r auditRow) model() models.AuditLog {
	metadata := json.RawMessage(r.Metadata)
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	return models.AuditLog{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		ActorUserID: r.ActorUserID,
		Action:      r.Action,
		Metadata:    metadata,
		CreatedAt:   r.CreatedAt,
	}
}
