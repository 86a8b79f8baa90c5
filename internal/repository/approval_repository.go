package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

// ApprovalRepository persists approval slots.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const approvalColumns = `id, document_id, round, approver_user_id, approver_role, level, status, comments, approved_at, created_at`

// InsertSlots creates pending slots. A second slot for the same approver in
// the same round yields ErrDuplicate.
func (r *ApprovalRepository) InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.ApprovalRequest) error {
	const query = `INSERT INTO document_approvals (` + approvalColumns + `)
VALUES (:id, :document_id, :round, :approver_user_id, :approver_role, :level, :status, :comments, :approved_at, :created_at)`
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.Status == "" {
			slot.Status = models.ApprovalStatusPending
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return translate("insert approval slot", err)
		}
	}
	return nil
}

// GetSlotForUpdate locks the approver's slot in the given round.
func (r *ApprovalRepository) GetSlotForUpdate(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, approverID string) (*models.ApprovalRequest, error) {
	const query = `SELECT ` + approvalColumns + ` FROM document_approvals
WHERE document_id = $1 AND round = $2 AND approver_user_id = $3 FOR UPDATE`
	var slot models.ApprovalRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, documentID, round, approverID); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Decide moves a pending slot to approved or rejected. It reports false if
// the slot was no longer pending.
func (r *ApprovalRepository) Decide(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApprovalStatus, comments *string, at time.Time) (bool, error) {
	const query = `UPDATE document_approvals SET status = $1, comments = $2, approved_at = $3 WHERE id = $4 AND status = 'pending'`
	result, err := r.exec(exec).ExecContext(ctx, query, status, comments, at, id)
	if err != nil {
		return false, fmt.Errorf("decide approval slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approval rows affected: %w", err)
	}
	return affected == 1, nil
}

// InvalidatePending rejects every still-pending slot in the round and
// returns how many were closed.
func (r *ApprovalRepository) InvalidatePending(ctx context.Context, exec sqlx.ExtContext, documentID string, round int, comment string, at time.Time) (int64, error) {
	const query = `UPDATE document_approvals SET status = 'rejected', comments = $1, approved_at = $2
WHERE document_id = $3 AND round = $4 AND status = 'pending'`
	result, err := r.exec(exec).ExecContext(ctx, query, comment, at, documentID, round)
	if err != nil {
		return 0, fmt.Errorf("invalidate pending approvals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("approval rows affected: %w", err)
	}
	return affected, nil
}

// Tally counts slot states in a round.
func (r *ApprovalRepository) Tally(ctx context.Context, exec sqlx.ExtContext, documentID string, round int) (models.ApprovalTally, error) {
	const query = `
SELECT
	COUNT(*) FILTER (WHERE status = 'pending') AS pending,
	COUNT(*) FILTER (WHERE status = 'approved') AS approved,
	COUNT(*) FILTER (WHERE status = 'rejected') AS rejected
FROM document_approvals WHERE document_id = $1 AND round = $2`
	var tally models.ApprovalTally
	if err := sqlx.GetContext(ctx, r.exec(exec), &tally, query, documentID, round); err != nil {
		return models.ApprovalTally{}, fmt.Errorf("tally approvals: %w", err)
	}
	return tally, nil
}

// ListByDocument returns every slot for a document across rounds.
func (r *ApprovalRepository) ListByDocument(ctx context.Context, documentID string) ([]models.ApprovalRequest, error) {
	const query = `SELECT ` + approvalColumns + ` FROM document_approvals WHERE document_id = $1 ORDER BY round ASC, created_at ASC, approver_user_id ASC`
	var slots []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &slots, query, documentID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return slots, nil
}

// ListPendingForApprover returns open slots of the approver on documents that
// are still awaiting approval in the current round.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]models.ApprovalRequest, error) {
	const query = `
SELECT a.id, a.document_id, a.round, a.approver_user_id, a.approver_role, a.level, a.status, a.comments, a.approved_at, a.created_at
FROM document_approvals a
JOIN documents d ON d.id = a.document_id
WHERE a.approver_user_id = $1 AND a.status = 'pending' AND d.status = 'pending_approval' AND a.round = d.submission_round
ORDER BY a.created_at ASC`
	var slots []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &slots, query, approverID); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return slots, nil
}
