package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

// SequenceRepository hands out per-bucket counters.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

func (r *SequenceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Next atomically creates or increments the bucket and returns the new value.
// The row lock taken by the upsert is held until exec's transaction ends, so
// concurrent callers in the same bucket observe distinct, contiguous values.
func (r *SequenceRepository) Next(ctx context.Context, exec sqlx.ExtContext, bucket models.SequenceBucket) (int, error) {
	const query = `
INSERT INTO document_sequences (prefix, department_code, year, current_value, updated_at)
VALUES ($1, $2, $3, 1, NOW())
ON CONFLICT (prefix, department_code, year)
DO UPDATE SET current_value = document_sequences.current_value + 1, updated_at = NOW()
RETURNING current_value`
	var value int
	if err := sqlx.GetContext(ctx, r.exec(exec), &value, query, bucket.Prefix, bucket.DepartmentCode, bucket.Year); err != nil {
		return 0, translate("allocate sequence", err)
	}
	return value, nil
}
