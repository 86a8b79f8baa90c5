package models

import (
	"fmt"
	"time"
)

// SequenceBucket keys sequential document numbers.
type SequenceBucket struct {
	Prefix         string `db:"prefix"`
	DepartmentCode string `db:"department_code"`
	Year           int    `db:"year"`
}

// SequenceCounter is the persisted state of one bucket.
type SequenceCounter struct {
	SequenceBucket
	CurrentValue int       `db:"current_value"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// FormatDocumentNumber renders PREFIX-DEPT-YEAR-NNN.
func FormatDocumentNumber(bucket SequenceBucket, value int) string {
	return fmt.Sprintf("%s-%s-%d-%03d", bucket.Prefix, bucket.DepartmentCode, bucket.Year, value)
}
