package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

var documentRowColumns = []string{
	"id", "document_number", "title", "prefix", "version", "status", "level", "department_id", "owner_user_id",
	"effective_date", "review_date", "next_review_date", "approved_by_user_id", "approved_at", "is_obsolete", "parent_document_id",
	"submission_round", "content_reference", "filename", "document_type", "confidence", "extracted_text", "created_at", "updated_at",
}

func documentRow(rows *sqlmock.Rows, id, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "PROC-HR-2024-001", "Leave procedure", "PROC", "1.0", status, 2, "dept-1", "owner-1",
		nil, nil, nil, nil, nil, status == "obsolete", nil,
		1, "s3://docs/leave.pdf", "leave.pdf", "procedure", 0.91, "leave policy text", now, now)
}

func TestDocumentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	number := "PROC-HR-2024-001"
	doc := &models.Document{DocumentNumber: &number, Title: "Leave", Prefix: "PROC", Version: "1.0", Status: models.DocumentStatusDraft, Level: 2, DepartmentID: "dept-1", OwnerUserID: "owner-1"}
	require.NoError(t, repo.Create(context.Background(), nil, doc))
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.IsObsolete)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCreateDuplicateNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_document_number_key"})

	err := repo.Create(context.Background(), nil, &models.Document{Title: "x"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDocumentRepositoryGetForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 FOR UPDATE")).
		WithArgs("doc-1").
		WillReturnRows(documentRow(sqlmock.NewRows(documentRowColumns), "doc-1", "pending_approval"))

	doc, err := repo.GetForUpdate(context.Background(), nil, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusPendingApproval, doc.Status)
	require.NotNil(t, doc.Confidence)
	assert.InDelta(t, 0.91, *doc.Confidence, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryMalformedIDMatchesNoRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`})
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 FOR UPDATE")).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
		WithArgs("0d9a7c1e-2b3f-4a5d-8e6f-7a8b9c0d1e2f").
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	_, err := repo.FindByID(context.Background(), nil, "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = repo.GetForUpdate(context.Background(), nil, "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), nil, "0d9a7c1e-2b3f-4a5d-8e6f-7a8b9c0d1e2f")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListAppliesVisibilityAndSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	filter := models.DocumentFilter{
		Visibility: &models.Visibility{UserID: "user-1", DepartmentIDs: []string{"dept-1"}},
		Status:     []models.DocumentStatus{models.DocumentStatusApproved},
		Search:     "leave",
		Limit:      10,
		Offset:     20,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM documents WHERE (owner_user_id = $1 OR department_id::text = ANY($2)) AND status = ANY($3) AND (title ILIKE $4 ESCAPE '\' OR document_number ILIKE $4 ESCAPE '\' OR extracted_text ILIKE $4 ESCAPE '\')`)).
		WithArgs("user-1", pq.Array([]string{"dept-1"}), pq.Array([]string{"approved"}), "%leave%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id ASC LIMIT $5 OFFSET $6")).
		WithArgs("user-1", pq.Array([]string{"dept-1"}), pq.Array([]string{"approved"}), "%leave%", 10, 20).
		WillReturnRows(documentRow(sqlmock.NewRows(documentRowColumns), "doc-1", "approved"))

	docs, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, docs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDocumentWhereSearchEscapesWildcards(t *testing.T) {
	where, args := buildDocumentWhere(models.DocumentFilter{Search: ` 100%_done\ `})
	assert.Contains(t, where, `title ILIKE $1 ESCAPE '\'`)
	require.Len(t, args, 1)
	assert.Equal(t, `%100\%\_done\\%`, args[0])

	_, args = buildDocumentWhere(models.DocumentFilter{Search: "%"})
	assert.Equal(t, []interface{}{`%\%%`}, args)
}

func TestBuildDocumentWhereEmptyVisibilityDeniesAll(t *testing.T) {
	where, args := buildDocumentWhere(models.DocumentFilter{Visibility: &models.Visibility{}})
	assert.Equal(t, " WHERE FALSE", where)
	assert.Empty(t, args)

	where, _ = buildDocumentWhere(models.DocumentFilter{Visibility: &models.Visibility{All: true}})
	assert.Empty(t, where)
}

func TestDocumentRepositoryTransitionStatusCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $7 AND status = $8")).
		WithArgs("pending_approval", false, nil, nil, 1, sqlmock.AnyArg(), "doc-1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $7 AND status = $8")).
		WithArgs("obsolete", true, nil, nil, 0, sqlmock.AnyArg(), "doc-1", "approved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TransitionStatus(context.Background(), nil, StatusChange{ID: "doc-1", From: models.DocumentStatusDraft, To: models.DocumentStatusPendingApproval, BumpRound: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(context.Background(), nil, StatusChange{ID: "doc-1", From: models.DocumentStatusApproved, To: models.DocumentStatusObsolete})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryHasHistoryAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM document_versions WHERE document_id = $1)")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs("doc-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	has, err := repo.HasHistory(context.Background(), nil, "doc-1")
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, repo.Delete(context.Background(), nil, "doc-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "doc-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryStatistics(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows([]string{"status", "level", "document_type", "total", "confidence_sum", "confidence_count"}).
		AddRow("approved", 2, "procedure", 2, 1.8, 2).
		AddRow("draft", 2, "procedure", 1, 0.61, 1).
		AddRow("draft", 4, "unclassified", 1, nil, 0)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status, level")).
		WithArgs("user-1").
		WillReturnRows(rows)

	stats, err := repo.Statistics(context.Background(), models.Visibility{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalDocuments)
	assert.Equal(t, 2, stats.ByStatus["draft"])
	assert.Equal(t, 3, stats.ByLevel["2"])
	assert.Equal(t, 3, stats.ByCategory["procedure"])
	assert.Equal(t, 1, stats.ByCategory["unclassified"])
	assert.Equal(t, 0.8, stats.AverageConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
