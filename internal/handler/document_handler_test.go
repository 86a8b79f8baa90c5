package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/middleware"
	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

// newContext builds a test context authenticated as userID (empty means anonymous).
func newContext(method, target string, body interface{}, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		c.Set(middleware.ContextUserKey, &models.Claims{UserID: userID, Roles: []string{"faculty"}})
	}
	return c, rec
}

type fakeDocumentService struct {
	doc        *models.Document
	list       *dto.DocumentListResult
	stats      *models.DocumentStatistics
	statsHit   bool
	submission *dto.SubmissionResult
	err        error

	lastActor  models.Actor
	lastID     string
	lastCreate dto.CreateDocumentRequest
	lastQuery  dto.DocumentQuery
	lastObs    dto.ObsoleteRequest
	lastWith   dto.WithdrawRequest
	printed    bool
}

func (f *fakeDocumentService) Create(_ context.Context, actor models.Actor, req dto.CreateDocumentRequest) (*models.Document, error) {
	f.lastActor, f.lastCreate = actor, req
	return f.doc, f.err
}

func (f *fakeDocumentService) Get(_ context.Context, actor models.Actor, id string) (*models.Document, error) {
	f.lastActor, f.lastID = actor, id
	return f.doc, f.err
}

func (f *fakeDocumentService) List(_ context.Context, actor models.Actor, query dto.DocumentQuery) (*dto.DocumentListResult, error) {
	f.lastActor, f.lastQuery = actor, query
	return f.list, f.err
}

func (f *fakeDocumentService) Update(_ context.Context, actor models.Actor, id string, _ dto.UpdateDocumentRequest) (*models.Document, error) {
	f.lastActor, f.lastID = actor, id
	return f.doc, f.err
}

func (f *fakeDocumentService) Delete(_ context.Context, actor models.Actor, id string) error {
	f.lastActor, f.lastID = actor, id
	return f.err
}

func (f *fakeDocumentService) Submit(_ context.Context, actor models.Actor, id string) (*dto.SubmissionResult, error) {
	f.lastActor, f.lastID = actor, id
	return f.submission, f.err
}

func (f *fakeDocumentService) Withdraw(_ context.Context, _ models.Actor, id string, req dto.WithdrawRequest) (*models.Document, error) {
	f.lastID, f.lastWith = id, req
	return f.doc, f.err
}

func (f *fakeDocumentService) Obsolete(_ context.Context, _ models.Actor, id string, req dto.ObsoleteRequest) (*models.Document, error) {
	f.lastID, f.lastObs = id, req
	return f.doc, f.err
}

func (f *fakeDocumentService) Revise(_ context.Context, _ models.Actor, id string, _ dto.ReviseRequest) (*models.Document, error) {
	f.lastID = id
	return f.doc, f.err
}

func (f *fakeDocumentService) Statistics(_ context.Context, actor models.Actor) (*models.DocumentStatistics, bool, error) {
	f.lastActor = actor
	return f.stats, f.statsHit, f.err
}

func (f *fakeDocumentService) RecordPrint(_ context.Context, _ models.Actor, id string) error {
	f.lastID, f.printed = id, true
	return f.err
}

func TestDocumentHandlerRequiresAuthentication(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodGet, "/documents", nil, "")
	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.lastActor.UserID)
}

func TestDocumentHandlerCreate(t *testing.T) {
	number := "PROC-HR-2024-001"
	svc := &fakeDocumentService{doc: &models.Document{ID: "doc-1", DocumentNumber: &number}}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodPost, "/documents", dto.CreateDocumentRequest{Title: "Recruitment", Prefix: "PROC", Level: 2}, "user-1")
	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", svc.lastActor.UserID)
	assert.Equal(t, []models.Role{models.RoleInstructor}, svc.lastActor.Roles)
	assert.Equal(t, "PROC", svc.lastCreate.Prefix)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), number)
}

func TestDocumentHandlerCreateRejectsMalformedJSON(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodPost, "/documents", nil, "user-1")
	c.Request = httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString("{"))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code)
}

func TestDocumentHandlerListBindsQuery(t *testing.T) {
	svc := &fakeDocumentService{list: &dto.DocumentListResult{
		Documents:  []models.Document{{ID: "doc-1"}},
		Pagination: models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodGet, "/documents?status=draft,approved&mine=true&page=2&pageSize=10", nil, "user-1")
	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"draft,approved"}, svc.lastQuery.Status)
	assert.True(t, svc.lastQuery.Mine)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 11, envelope.Pagination.TotalCount)
}

func TestDocumentHandlerStatisticsReportsCacheHit(t *testing.T) {
	svc := &fakeDocumentService{stats: &models.DocumentStatistics{TotalDocuments: 3}, statsHit: true}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodGet, "/documents/stats", nil, "user-1")
	h.Statistics(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
}

func TestDocumentHandlerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{appErrors.ErrNotAuthorized, http.StatusForbidden, "NOT_AUTHORIZED"},
		{appErrors.WithField(appErrors.ErrInvalidTransition, "status", "cannot submit"), http.StatusConflict, "INVALID_TRANSITION"},
		{appErrors.ErrNoEligibleApprovers, http.StatusUnprocessableEntity, "NO_ELIGIBLE_APPROVERS"},
	}
	for _, tc := range cases {
		svc := &fakeDocumentService{err: tc.err}
		h := NewDocumentHandler(svc)

		c, rec := newContext(http.MethodPost, "/documents/doc-1/submit", nil, "user-1")
		c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
		h.Submit(c)

		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.code, decodeEnvelope(t, rec).Error.Code)
		assert.Equal(t, "doc-1", svc.lastID)
	}
}

func TestDocumentHandlerWithdrawAcceptsEmptyBody(t *testing.T) {
	svc := &fakeDocumentService{doc: &models.Document{ID: "doc-1", Status: models.DocumentStatusDraft}}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodPost, "/documents/doc-1/withdraw", nil, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.Withdraw(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.lastWith.Reason)

	c, rec = newContext(http.MethodPost, "/documents/doc-1/withdraw", dto.WithdrawRequest{Reason: "typo"}, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.Withdraw(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "typo", svc.lastWith.Reason)
}

func TestDocumentHandlerDeleteAndPrint(t *testing.T) {
	svc := &fakeDocumentService{}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodDelete, "/documents/doc-1", nil, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = newContext(http.MethodPost, "/documents/doc-1/print", nil, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.Print(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.printed)
}

func TestDocumentHandlerObsoleteRequiresBody(t *testing.T) {
	successor := "8b3e4d6a-0c3f-4e5d-9a4b-2c3d4e5f6071"
	svc := &fakeDocumentService{doc: &models.Document{ID: "doc-1", Status: models.DocumentStatusObsolete}}
	h := NewDocumentHandler(svc)

	c, rec := newContext(http.MethodPost, "/documents/doc-1/obsolete", dto.ObsoleteRequest{Reason: "replaced", SuccessorDocumentID: &successor}, "user-1")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	h.Obsolete(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastObs.SuccessorDocumentID)
	assert.Equal(t, successor, *svc.lastObs.SuccessorDocumentID)
}
