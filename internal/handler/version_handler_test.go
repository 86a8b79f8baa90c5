package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/storage"
)

type fakeVersionService struct {
	versions []models.DocumentVersion
	link     *models.VersionDownload
	grant    storage.Grant
	err      error

	lastDoc     string
	lastVersion string
	lastToken   string
}

func (f *fakeVersionService) ListVersions(_ context.Context, _ models.Actor, documentID string) ([]models.DocumentVersion, error) {
	f.lastDoc = documentID
	return f.versions, f.err
}

func (f *fakeVersionService) DownloadVersion(_ context.Context, _ models.Actor, documentID, version string) (*models.VersionDownload, error) {
	f.lastDoc, f.lastVersion = documentID, version
	return f.link, f.err
}

func (f *fakeVersionService) ResolveDownload(token string) (storage.Grant, error) {
	f.lastToken = token
	return f.grant, f.err
}

func TestVersionHandlerDownload(t *testing.T) {
	svc := &fakeVersionService{link: &models.VersionDownload{
		DocumentID: "doc-1", Version: "1.1", URL: "http://localhost:8080/api/v1/downloads/tok",
		ExpiresAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	h := NewVersionHandler(svc)

	c, rec := newContext(http.MethodGet, "/documents/doc-1/versions/1.1/download", nil, "owner")
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}, {Key: "version", Value: "1.1"}}
	h.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-1", svc.lastDoc)
	assert.Equal(t, "1.1", svc.lastVersion)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), "/downloads/tok")
}

func TestVersionHandlerResolveIsAnonymous(t *testing.T) {
	svc := &fakeVersionService{grant: storage.Grant{
		DocumentID: "doc-1", Version: "1.0", ContentReference: "s3://bucket/doc-1/1.0.pdf",
		ExpiresAt: time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC),
	}}
	h := NewVersionHandler(svc)

	c, rec := newContext(http.MethodGet, "/downloads/tok", nil, "")
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Resolve(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", svc.lastToken)
	data := string(decodeEnvelope(t, rec).Data)
	assert.Contains(t, data, `"expiresAt":"2024-03-01T10:15:00Z"`)
	assert.Contains(t, data, "s3://bucket/doc-1/1.0.pdf")
}

func TestVersionHandlerResolveRejectsBadToken(t *testing.T) {
	h := NewVersionHandler(&fakeVersionService{err: appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")})

	c, rec := newContext(http.MethodGet, "/downloads/old", nil, "")
	c.Params = gin.Params{{Key: "token", Value: "old"}}
	h.Resolve(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "download link expired", decodeEnvelope(t, rec).Error.Message)
}
