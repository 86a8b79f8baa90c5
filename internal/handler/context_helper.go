package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/middleware"
	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

// actorFromContext returns the authenticated caller or writes a 401.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func bindError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// responseMeta returns the request's meta block stamped with processing time.
func responseMeta(c *gin.Context, start time.Time) map[string]interface{} {
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	return meta
}
