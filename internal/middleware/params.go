package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

// UUIDParam answers 404 when the named path parameter is not a UUID, so
// malformed identifiers never reach the database.
func UUIDParam(name, notFound string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// canonical form only; uuid.Parse also takes urn and braced forms
		value := c.Param(name)
		if _, err := uuid.Parse(value); err != nil || len(value) != 36 {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, notFound))
			return
		}
		c.Next()
	}
}
