package router

import (
	"net/http"

	"discussion-facilitator/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// AddOpenAPIValidation validates requests on group against schema and
// publishes the schema at /api/docs/openapi.yaml
func (r *Router) AddOpenAPIValidation(group *gin.RouterGroup, schema []byte) error {
	v, err := validator.NewOpenAPIValidator(schema)
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator")
		return err
	}

	group.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", schema)
	})
	r.Logger.Info("OpenAPI validation enabled", "url", "/api/docs/openapi.yaml")
	return nil
}
