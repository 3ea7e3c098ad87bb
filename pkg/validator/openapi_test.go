package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discussion-facilitator/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
openapi: 3.0.3
info:
  title: test
  version: "1"
servers:
  - url: /
paths:
  /items:
    get:
      parameters:
        - name: limit
          in: query
          schema:
            type: integer
            minimum: 1
      responses:
        "200":
          description: ok
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name:
                  type: string
      responses:
        "201":
          description: created
`

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator([]byte(testSchema))
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	r.GET("/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/items", func(c *gin.Context) {
		var body struct {
			Name string `json:"name"`
		}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusCreated, body)
	})
	r.GET("/unlisted", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidRequestsPass(t *testing.T) {
	r := newEngine(t)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/items?limit=3", "").Code)

	w := serve(r, http.MethodPost, "/items", `{"name":"a"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"name":"a"}`, w.Body.String())
}

func TestInvalidRequestsRejected(t *testing.T) {
	r := newEngine(t)

	w := serve(r, http.MethodGet, "/items?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")

	w = serve(r, http.MethodPost, "/items", `{"other":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnlistedRoutesPassThrough(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(newEngine(t), http.MethodGet, "/unlisted", "").Code)
}

func TestInvalidSchemaRejected(t *testing.T) {
	_, err := NewOpenAPIValidator([]byte("openapi: 3.0.3\npaths: {}\n"))
	assert.Error(t, err)
}

func TestNewOpenAPIValidatorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))

	v, err := NewOpenAPIValidatorFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test", v.Document().Info.Title)

	_, err = NewOpenAPIValidatorFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
