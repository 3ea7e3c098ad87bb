package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"discussion-facilitator/backend/ai"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/conversation/service"
	"discussion-facilitator/backend/pkg/config"
	apperrors "discussion-facilitator/backend/pkg/errors"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type echoFacilitator struct{ calls int }

func (f *echoFacilitator) Invoke(_ context.Context, req ai.Request) (ai.Reply, error) {
	f.calls++
	return ai.Reply{Text: "Let's hear from everyone"}, nil
}

type testAPI struct {
	engine      *gin.Engine
	db          *gorm.DB
	facilitator *echoFacilitator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewGormMessageRepository(db, "GPT4o")
	fac := &echoFacilitator{}
	coord, err := service.NewCoordinator(repo, fac, service.CoordinatorConfig{
		FacilitatorID: "GPT4o",
		Threshold:     3,
		InvokeTimeout: time.Second,
	}, logger.Nop())
	require.NoError(t, err)

	svc := service.NewMessageService(repo, coord, nil, service.ServiceConfig{
		FacilitatorID:    "GPT4o",
		MaxAuthorLength:  32,
		MaxContentLength: 200,
		Topic:            "Classroom air-conditioning",
	}, logger.Nop())

	handler := NewMessageHandler(svc)
	handler.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	r := gin.New()
	r.Use(logger.Middleware(logger.Nop()), apperrors.ErrorHandler(), apperrors.RecoveryWithLogger())
	RegisterMessageRoutes(r.Group("/api/v1"), handler)

	return &testAPI{engine: r, db: db, facilitator: fac}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestCreateMessage(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: " hello "})
	require.Equal(t, http.StatusCreated, w.Code)

	var res service.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ana", res.Message.Author)
	assert.Equal(t, "hello", res.Message.Content)
	assert.Equal(t, service.OutcomeNotDue, res.Facilitator.Outcome)
}

func TestCreateMessageIgnoresEmptyContent(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: "   "})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = api.do(t, http.MethodGet, "/api/v1/messages", nil)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())
}

func TestCreateMessageRejectsAuthors(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "gpt4o", Content: "I am the AI"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "RESERVED_AUTHOR", errorCode(t, w))

	w = api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "  ", Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AUTHOR", errorCode(t, w))

	w = api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: strings.Repeat("a", 201)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONTENT_TOO_LONG", errorCode(t, w))
}

func TestCreateMessageTriggersFacilitator(t *testing.T) {
	api := newTestAPI(t)

	var last *httptest.ResponseRecorder
	for _, who := range []string{"ana", "ben", "cy"} {
		last = api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: who, Content: "point from " + who})
		require.Equal(t, http.StatusCreated, last.Code)
	}

	var res service.SubmitResult
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &res))
	assert.Equal(t, service.OutcomeResolved, res.Facilitator.Outcome)
	assert.Equal(t, 3, res.Facilitator.Crossing)
	require.NotNil(t, res.Facilitator.Message)
	assert.Equal(t, "GPT4o", res.Facilitator.Message.Author)

	w := api.do(t, http.MethodPost, "/api/v1/facilitator/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eval service.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eval))
	assert.Equal(t, service.OutcomeNotDue, eval.Outcome)
	assert.Equal(t, 1, api.facilitator.calls)
}

func TestListMessagesAfterID(t *testing.T) {
	api := newTestAPI(t)
	for _, c := range []string{"one", "two"} {
		api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: c})
	}

	w := api.do(t, http.MethodGet, "/api/v1/messages?after_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "two", body.Messages[0].Content)

	w = api.do(t, http.MethodGet, "/api/v1/messages?after_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AFTER_ID", errorCode(t, w))
}

func TestClearMessages(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: "hi"})

	w := api.do(t, http.MethodDelete, "/api/v1/messages", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p service.Participants
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Zero(t, p.Count)
	assert.Zero(t, p.HumanMessages)
	assert.Equal(t, 3, p.NextCrossing)
}

func TestGetParticipants(t *testing.T) {
	api := newTestAPI(t)
	for _, who := range []string{"ana", "ben", "ANA"} {
		api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: who, Content: "x"})
	}

	w := api.do(t, http.MethodGet, "/api/v1/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p service.Participants
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, 3, p.HumanMessages)
	assert.Equal(t, 6, p.NextCrossing)
	assert.True(t, p.Facilitator)
}

func TestExportConversation(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/v1/messages", SubmitRequest{Author: "ana", Content: "hello"})

	w := api.do(t, http.MethodGet, "/api/v1/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="conversation-20240506-070809.md"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "**ana:** hello")

	w = api.do(t, http.MethodGet, "/api/v1/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FORMAT", errorCode(t, w))
}

func TestStoreFailureIsReported(t *testing.T) {
	api := newTestAPI(t)
	sqlDB, err := api.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := api.do(t, http.MethodGet, "/api/v1/messages", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", errorCode(t, w))
}
