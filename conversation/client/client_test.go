package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"discussion-facilitator/backend/ai"
	"discussion-facilitator/backend/conversation/api"
	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/conversation/service"
	"discussion-facilitator/backend/conversation/ws"
	"discussion-facilitator/backend/pkg/config"
	apperrors "discussion-facilitator/backend/pkg/errors"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedFacilitator struct{}

func (cannedFacilitator) Invoke(context.Context, ai.Request) (ai.Reply, error) {
	return ai.Reply{Text: "Good points so far."}, nil
}

func newServer(t *testing.T) (*Client, *ws.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	repo := repository.NewGormMessageRepository(db, "GPT4o")
	coord, err := service.NewCoordinator(repo, cannedFacilitator{}, service.CoordinatorConfig{
		FacilitatorID: "GPT4o",
		Threshold:     2,
	}, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub([]string{"*"}, logger.Nop())
	go hub.Run(ctx)

	svc := service.NewMessageService(repo, coord, hub, service.ServiceConfig{
		FacilitatorID:    "GPT4o",
		MaxAuthorLength:  32,
		MaxContentLength: 500,
		Topic:            "Uniforms",
	}, logger.Nop())

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	api.RegisterMessageRoutes(r.Group("/api/v1"), api.NewMessageHandler(svc))
	r.GET("/ws", hub.ServeWs)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second}), hub
}

func TestSendAndRead(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	res, err := c.Send(ctx, "ana", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Message.Content)
	assert.Equal(t, service.OutcomeNotDue, res.Facilitator.Outcome)

	_, err = c.Send(ctx, "ana", "  ")
	assert.ErrorIs(t, err, ErrIgnored)

	res, err = c.Send(ctx, "ben", "hi")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeResolved, res.Facilitator.Outcome)

	msgs, err := c.Messages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "GPT4o", msgs[2].Author)

	tail, err := c.Messages(ctx, msgs[1].ID)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}

func TestSendReservedAuthor(t *testing.T) {
	c, _ := newServer(t)

	_, err := c.Send(context.Background(), "GPT4o", "pretending")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "RESERVED_AUTHOR", apiErr.Code)
}

func TestParticipantsEvaluateClear(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()
	_, err := c.Send(ctx, "ana", "one")
	require.NoError(t, err)

	p, err := c.Participants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, p.Members)
	assert.Equal(t, 2, p.NextCrossing)

	res, err := c.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNotDue, res.Outcome)

	require.NoError(t, c.Clear(ctx))
	msgs, err := c.Messages(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestExport(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()
	_, err := c.Send(ctx, "ana", "one")
	require.NoError(t, err)

	data, name, err := c.Export(ctx, export.Text)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "conversation-"))
	assert.True(t, strings.HasSuffix(name, ".txt"))
	assert.Contains(t, string(data), "ana: one")
}

func TestTail(t *testing.T) {
	c, hub := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan models.ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Tail(ctx, func(e models.ChangeEvent) { events <- e })
	}()
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, err := c.Send(context.Background(), "ana", "ping")
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, res.Message.ID, e.LastID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
}

func TestReadsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":1,"author":"ana","content":"x"}]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryMax: 2})
	msgs, err := c.Messages(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"STORE_UNAVAILABLE","message":"down"}}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryMax: 3})
	_, err := c.Send(context.Background(), "ana", "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "STORE_UNAVAILABLE", apiErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}
