package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/conversation/service"
	apperrors "discussion-facilitator/backend/pkg/errors"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *service.MessageService
	now     func() time.Time
}

func NewMessageHandler(service *service.MessageService) *MessageHandler {
	return &MessageHandler{service: service, now: time.Now}
}

// SubmitRequest is the body of POST /messages
type SubmitRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// ListMessages returns the log, or its tail after after_id
func (h *MessageHandler) ListMessages(c *gin.Context) {
	var afterID uint64
	if raw := c.Query("after_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = c.Error(apperrors.NewBadRequestError("INVALID_AFTER_ID", "after_id must be a non-negative integer"))
			return
		}
		afterID = id
	}

	messages, err := h.service.List(c.Request.Context(), afterID)
	if err != nil {
		_ = c.Error(mapError(err))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// CreateMessage appends a participant message and reports what the
// facilitator did in response
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").Wrap(err))
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req.Author, req.Content)
	if errors.Is(err, repository.ErrEmptyContent) {
		logger.FromContext(c).Debug("Ignoring empty message", "author", req.Author)
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		_ = c.Error(mapError(err))
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ClearMessages empties the conversation
func (h *MessageHandler) ClearMessages(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context()); err != nil {
		_ = c.Error(mapError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) GetParticipants(c *gin.Context) {
	p, err := h.service.Participants(c.Request.Context())
	if err != nil {
		_ = c.Error(mapError(err))
		return
	}
	c.JSON(http.StatusOK, p)
}

// EvaluateFacilitator runs an on-demand trigger evaluation
func (h *MessageHandler) EvaluateFacilitator(c *gin.Context) {
	res, err := h.service.Evaluate(c.Request.Context())
	if err != nil {
		_ = c.Error(mapError(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ExportConversation streams the log as a downloadable file
func (h *MessageHandler) ExportConversation(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.Markdown)))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_FORMAT", err.Error()))
		return
	}

	at := h.now()
	body, err := h.service.Export(c.Request.Context(), format, at)
	if err != nil {
		_ = c.Error(mapError(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+format.FileName(at)+`"`)
	c.Data(http.StatusOK, format.ContentType(), body)
}

// mapError turns service and repository errors into API errors
func mapError(err error) error {
	switch {
	case errors.Is(err, repository.ErrReservedAuthor):
		return apperrors.NewBadRequestError("RESERVED_AUTHOR", "This author name is reserved for the facilitator").Wrap(err)
	case errors.Is(err, service.ErrInvalidAuthor):
		return apperrors.NewBadRequestError("INVALID_AUTHOR", "Author name is required").Wrap(err)
	case errors.Is(err, service.ErrContentTooLong):
		return apperrors.NewBadRequestError("CONTENT_TOO_LONG", "Message content is too long").Wrap(err)
	default:
		return apperrors.NewInternalServerError("STORE_UNAVAILABLE", "The conversation store is unavailable").Wrap(err)
	}
}
