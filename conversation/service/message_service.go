package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/pkg/logger"
)

var (
	ErrInvalidAuthor  = errors.New("author name is empty")
	ErrContentTooLong = errors.New("message content is too long")
)

// Notifier is told whenever the log changes
type Notifier interface {
	Notify(ctx context.Context, event models.ChangeEvent)
}

// ServiceConfig holds submission limits and discussion settings
type ServiceConfig struct {
	FacilitatorID    string
	MaxAuthorLength  int
	MaxContentLength int
	Topic            string
}

// SubmitResult is the accepted message plus what the facilitator did after it
type SubmitResult struct {
	Message     *models.Message `json:"message"`
	Facilitator Result          `json:"facilitator"`
}

// Participants summarizes who is taking part
type Participants struct {
	Count         int      `json:"count"`
	Members       []string `json:"members"`
	HumanMessages int      `json:"human_messages"`
	Threshold     int      `json:"threshold"`
	NextCrossing  int      `json:"next_crossing"`
	Facilitator   bool     `json:"facilitator_enabled"`
	Topic         string   `json:"topic,omitempty"`
}

type MessageService struct {
	repo        repository.MessageRepository
	coordinator *Coordinator
	notifier    Notifier
	cfg         ServiceConfig
	log         *logger.Logger
}

func NewMessageService(repo repository.MessageRepository, coordinator *Coordinator, notifier Notifier, cfg ServiceConfig, log *logger.Logger) *MessageService {
	return &MessageService{
		repo:        repo,
		coordinator: coordinator,
		notifier:    notifier,
		cfg:         cfg,
		log:         log.Named("messages"),
	}
}

// Submit appends a participant message and then evaluates the trigger.
// repository.ErrEmptyContent is returned for blank content and callers
// should ignore the submission.
func (s *MessageService) Submit(ctx context.Context, author, content string) (*SubmitResult, error) {
	author = SanitizeAuthor(author, s.cfg.MaxAuthorLength)
	if author == "" {
		return nil, ErrInvalidAuthor
	}
	if IsFacilitator(author, s.cfg.FacilitatorID) {
		return nil, repository.ErrReservedAuthor
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(strings.TrimSpace(content)) > s.cfg.MaxContentLength {
		return nil, ErrContentTooLong
	}

	message, err := s.repo.Append(ctx, author, content)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, models.ChangeEvent{LastID: message.ID})

	result := &SubmitResult{Message: message}
	res, err := s.coordinator.Evaluate(ctx)
	if err != nil {
		// the message is stored; only the trigger check failed
		s.log.LogError(err, "Facilitator evaluation failed after append", "message_id", message.ID)
		res = Result{Outcome: OutcomeFailed, Warning: "facilitator check failed: " + err.Error()}
	}
	result.Facilitator = res
	if res.Message != nil {
		s.notify(ctx, models.ChangeEvent{LastID: res.Message.ID})
	}

	return result, nil
}

// List returns the whole log, or only messages after afterID when it is set
func (s *MessageService) List(ctx context.Context, afterID uint64) ([]models.Message, error) {
	if afterID > 0 {
		return s.repo.ReadAfter(ctx, afterID)
	}
	return s.repo.ReadAll(ctx)
}

// Clear empties the log and its crossing history
func (s *MessageService) Clear(ctx context.Context) error {
	if err := s.repo.ClearAll(ctx); err != nil {
		return err
	}
	s.log.Info("Conversation cleared")
	s.notify(ctx, models.ChangeEvent{Cleared: true})
	return nil
}

// Participants reports the active members and where the next crossing is
func (s *MessageService) Participants(ctx context.Context) (*Participants, error) {
	messages, err := s.repo.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := Count(messages, s.cfg.FacilitatorID)
	threshold := s.coordinator.Threshold()

	return &Participants{
		Count:         len(snap.ActiveMembers),
		Members:       snap.ActiveMembers,
		HumanMessages: snap.HumanCount,
		Threshold:     threshold,
		NextCrossing:  (snap.HumanCount/threshold + 1) * threshold,
		Facilitator:   s.coordinator.Enabled(),
		Topic:         s.cfg.Topic,
	}, nil
}

// Evaluate runs a redundant trigger evaluation
func (s *MessageService) Evaluate(ctx context.Context) (Result, error) {
	res, err := s.coordinator.Evaluate(ctx)
	if err != nil {
		return res, err
	}
	if res.Message != nil {
		s.notify(ctx, models.ChangeEvent{LastID: res.Message.ID})
	}
	return res, nil
}

// Export serializes the current log
func (s *MessageService) Export(ctx context.Context, format export.Format, at time.Time) ([]byte, error) {
	messages, err := s.repo.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := Count(messages, s.cfg.FacilitatorID)

	var buf bytes.Buffer
	err = export.Render(&buf, format, export.Document{
		Title:      export.DefaultTitle,
		Topic:      s.cfg.Topic,
		ExportedAt: at,
		Members:    snap.ActiveMembers,
		Messages:   messages,
	})
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *MessageService) notify(ctx context.Context, event models.ChangeEvent) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event)
	}
}
