package repository

import (
	"context"
	"fmt"
	"strings"

	"discussion-facilitator/backend/conversation/models"

	"gorm.io/gorm"
)

// MessageRepository is the durable discussion log plus the crossing claim
// primitive that lives next to it.
type MessageRepository interface {
	Append(ctx context.Context, author, content string) (*models.Message, error)
	ReadAll(ctx context.Context) ([]models.Message, error)
	ReadAfter(ctx context.Context, afterID uint64) ([]models.Message, error)
	ClearAll(ctx context.Context) error

	ClaimCrossing(ctx context.Context, claim models.Claim) (bool, error)
	ReleaseCrossing(ctx context.Context, humanCount int, owner string) error
	ResolveCrossing(ctx context.Context, humanCount int, owner, content string) (*models.Message, error)
	SkipCrossing(ctx context.Context, humanCount int, owner string) error
	GetCrossing(ctx context.Context, humanCount int) (*models.Crossing, error)

	Ping(ctx context.Context) error
}

// advisoryLockKey serializes log writers on postgres so ids become visible
// in the order they were assigned
const advisoryLockKey int64 = 0x646973637573

type GormMessageRepository struct {
	db            *gorm.DB
	facilitatorID string
}

func NewGormMessageRepository(db *gorm.DB, facilitatorID string) *GormMessageRepository {
	return &GormMessageRepository{db: db, facilitatorID: facilitatorID}
}

func (r *GormMessageRepository) isFacilitator(author string) bool {
	return strings.EqualFold(author, r.facilitatorID)
}

// lock takes the log-wide write lock for the current transaction. SQLite
// transactions already begin IMMEDIATE, so only postgres needs it.
func (r *GormMessageRepository) lock(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockKey).Error
}

// Append adds a participant message. The facilitator id is rejected here;
// facilitator messages are written by ResolveCrossing only.
func (r *GormMessageRepository) Append(ctx context.Context, author, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if r.isFacilitator(strings.TrimSpace(author)) {
		return nil, ErrReservedAuthor
	}

	message := &models.Message{Author: author, Content: content}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx); err != nil {
			return err
		}
		return tx.Create(message).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

func (r *GormMessageRepository) ReadAll(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return messages, nil
}

func (r *GormMessageRepository) ReadAfter(ctx context.Context, afterID uint64) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("read messages after %d: %w", afterID, err)
	}
	return messages, nil
}

// ClearAll empties the log and forgets every crossing in one transaction
func (r *GormMessageRepository) ClearAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx); err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Crossing{}).Error
	})
	if err != nil {
		return fmt.Errorf("clear log: %w", err)
	}
	return nil
}

func (r *GormMessageRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// liveSnapshot recomputes the human count and last author from the tables
func (r *GormMessageRepository) liveSnapshot(tx *gorm.DB) (models.Snapshot, error) {
	var humans int64
	err := tx.Model(&models.Message{}).
		Where("LOWER(author) <> ?", strings.ToLower(r.facilitatorID)).
		Count(&humans).Error
	if err != nil {
		return models.Snapshot{}, err
	}

	var last []models.Message
	if err := tx.Order("id DESC").Limit(1).Find(&last).Error; err != nil {
		return models.Snapshot{}, err
	}

	snap := models.Snapshot{HumanCount: int(humans)}
	if len(last) == 1 {
		snap.HasLast = true
		snap.LastAuthor = last[0].Author
	}
	return snap, nil
}
