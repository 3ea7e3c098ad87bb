package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"discussion-facilitator/backend/conversation/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimCrossing reserves the facilitator turn for claim.HumanCount. It
// returns true for exactly one caller per crossing, or again after the
// crossing was released or its lease expired. The live log is re-read inside
// the transaction, so a stale caller cannot claim a superseded crossing.
func (r *GormMessageRepository) ClaimCrossing(ctx context.Context, claim models.Claim) (bool, error) {
	if claim.Threshold <= 0 || claim.HumanCount <= 0 || claim.HumanCount%claim.Threshold != 0 {
		return false, fmt.Errorf("claim crossing: %d is not a multiple of threshold %d", claim.HumanCount, claim.Threshold)
	}
	if claim.Now.IsZero() {
		claim.Now = time.Now()
	}
	nowMs := claim.Now.UnixMilli()
	leaseMs := nowMs + claim.Lease.Milliseconds()

	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx); err != nil {
			return err
		}

		snap, err := r.liveSnapshot(tx)
		if err != nil {
			return err
		}
		if snap.HasLast && r.isFacilitator(snap.LastAuthor) {
			return nil
		}
		if snap.HumanCount < claim.HumanCount || snap.HumanCount >= claim.HumanCount+claim.Threshold {
			return nil
		}

		if snap.HumanCount == claim.HumanCount {
			row := models.Crossing{
				HumanCount:     claim.HumanCount,
				Status:         models.CrossingClaimed,
				Owner:          claim.Owner,
				Attempts:       1,
				LeaseExpiresMs: leaseMs,
				CreatedAt:      claim.Now,
				UpdatedAt:      claim.Now,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				won = true
				return nil
			}
		}

		res := tx.Model(&models.Crossing{}).
			Where("human_count = ? AND (status = ? OR (status = ? AND lease_expires_ms < ?))",
				claim.HumanCount, models.CrossingReleased, models.CrossingClaimed, nowMs).
			Updates(map[string]interface{}{
				"status":           models.CrossingClaimed,
				"owner":            claim.Owner,
				"attempts":         gorm.Expr("attempts + 1"),
				"lease_expires_ms": leaseMs,
				"updated_at":       claim.Now,
			})
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim crossing %d: %w", claim.HumanCount, err)
	}
	return won, nil
}

// ReleaseCrossing hands an unfinished crossing back so a later evaluation
// can retry it
func (r *GormMessageRepository) ReleaseCrossing(ctx context.Context, humanCount int, owner string) error {
	return r.finish(ctx, humanCount, owner, models.CrossingReleased)
}

// SkipCrossing closes a crossing for which the facilitator chose not to speak
func (r *GormMessageRepository) SkipCrossing(ctx context.Context, humanCount int, owner string) error {
	return r.finish(ctx, humanCount, owner, models.CrossingSkipped)
}

func (r *GormMessageRepository) finish(ctx context.Context, humanCount int, owner string, status models.CrossingStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Crossing{}).
		Where("human_count = ? AND owner = ? AND status = ?", humanCount, owner, models.CrossingClaimed).
		Updates(map[string]interface{}{
			"status":           status,
			"lease_expires_ms": 0,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark crossing %d %s: %w", humanCount, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// ResolveCrossing appends the facilitator message for a crossing the caller
// still owns. Nothing is written when the claim was lost to a clear or to a
// takeover after lease expiry.
func (r *GormMessageRepository) ResolveCrossing(ctx context.Context, humanCount int, owner, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var message *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lock(tx); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.Crossing{}).
			Where("human_count = ? AND owner = ? AND status = ?", humanCount, owner, models.CrossingClaimed).
			Updates(map[string]interface{}{
				"status":           models.CrossingResolved,
				"lease_expires_ms": 0,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimLost
		}

		message = &models.Message{Author: r.facilitatorID, Content: content}
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		return tx.Model(&models.Crossing{}).
			Where("human_count = ?", humanCount).
			Update("message_id", message.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrClaimLost) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve crossing %d: %w", humanCount, err)
	}
	return message, nil
}

// GetCrossing returns the stored state of a crossing, or nil if none exists
func (r *GormMessageRepository) GetCrossing(ctx context.Context, humanCount int) (*models.Crossing, error) {
	var rows []models.Crossing
	err := r.db.WithContext(ctx).
		Where("human_count = ?", humanCount).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get crossing %d: %w", humanCount, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
