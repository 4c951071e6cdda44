package models

import (
	"context"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

// EffectivenessVerification closes the corrective-action loop: a follow-up
// check recording whether the action actually resolved the root cause.
// Creating one flips the parent action's status, and the two writes are a
// single transaction -- an action whose status disagrees with its latest
// verification would corrupt the quality record.
type EffectivenessVerification struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	CorrectiveActionId int       `gorm:"index;not null" json:"corrective_action_id" binding:"required"`
	VerifierId         int       `gorm:"index" json:"verifier_id"`
	VerifiedAt         time.Time `gorm:"not null" json:"verified_at"`
	Method             string    `gorm:"size:255;not null" json:"method" binding:"required"`
	IsEffective        *bool     `gorm:"not null;default:false" json:"is_effective"`
	Result             string    `gorm:"type:text" json:"result"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewEffectivenessVerification struct {
	CorrectiveActionId int        `json:"corrective_action_id" binding:"required" validate:"required"`
	Method             string     `json:"method" binding:"required" validate:"required"`
	IsEffective        *bool      `json:"is_effective" binding:"required" validate:"required"`
	Result             string     `json:"result"`
	VerifiedAt         *time.Time `json:"verified_at"`
}

// CreateEffectivenessVerification records the verification and updates the
// action status in one transaction: Done when effective (terminal),
// ToRevisit when not, signalling that root-cause analysis must be redone
// or the action redesigned. The parent NC is never auto-closed here.
func CreateEffectivenessVerification(ctx context.Context, input *NewEffectivenessVerification) (*EffectivenessVerification, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	action, err := utils.FetchModel[CorrectiveAction](ctx, input.CorrectiveActionId)
	if err == utils.ErrorRecordNotFound {
		return nil, fmt.Errorf("corrective action %d: %w", input.CorrectiveActionId, utils.ErrorRecordNotFound)
	} else if err != nil {
		return nil, err
	}
	if action.CurrentStatus == ActionStatusDone {
		return nil, fmt.Errorf("corrective action %d is already Done: %w", action.ID, utils.ErrorInvalidState)
	}

	verifiedAt := time.Now()
	if input.VerifiedAt != nil {
		verifiedAt = *input.VerifiedAt
	}
	verifierId, _ := utils.GetUserIdFromContext(ctx)

	verification := EffectivenessVerification{
		CorrectiveActionId: input.CorrectiveActionId,
		VerifierId:         verifierId,
		VerifiedAt:         verifiedAt,
		Method:             input.Method,
		IsEffective:        input.IsEffective,
		Result:             input.Result,
	}

	newStatus := ActionStatusToRevisit
	if input.IsEffective != nil && *input.IsEffective {
		newStatus = ActionStatusDone
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	if err := tx.Create(&verification).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(action).Update("CurrentStatus", newStatus).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	action.CurrentStatus = newStatus

	if err := createHistory(tx, "Verify", action.ID, "corrective_actions", nil, &verification,
		fmt.Sprintf("Corrective action %d verified: %s.", action.ID, newStatus)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &verification, nil
}

func ListActionVerifications(ctx context.Context, actionId int) ([]*EffectivenessVerification, error) {
	db := config.GetDB()
	var verifications []*EffectivenessVerification
	if err := db.WithContext(ctx).Where("corrective_action_id = ?", actionId).
		Order("verified_at, id").Find(&verifications).Error; err != nil {
		return nil, err
	}
	return verifications, nil
}
