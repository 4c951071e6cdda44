package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

// ActionPlan groups the ordered corrective actions of one NC. A plan is
// created empty by the escalation skeleton, or explicitly for manual NCs.
type ActionPlan struct {
	ID              int                `gorm:"primary_key" json:"id"`
	NonConformityId int                `gorm:"uniqueIndex;not null" json:"non_conformity_id" binding:"required"`
	Title           string             `gorm:"size:255" json:"title"`
	Actions         []CorrectiveAction `gorm:"foreignKey:ActionPlanId" json:"actions"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type CorrectiveAction struct {
	ID            int          `gorm:"primary_key" json:"id"`
	ActionPlanId  int          `gorm:"index;not null" json:"action_plan_id" binding:"required"`
	Position      int          `gorm:"not null;default:0" json:"position"`
	Description   string       `gorm:"type:text;not null" json:"description" binding:"required"`
	DueDate       *time.Time   `json:"due_date"`
	OwnerId       int          `gorm:"index" json:"owner_id"`
	CurrentStatus ActionStatus `gorm:"size:20;not null" json:"current_status"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewActionPlan struct {
	NonConformityId int    `json:"non_conformity_id" binding:"required" validate:"required"`
	Title           string `json:"title"`
}

type NewCorrectiveAction struct {
	ActionPlanId int        `json:"action_plan_id" binding:"required" validate:"required"`
	Description  string     `json:"description" binding:"required" validate:"required"`
	DueDate      *time.Time `json:"due_date"`
	OwnerId      int        `json:"owner_id"`
}

func CreateActionPlan(ctx context.Context, input *NewActionPlan) (*ActionPlan, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[NonConformity](ctx, input.NonConformityId); err != nil {
		return nil, errors.New("non-conformity not found")
	}
	// one plan per NC
	if err := utils.ValidateUnique[ActionPlan](ctx, "non_conformity_id", input.NonConformityId, 0); err != nil {
		return nil, errors.New("non-conformity already has an action plan")
	}

	plan := ActionPlan{
		NonConformityId: input.NonConformityId,
		Title:           input.Title,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// AddCorrectiveAction appends an action to a plan, after the existing
// ones. New actions always enter as Planned.
func AddCorrectiveAction(ctx context.Context, input *NewCorrectiveAction) (*CorrectiveAction, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[ActionPlan](ctx, input.ActionPlanId); err != nil {
		return nil, errors.New("action plan not found")
	}
	if input.OwnerId > 0 {
		if err := utils.ValidateResourceId[Personnel](ctx, input.OwnerId); err != nil {
			return nil, errors.New("action owner not found")
		}
	}

	count, err := utils.ResourceCountWhere[CorrectiveAction](ctx, "action_plan_id = ?", input.ActionPlanId)
	if err != nil {
		return nil, err
	}

	action := CorrectiveAction{
		ActionPlanId:  input.ActionPlanId,
		Position:      int(count) + 1,
		Description:   input.Description,
		DueDate:       input.DueDate,
		OwnerId:       input.OwnerId,
		CurrentStatus: ActionStatusPlanned,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&action).Error; err != nil {
		return nil, err
	}
	return &action, nil
}

// StartCorrectiveAction moves a Planned or ToRevisit action into
// execution. Done and ToRevisit are only ever reached through an
// effectiveness verification, never by direct edit.
func StartCorrectiveAction(ctx context.Context, id int) (*CorrectiveAction, error) {
	action, err := utils.FetchModel[CorrectiveAction](ctx, id)
	if err != nil {
		return nil, err
	}
	if action.CurrentStatus != ActionStatusPlanned && action.CurrentStatus != ActionStatusToRevisit {
		return nil, fmt.Errorf("cannot start a corrective action in status %s: %w", action.CurrentStatus, utils.ErrorInvalidState)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(action).Update("CurrentStatus", ActionStatusInProgress).Error; err != nil {
		return nil, err
	}
	action.CurrentStatus = ActionStatusInProgress
	return action, nil
}

// UpdateCorrectiveAction edits the descriptive fields. The status is not
// part of the payload: Done/ToRevisit come from verifications only.
func UpdateCorrectiveAction(ctx context.Context, id int, input *NewCorrectiveAction) (*CorrectiveAction, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	action, err := utils.FetchModel[CorrectiveAction](ctx, id)
	if err != nil {
		return nil, err
	}
	if action.CurrentStatus == ActionStatusDone {
		return nil, fmt.Errorf("a Done corrective action is terminal: %w", utils.ErrorInvalidState)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(action).
		Updates(map[string]interface{}{
			"Description": input.Description,
			"DueDate":     input.DueDate,
			"OwnerId":     input.OwnerId,
		}).Error; err != nil {
		return nil, err
	}
	return action, nil
}

func GetActionPlan(ctx context.Context, id int) (*ActionPlan, error) {
	return utils.FetchModel[ActionPlan](ctx, id, "Actions")
}
