package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"gorm.io/gorm"
)

type NonConformity struct {
	ID               int                 `gorm:"primary_key" json:"id"`
	NCNumber         string              `gorm:"size:20;uniqueIndex;not null" json:"nc_number"`
	TestId           *int                `gorm:"index" json:"test_id"`
	MeasurementId    *int                `gorm:"index" json:"measurement_id"`
	EquipmentId      int                 `gorm:"index;not null" json:"equipment_id" binding:"required"`
	CriticalityLevel int                 `gorm:"default:3" json:"criticality_level"`
	Description      string              `gorm:"type:text;not null" json:"description" binding:"required"`
	DetectionDate    time.Time           `gorm:"not null" json:"detection_date"`
	DetectorId       int                 `gorm:"index" json:"detector_id"`
	CurrentStatus    NonConformityStatus `gorm:"size:20;not null" json:"current_status"`
	ClosureDate      *time.Time          `json:"closure_date"`
	ValidatorId      int                 `json:"validator_id"`
	IsAutoGenerated  *bool               `gorm:"not null;default:false" json:"is_auto_generated"`
	RootCauses       []RootCause         `gorm:"foreignKey:NonConformityId" json:"root_causes,omitempty"`
	ActionPlan       *ActionPlan         `gorm:"foreignKey:NonConformityId" json:"action_plan,omitempty"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNonConformity struct {
	TestId           *int       `json:"test_id"`
	MeasurementId    *int       `json:"measurement_id"`
	EquipmentId      int        `json:"equipment_id" binding:"required" validate:"required"`
	CriticalityLevel int        `json:"criticality_level" validate:"omitempty,min=1,max=5"`
	Description      string     `json:"description" binding:"required" validate:"required"`
	DetectionDate    *time.Time `json:"detection_date"`
}

func (input *NewNonConformity) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Equipment](ctx, input.EquipmentId); err != nil {
		return errors.New("equipment not found")
	}
	if input.TestId != nil {
		if err := utils.ValidateResourceId[Test](ctx, *input.TestId); err != nil {
			return errors.New("test not found")
		}
	}
	if input.MeasurementId != nil {
		if err := utils.ValidateResourceId[Measurement](ctx, *input.MeasurementId); err != nil {
			return errors.New("measurement not found")
		}
	}
	return nil
}

// CreateNonConformity records a manually detected non-conformity.
func CreateNonConformity(ctx context.Context, input *NewNonConformity) (*NonConformity, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	detection := time.Now()
	if input.DetectionDate != nil {
		detection = *input.DetectionDate
	}
	detectorId, _ := utils.GetUserIdFromContext(ctx)

	criticality := input.CriticalityLevel
	if criticality == 0 {
		criticality = 3
	}

	nc := NonConformity{
		TestId:           input.TestId,
		MeasurementId:    input.MeasurementId,
		EquipmentId:      input.EquipmentId,
		CriticalityLevel: criticality,
		Description:      input.Description,
		DetectionDate:    detection,
		DetectorId:       detectorId,
		CurrentStatus:    NonConformityStatusOpen,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	var err error
	nc.NCNumber, err = nextNonConformityNumber(tx, detection)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Create(&nc).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx, "Create", nc.ID, "non_conformities", nil, &nc,
		fmt.Sprintf("Non-conformity %s opened.", nc.NCNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &nc, nil
}

// escalateTestNonConformity creates the tracked NC for a failing test,
// with an empty root cause and action plan skeleton, inside the caller's
// finishing transaction. Idempotent per test: when an auto-generated NC
// already exists for the test (a re-run of the escalation path), it is
// returned instead of a duplicate.
func escalateTestNonConformity(tx *gorm.DB, test *Test, now time.Time) (*NonConformity, error) {
	var existing NonConformity
	err := tx.Where("test_id = ? AND is_auto_generated = ?", test.ID, true).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	detectorId, _ := utils.GetUserIdFromContext(tx.Statement.Context)
	if detectorId == 0 {
		detectorId = test.ResponsibleId
	}

	auto := true
	nc := NonConformity{
		TestId:           &test.ID,
		EquipmentId:      test.EquipmentId,
		CriticalityLevel: test.CriticalityLevel,
		Description: fmt.Sprintf("Test %s classified NonConforme (conformity rate %s%%).",
			test.TestNumber, test.ConformityRate),
		DetectionDate:   now,
		DetectorId:      detectorId,
		CurrentStatus:   NonConformityStatusOpen,
		IsAutoGenerated: &auto,
		RootCauses: []RootCause{
			{Category: RootCauseCategoryUnknown, Description: "Root cause analysis pending."},
		},
		ActionPlan: &ActionPlan{},
	}

	nc.NCNumber, err = nextNonConformityNumber(tx, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(&nc).Error; err != nil {
		return nil, err
	}

	if err := createHistory(tx, "Escalate", nc.ID, "non_conformities", nil, &nc,
		fmt.Sprintf("Non-conformity %s opened automatically for test %s.", nc.NCNumber, test.TestNumber)); err != nil {
		return nil, err
	}

	return &nc, nil
}

// MarkNonConformityInProgress moves an Open NC into treatment.
func MarkNonConformityInProgress(ctx context.Context, id int) (*NonConformity, error) {
	nc, err := utils.FetchModel[NonConformity](ctx, id)
	if err != nil {
		return nil, err
	}
	if nc.CurrentStatus != NonConformityStatusOpen {
		return nil, fmt.Errorf("cannot start treating a non-conformity in status %s: %w", nc.CurrentStatus, utils.ErrorInvalidState)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(nc).Update("CurrentStatus", NonConformityStatusInProgress).Error; err != nil {
		return nil, err
	}
	nc.CurrentStatus = NonConformityStatusInProgress
	return nc, nil
}

// CloseNonConformity is the manually-gated closure: verifying an action's
// effectiveness never closes the parent NC on its own.
func CloseNonConformity(ctx context.Context, id int) (*NonConformity, error) {
	nc, err := utils.FetchModel[NonConformity](ctx, id)
	if err != nil {
		return nil, err
	}
	if nc.CurrentStatus == NonConformityStatusClosed {
		return nil, fmt.Errorf("non-conformity %s is already closed: %w", nc.NCNumber, utils.ErrorInvalidState)
	}

	now := time.Now()
	validatorId, _ := utils.GetUserIdFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	before := *nc
	if err := tx.Model(nc).Updates(map[string]interface{}{
		"CurrentStatus": NonConformityStatusClosed,
		"ClosureDate":   now,
		"ValidatorId":   validatorId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	nc.CurrentStatus = NonConformityStatusClosed
	nc.ClosureDate = &now
	nc.ValidatorId = validatorId

	if err := createHistory(tx, "Close", nc.ID, "non_conformities", &before, nc,
		fmt.Sprintf("Non-conformity %s closed.", nc.NCNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return nc, nil
}

func GetNonConformity(ctx context.Context, id int) (*NonConformity, error) {
	return utils.FetchModel[NonConformity](ctx, id, "RootCauses", "ActionPlan", "ActionPlan.Actions")
}

func ListNonConformities(ctx context.Context) ([]*NonConformity, error) {
	return utils.FetchAllModels[NonConformity](ctx, "RootCauses", "ActionPlan", "ActionPlan.Actions")
}

// deleteNonConformityCascade removes an NC with its root causes, action
// plan, actions and verifications. Runs on the caller's transaction.
func deleteNonConformityCascade(tx *gorm.DB, ncId int) error {
	var plan ActionPlan
	err := tx.Where("non_conformity_id = ?", ncId).First(&plan).Error
	if err == nil {
		var actionIds []int
		if err := tx.Model(&CorrectiveAction{}).Where("action_plan_id = ?", plan.ID).
			Select("id").Scan(&actionIds).Error; err != nil {
			return err
		}
		if len(actionIds) > 0 {
			if err := tx.Where("corrective_action_id IN ?", actionIds).
				Delete(&EffectivenessVerification{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("action_plan_id = ?", plan.ID).Delete(&CorrectiveAction{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&plan).Error; err != nil {
			return err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := tx.Where("non_conformity_id = ?", ncId).Delete(&RootCause{}).Error; err != nil {
		return err
	}
	if err := tx.Where("reference_type = ? AND reference_id = ?", "non_conformities", ncId).
		Delete(&History{}).Error; err != nil {
		return err
	}
	return tx.Delete(&NonConformity{}, ncId).Error
}
