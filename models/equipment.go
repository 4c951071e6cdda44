package models

import (
	"context"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

type Equipment struct {
	ID               int       `gorm:"primary_key" json:"id"`
	Code             string    `gorm:"size:50;uniqueIndex;not null" json:"code" binding:"required"`
	Name             string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Location         string    `gorm:"size:100" json:"location"`
	CriticalityLevel int       `gorm:"default:3" json:"criticality_level"`
	IsActive         *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEquipment struct {
	Code             string `json:"code" binding:"required" validate:"required"`
	Name             string `json:"name" binding:"required" validate:"required"`
	Location         string `json:"location"`
	CriticalityLevel int    `json:"criticality_level" validate:"omitempty,min=1,max=5"`
	IsActive         *bool  `json:"is_active"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewEquipment) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Equipment](ctx, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateEquipment(ctx context.Context, input *NewEquipment) (*Equipment, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	criticality := input.CriticalityLevel
	if criticality == 0 {
		criticality = 3
	}

	equipment := Equipment{
		Code:             input.Code,
		Name:             input.Name,
		Location:         input.Location,
		CriticalityLevel: criticality,
		IsActive:         input.IsActive,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&equipment).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Equipment](); err != nil {
		return nil, err
	}
	return &equipment, nil
}

func UpdateEquipment(ctx context.Context, id int, input *NewEquipment) (*Equipment, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	equipment, err := utils.FetchModel[Equipment](ctx, id)
	if err != nil {
		return nil, err
	}

	// omitted criticality keeps the stored level
	criticality := input.CriticalityLevel
	if criticality == 0 {
		criticality = equipment.CriticalityLevel
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(equipment).
		Updates(map[string]interface{}{
			"Code":             input.Code,
			"Name":             input.Name,
			"Location":         input.Location,
			"CriticalityLevel": criticality,
			"IsActive":         input.IsActive,
		}).Error; err != nil {
		return nil, err
	}

	// invalidate caches
	if err := utils.RemoveRedisItem[Equipment](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Equipment](); err != nil {
		return nil, err
	}

	return equipment, nil
}

// DeleteEquipment refuses to delete equipment still referenced by tests or
// non-conformities. Referential integrity is enforced here in the service
// layer so callers get a domain error, not a constraint violation.
func DeleteEquipment(ctx context.Context, id int) (*Equipment, error) {
	equipment, err := utils.FetchModel[Equipment](ctx, id)
	if err != nil {
		return nil, err
	}

	testCount, err := utils.ResourceCountWhere[Test](ctx, "equipment_id = ?", id)
	if err != nil {
		return nil, err
	}
	if testCount > 0 {
		return nil, fmt.Errorf("equipment has %d test(s): %w", testCount, utils.ErrorRecordReferenced)
	}
	ncCount, err := utils.ResourceCountWhere[NonConformity](ctx, "equipment_id = ?", id)
	if err != nil {
		return nil, err
	}
	if ncCount > 0 {
		return nil, fmt.Errorf("equipment has %d non-conformity record(s): %w", ncCount, utils.ErrorRecordReferenced)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(equipment).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Equipment](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Equipment](); err != nil {
		return nil, err
	}
	return equipment, nil
}

// GetEquipment reads through the redis item cache.
func GetEquipment(ctx context.Context, id int) (*Equipment, error) {
	cached, ok, err := utils.RetrieveRedisItem[Equipment](id)
	if err != nil {
		return nil, err
	}
	if ok {
		return cached, nil
	}

	equipment, err := utils.FetchModel[Equipment](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedisItem(equipment, id); err != nil {
		return nil, err
	}
	return equipment, nil
}

// ListEquipment reads through the redis list cache; create/update/delete
// invalidate it.
func ListEquipment(ctx context.Context) ([]*Equipment, error) {
	key := utils.RedisListKey[Equipment]()
	var cached []*Equipment
	exists, err := config.GetRedisObject(key, &cached)
	if err != nil {
		return nil, err
	}
	if exists {
		return cached, nil
	}

	list, err := utils.FetchAllModels[Equipment](ctx)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(key, list, 0); err != nil {
		return nil, err
	}
	return list, nil
}
