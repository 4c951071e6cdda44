package models

import (
	"context"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

type Personnel struct {
	ID        int       `gorm:"primary_key" json:"id"`
	FullName  string    `gorm:"size:100;not null" json:"full_name" binding:"required"`
	Role      string    `gorm:"size:50" json:"role"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPersonnel struct {
	FullName     string `json:"full_name" binding:"required" validate:"required"`
	Role         string `json:"role"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	PhoneCountry string `json:"phone_country"`
	IsActive     *bool  `json:"is_active"`
}

func (input *NewPersonnel) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Phone != "" {
		country := input.PhoneCountry
		if country == "" {
			country = "FR"
		}
		if err := utils.ValidatePhoneNumber(input.Phone, country); err != nil {
			return err
		}
	}
	return nil
}

func CreatePersonnel(ctx context.Context, input *NewPersonnel) (*Personnel, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	person := Personnel{
		FullName: input.FullName,
		Role:     input.Role,
		Email:    input.Email,
		Phone:    input.Phone,
		IsActive: input.IsActive,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func UpdatePersonnel(ctx context.Context, id int, input *NewPersonnel) (*Personnel, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	person, err := utils.FetchModel[Personnel](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(person).
		Updates(map[string]interface{}{
			"FullName": input.FullName,
			"Role":     input.Role,
			"Email":    input.Email,
			"Phone":    input.Phone,
			"IsActive": input.IsActive,
		}).Error; err != nil {
		return nil, err
	}
	return person, nil
}

// DeletePersonnel refuses to delete a person who is still the responsible
// of tests, the detector of non-conformities or the owner of corrective
// actions. Audit trails must keep pointing at a real person.
func DeletePersonnel(ctx context.Context, id int) (*Personnel, error) {
	person, err := utils.FetchModel[Personnel](ctx, id)
	if err != nil {
		return nil, err
	}

	guards := []struct {
		count func() (int64, error)
		label string
	}{
		{func() (int64, error) { return utils.ResourceCountWhere[Test](ctx, "responsible_id = ?", id) }, "test(s)"},
		{func() (int64, error) { return utils.ResourceCountWhere[NonConformity](ctx, "detector_id = ?", id) }, "non-conformity record(s)"},
		{func() (int64, error) { return utils.ResourceCountWhere[CorrectiveAction](ctx, "owner_id = ?", id) }, "corrective action(s)"},
	}
	for _, g := range guards {
		count, err := g.count()
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("personnel owns %d %s: %w", count, g.label, utils.ErrorRecordReferenced)
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(person).Error; err != nil {
		return nil, err
	}
	return person, nil
}

func GetPersonnel(ctx context.Context, id int) (*Personnel, error) {
	return utils.FetchModel[Personnel](ctx, id)
}

func ListPersonnel(ctx context.Context) ([]*Personnel, error) {
	return utils.FetchAllModels[Personnel](ctx)
}
