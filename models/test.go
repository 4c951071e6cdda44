package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Test struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	TestNumber         string          `gorm:"size:20;uniqueIndex;not null" json:"test_number"`
	Designation        string          `gorm:"size:255" json:"designation"`
	EquipmentId        int             `gorm:"index;not null" json:"equipment_id" binding:"required"`
	Equipment          *Equipment      `json:"equipment,omitempty"`
	PlannedDate        time.Time       `gorm:"index;not null" json:"planned_date" binding:"required"`
	PlannedStartTime   *time.Time      `json:"planned_start_time"`
	PlannedEndTime     *time.Time      `json:"planned_end_time"`
	ActualStartTime    *time.Time      `json:"actual_start_time"`
	ActualEndTime      *time.Time      `json:"actual_end_time"`
	ActualDurationHour int             `gorm:"default:0" json:"actual_duration_hour"`
	CriticalityLevel   int             `gorm:"default:3" json:"criticality_level"`
	CurrentStatus      TestStatus      `gorm:"size:20;not null" json:"current_status"`
	Result             *TestResult     `gorm:"size:20;default:null" json:"result"`
	ConformityRate     decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"conformity_rate"`
	ResponsibleId      int             `gorm:"index" json:"responsible_id"`
	Team               []Personnel     `gorm:"many2many:test_team_members" json:"team"`
	IsLocked           *bool           `gorm:"not null;default:false" json:"is_locked"`
	Measurements       []Measurement   `gorm:"foreignKey:TestId" json:"measurements,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTest struct {
	Designation      string     `json:"designation"`
	EquipmentId      int        `json:"equipment_id" binding:"required" validate:"required"`
	PlannedDate      time.Time  `json:"planned_date" binding:"required" validate:"required"`
	PlannedStartTime *time.Time `json:"planned_start_time"`
	PlannedEndTime   *time.Time `json:"planned_end_time"`
	CriticalityLevel int        `json:"criticality_level" validate:"omitempty,min=1,max=5"`
	ResponsibleId    int        `json:"responsible_id"`
	TeamIds          []int      `json:"team_ids"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewTest) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Equipment](ctx, input.EquipmentId); err != nil {
		return errors.New("equipment not found")
	}
	if input.ResponsibleId > 0 {
		if err := utils.ValidateResourceId[Personnel](ctx, input.ResponsibleId); err != nil {
			return errors.New("responsible person not found")
		}
	}
	if len(input.TeamIds) > 0 {
		if err := utils.ValidateResourcesId[Personnel](ctx, input.TeamIds); err != nil {
			return errors.New("team member not found")
		}
	}
	if input.PlannedStartTime != nil && input.PlannedEndTime != nil &&
		input.PlannedEndTime.Before(*input.PlannedStartTime) {
		return errors.New("planned end time is before planned start time")
	}
	return nil
}

// checkIntegrityLock rejects mutations of locked or completed tests.
// A completed test's conformity figures must never be silently
// invalidated by an edit, and a locked test has an official report
// validated against it.
func (test *Test) checkIntegrityLock() error {
	if utils.DereferencePtr(test.IsLocked) {
		return fmt.Errorf("test %s has a validated report: %w", test.TestNumber, utils.ErrorRecordLocked)
	}
	if test.CurrentStatus == TestStatusCompleted {
		return fmt.Errorf("test %s is completed and immutable: %w", test.TestNumber, utils.ErrorRecordLocked)
	}
	return nil
}

func mapTeam(ctx context.Context, teamIds []int) ([]Personnel, error) {
	if len(teamIds) == 0 {
		return nil, nil
	}
	db := config.GetDB()
	var team []Personnel
	if err := db.WithContext(ctx).Where("id IN ?", utils.UniqueSlice(teamIds)).Find(&team).Error; err != nil {
		return nil, err
	}
	return team, nil
}

func CreateTest(ctx context.Context, input *NewTest) (*Test, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	team, err := mapTeam(ctx, input.TeamIds)
	if err != nil {
		return nil, err
	}

	criticality := input.CriticalityLevel
	if criticality == 0 {
		criticality = 3
	}

	test := Test{
		Designation:      input.Designation,
		EquipmentId:      input.EquipmentId,
		PlannedDate:      utils.ConvertToDate(input.PlannedDate),
		PlannedStartTime: input.PlannedStartTime,
		PlannedEndTime:   input.PlannedEndTime,
		CriticalityLevel: criticality,
		CurrentStatus:    TestStatusPlanned,
		ResponsibleId:    input.ResponsibleId,
		Team:             team,
	}

	// guard + insert must share the transaction (and the advisory lock)
	// or two concurrent creates can both pass the conflict check. GET_LOCK
	// is connection-scoped and outlives transactions, so the lock is held
	// on a pinned connection and released there after the tx finishes.
	db := config.GetDB()
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireScheduleLock(conn, test.EquipmentId, test.PlannedDate); err != nil {
			return err
		}
		defer releaseScheduleLock(conn, test.EquipmentId, test.PlannedDate)

		tx := conn.Begin()

		conflict, err := hasSchedulingConflict(tx, test.EquipmentId, test.PlannedDate, test.PlannedStartTime, test.PlannedEndTime, 0)
		if err != nil {
			tx.Rollback()
			return err
		}
		if conflict {
			tx.Rollback()
			return utils.ErrorSchedulingConflict
		}

		test.TestNumber, err = nextTestNumber(tx, time.Now())
		if err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Create(&test).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := createHistory(tx, "Create", test.ID, "tests", nil, &test,
			fmt.Sprintf("Test %s scheduled.", test.TestNumber)); err != nil {
			tx.Rollback()
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func UpdateTest(ctx context.Context, id int, input *NewTest) (*Test, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	test, err := utils.FetchModel[Test](ctx, id, "Team")
	if err != nil {
		return nil, err
	}
	if err := test.checkIntegrityLock(); err != nil {
		return nil, err
	}

	newDate := utils.ConvertToDate(input.PlannedDate)
	scheduleChanged := test.EquipmentId != input.EquipmentId ||
		!test.PlannedDate.Equal(newDate) ||
		!timePtrEqual(test.PlannedStartTime, input.PlannedStartTime) ||
		!timePtrEqual(test.PlannedEndTime, input.PlannedEndTime)

	team, err := mapTeam(ctx, input.TeamIds)
	if err != nil {
		return nil, err
	}

	// an omitted criticality keeps the stored level, same as the create
	// default keeps payloads minimal
	criticality := input.CriticalityLevel
	if criticality == 0 {
		criticality = test.CriticalityLevel
	}

	before := *test

	db := config.GetDB()
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if scheduleChanged {
			if err := acquireScheduleLock(conn, input.EquipmentId, newDate); err != nil {
				return err
			}
			defer releaseScheduleLock(conn, input.EquipmentId, newDate)
		}

		tx := conn.Begin()

		if scheduleChanged {
			conflict, err := hasSchedulingConflict(tx, input.EquipmentId, newDate, input.PlannedStartTime, input.PlannedEndTime, id)
			if err != nil {
				tx.Rollback()
				return err
			}
			if conflict {
				tx.Rollback()
				return utils.ErrorSchedulingConflict
			}
		}

		if err := tx.Model(test).
			Updates(map[string]interface{}{
				"Designation":      input.Designation,
				"EquipmentId":      input.EquipmentId,
				"PlannedDate":      newDate,
				"PlannedStartTime": input.PlannedStartTime,
				"PlannedEndTime":   input.PlannedEndTime,
				"CriticalityLevel": criticality,
				"ResponsibleId":    input.ResponsibleId,
			}).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Model(test).Association("Team").Replace(&team); err != nil {
			tx.Rollback()
			return err
		}

		if err := createHistory(tx, "Update", test.ID, "tests", &before, test,
			fmt.Sprintf("Test %s updated.", test.TestNumber)); err != nil {
			tx.Rollback()
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}
	return test, nil
}

// DeleteTest removes the test and everything hanging off it: measurements,
// auto or manual NCs referencing the test (with their root causes, plans,
// actions and verifications), team link rows and audit entries. Rejected
// while the test is locked.
func DeleteTest(ctx context.Context, id int) (*Test, error) {
	test, err := utils.FetchModel[Test](ctx, id)
	if err != nil {
		return nil, err
	}
	if utils.DereferencePtr(test.IsLocked) {
		return nil, fmt.Errorf("test %s has a validated report: %w", test.TestNumber, utils.ErrorRecordLocked)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	if err := tx.Where("test_id = ?", id).Delete(&Measurement{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var ncs []NonConformity
	if err := tx.Where("test_id = ?", id).Find(&ncs).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, nc := range ncs {
		if err := deleteNonConformityCascade(tx, nc.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(test).Association("Team").Clear(); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Where("reference_type = ? AND reference_id = ?", "tests", id).Delete(&History{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Delete(test).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return test, nil
}

func GetTest(ctx context.Context, id int) (*Test, error) {
	return utils.FetchModel[Test](ctx, id, "Equipment", "Team", "Measurements")
}

func ListTests(ctx context.Context) ([]*Test, error) {
	db := config.GetDB()
	var tests []*Test
	if err := db.WithContext(ctx).Preload(clause.Associations).
		Order("planned_date DESC, id DESC").Find(&tests).Error; err != nil {
		return nil, err
	}
	return tests, nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// fetchTestForUpdate loads a test inside a transaction with a row lock on
// MySQL (sqlite serializes writers already).
func fetchTestForUpdate(tx *gorm.DB, id int) (*Test, error) {
	var test Test
	dbCtx := tx
	if tx.Dialector.Name() == "mysql" {
		dbCtx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := dbCtx.First(&test, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &test, nil
}
