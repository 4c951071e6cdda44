package models

import (
	"context"
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
)

// Lifecycle transitions: Planned -> InProgress -> Completed, with
// Suspended and Cancelled side exits from Planned or InProgress.
// Completed and Cancelled are terminal. Every transition runs in its own
// transaction and writes an audit row.

// StartTest moves a Planned test to InProgress and stamps the actual
// start. The temporal safety lock rejects starting more than one minute
// before the planned start time: activating equipment ahead of its
// scheduled slot is an operator error, not a race to win.
func StartTest(ctx context.Context, id int) (*Test, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	test, err := fetchTestForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if test.CurrentStatus != TestStatusPlanned {
		tx.Rollback()
		return nil, fmt.Errorf("cannot start a test in status %s: %w", test.CurrentStatus, utils.ErrorInvalidState)
	}

	now := time.Now()
	if test.PlannedStartTime != nil {
		earliest := test.PlannedStartTime.Add(-time.Minute)
		if now.Before(earliest) {
			wait := test.PlannedStartTime.Sub(now).Round(time.Second)
			tx.Rollback()
			return nil, fmt.Errorf("test %s is scheduled for %s (%s remaining): %w",
				test.TestNumber, test.PlannedStartTime.Format("15:04"), wait, utils.ErrorTooEarlyStart)
		}
	}

	before := *test
	if err := tx.Model(test).Updates(map[string]interface{}{
		"CurrentStatus":   TestStatusInProgress,
		"ActualStartTime": now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	test.CurrentStatus = TestStatusInProgress
	test.ActualStartTime = &now

	if err := createHistory(tx, "Start", test.ID, "tests", &before, test,
		fmt.Sprintf("Test %s started.", test.TestNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return test, nil
}

// FinishTest moves an InProgress test to Completed: stamps the actual
// end, computes the hour-granular duration, aggregates the conformity
// rate over all measurements and classifies the result. A NonConforme
// classification escalates into a tracked non-conformity inside the same
// transaction -- a persisted "Completed, NonConforme" test without an NC
// must be structurally impossible.
func FinishTest(ctx context.Context, id int) (*Test, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	test, err := fetchTestForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if test.CurrentStatus != TestStatusInProgress {
		tx.Rollback()
		return nil, fmt.Errorf("cannot finish a test in status %s: %w", test.CurrentStatus, utils.ErrorInvalidState)
	}

	now := time.Now()
	var durationHours int
	if test.ActualStartTime != nil {
		durationHours = int(now.Sub(*test.ActualStartTime).Hours())
	}

	var measurements []Measurement
	if err := tx.Where("test_id = ?", id).Find(&measurements).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	rate := ComputeConformityRate(measurements)
	result := ClassifyConformityRate(rate)

	before := *test
	if err := tx.Model(test).Updates(map[string]interface{}{
		"CurrentStatus":      TestStatusCompleted,
		"ActualEndTime":      now,
		"ActualDurationHour": durationHours,
		"ConformityRate":     rate,
		"Result":             result,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	test.CurrentStatus = TestStatusCompleted
	test.ActualEndTime = &now
	test.ActualDurationHour = durationHours
	test.ConformityRate = rate
	test.Result = &result

	if result == TestResultNonConforme {
		if _, err := escalateTestNonConformity(tx, test, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := createHistory(tx, "Finish", test.ID, "tests", &before, test,
		fmt.Sprintf("Test %s completed: %s (%s%%).", test.TestNumber, result, rate)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return test, nil
}

// SuspendTest parks a Planned or InProgress test.
func SuspendTest(ctx context.Context, id int) (*Test, error) {
	return transitionTest(ctx, id, TestStatusSuspended, "Suspend")
}

// CancelTest terminates a Planned or InProgress test. Cancelled tests no
// longer count in scheduling conflict checks.
func CancelTest(ctx context.Context, id int) (*Test, error) {
	return transitionTest(ctx, id, TestStatusCancelled, "Cancel")
}

// ResumeTest returns a Suspended test to Planned so that it can be
// started again through the regular path.
func ResumeTest(ctx context.Context, id int) (*Test, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	test, err := fetchTestForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if test.CurrentStatus != TestStatusSuspended {
		tx.Rollback()
		return nil, fmt.Errorf("cannot resume a test in status %s: %w", test.CurrentStatus, utils.ErrorInvalidState)
	}

	before := *test
	if err := tx.Model(test).Update("CurrentStatus", TestStatusPlanned).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	test.CurrentStatus = TestStatusPlanned

	if err := createHistory(tx, "Resume", test.ID, "tests", &before, test,
		fmt.Sprintf("Test %s resumed.", test.TestNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return test, nil
}

// LockTest flags the test as immutable once an official report has been
// validated against it. Locking is one-way from this service's point of
// view; unlocking is a manual data operation.
func LockTest(ctx context.Context, id int) (*Test, error) {
	test, err := utils.FetchModel[Test](ctx, id)
	if err != nil {
		return nil, err
	}

	locked := true
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(test).Update("IsLocked", locked).Error; err != nil {
		return nil, err
	}
	test.IsLocked = &locked
	return test, nil
}

func transitionTest(ctx context.Context, id int, target TestStatus, actionType string) (*Test, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	test, err := fetchTestForUpdate(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if test.CurrentStatus.IsTerminal() || test.CurrentStatus == TestStatusSuspended {
		tx.Rollback()
		return nil, fmt.Errorf("cannot move a test from %s to %s: %w", test.CurrentStatus, target, utils.ErrorInvalidState)
	}

	before := *test
	if err := tx.Model(test).Update("CurrentStatus", target).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	test.CurrentStatus = target

	if err := createHistory(tx, actionType, test.ID, "tests", &before, test,
		fmt.Sprintf("Test %s moved to %s.", test.TestNumber, target)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return test, nil
}
