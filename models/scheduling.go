package models

import (
	"fmt"
	"time"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"gorm.io/gorm"
)

// Scheduling guard: detects equipment double-booking. The check and the
// test row write must happen inside the same transaction, serialized by
// the advisory lock below, so two concurrent requests cannot both pass
// the check before either commits.

// acquireScheduleLock serializes scheduling per equipment per day across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped and survives Commit/Rollback, so
// callers must acquire and release on a pinned connection (gorm
// Connection) and run the scheduling transaction on that same
// connection. Releasing via the finished transaction would hit
// sql.ErrTxDone and leak the lock to the pool. On non-MySQL stores
// (sqlite test runs) writes are already serialized, so it is a no-op.
func acquireScheduleLock(conn *gorm.DB, equipmentId int, date time.Time) error {
	if conn.Dialector.Name() != "mysql" {
		return nil
	}
	lockName := fmt.Sprintf("schedule:%d:%s", equipmentId, date.Format("2006-01-02"))
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire schedule lock for equipment_id=%d", equipmentId)
	}
	return nil
}

func releaseScheduleLock(conn *gorm.DB, equipmentId int, date time.Time) {
	if conn.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("schedule:%d:%s", equipmentId, date.Format("2006-01-02"))
	var ok int
	if err := conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&ok).Error; err != nil {
		config.LogError(config.GetLogger(), "scheduling.go", "releaseScheduleLock", lockName, nil, err)
	}
}

// windowsOverlap applies the inclusive overlap rule: two windows conflict
// when either window's start or end falls within the other's [start, end]
// interval, bounds included. Both windows are normalized already (end
// defaults to start for point bookings).
func windowsOverlap(start1, end1, start2, end2 time.Time) bool {
	within := func(x, a, b time.Time) bool {
		return !x.Before(a) && !x.After(b)
	}
	return within(start1, start2, end2) ||
		within(end1, start2, end2) ||
		within(start2, start1, end1) ||
		within(end2, start1, end1)
}

// hasSchedulingConflict reports whether a non-cancelled test with an
// overlapping window already exists for the equipment on the date.
// exceptTestId excludes the test being updated (0 for creates). Runs on
// the caller's transaction so uncommitted rows of this connection are
// visible.
func hasSchedulingConflict(tx *gorm.DB, equipmentId int, date time.Time, plannedStart *time.Time, plannedEnd *time.Time, exceptTestId int) (bool, error) {
	if plannedStart == nil {
		return false, nil
	}
	start := *plannedStart
	end := start
	if plannedEnd != nil {
		end = *plannedEnd
	}

	var others []Test
	dbCtx := tx.Model(&Test{}).
		Where("equipment_id = ? AND planned_date = ? AND current_status <> ?",
			equipmentId, utils.ConvertToDate(date), TestStatusCancelled)
	if exceptTestId > 0 {
		dbCtx = dbCtx.Where("id <> ?", exceptTestId)
	}
	if err := dbCtx.Select("id", "planned_start_time", "planned_end_time").Find(&others).Error; err != nil {
		return false, err
	}

	for _, other := range others {
		if other.PlannedStartTime == nil {
			continue
		}
		otherStart := *other.PlannedStartTime
		otherEnd := otherStart
		if other.PlannedEndTime != nil {
			otherEnd = *other.PlannedEndTime
		}
		if windowsOverlap(start, end, otherStart, otherEnd) {
			return true, nil
		}
	}
	return false, nil
}
