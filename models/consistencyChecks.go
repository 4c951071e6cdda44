package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/utils"
	"github.com/sirupsen/logrus"
)

// RunConsistencyChecks writes drift rows to consistency_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
// The sweep only reports; it never mutates test or non-conformity records.
func RunConsistencyChecks(ctx context.Context) (correlationId string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	// 1) Completed non-conforming test must carry an auto-generated NC.
	type testRow struct {
		ID         int
		TestNumber string
	}
	var missingEscalations []testRow
	if err := db.WithContext(ctx).Raw(`
		SELECT t.id, t.test_number
		FROM tests t
		WHERE t.current_status = 'Completed'
		  AND t.result = 'NonConforme'
		  AND NOT EXISTS (
			SELECT 1 FROM non_conformities nc
			WHERE nc.test_id = t.id AND nc.is_auto_generated = true
		  )
	`).Scan(&missingEscalations).Error; err != nil {
		return cid, err
	}
	for _, t := range missingEscalations {
		if err := db.WithContext(ctx).Create(&ConsistencyReport{
			CheckType:     "TEST_ESCALATION",
			EntityType:    "Test",
			EntityId:      t.ID,
			Details:       fmt.Sprintf("non-conforming test %s has no auto-generated non-conformity", t.TestNumber),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error; err != nil {
			return cid, fmt.Errorf("persist TEST_ESCALATION report: %w", err)
		}
	}

	// 2) Stored conformity rate vs recomputed from measurements.
	var completedTests []Test
	if err := db.WithContext(ctx).Where("current_status = ?", TestStatusCompleted).
		Find(&completedTests).Error; err != nil {
		return cid, err
	}
	rateDrifts := 0
	for _, t := range completedTests {
		var measurements []Measurement
		if err := db.WithContext(ctx).Where("test_id = ?", t.ID).Find(&measurements).Error; err != nil {
			return cid, err
		}
		recomputed := ComputeConformityRate(measurements)
		if !recomputed.Equal(t.ConformityRate) {
			rateDrifts++
			if err := db.WithContext(ctx).Create(&ConsistencyReport{
				CheckType:     "CONFORMITY_RATE",
				EntityType:    "Test",
				EntityId:      t.ID,
				Details:       fmt.Sprintf("stored rate %s != recomputed %s for test %s", t.ConformityRate, recomputed, t.TestNumber),
				CorrelationId: cid,
				CreatedAt:     now,
			}).Error; err != nil {
				return cid, fmt.Errorf("persist CONFORMITY_RATE report: %w", err)
			}
		}
	}

	// 3) Done action must be backed by an effective verification.
	type actionRow struct{ ID int }
	var unverifiedDone []actionRow
	if err := db.WithContext(ctx).Raw(`
		SELECT ca.id
		FROM corrective_actions ca
		WHERE ca.current_status = 'Done'
		  AND NOT EXISTS (
			SELECT 1 FROM effectiveness_verifications ev
			WHERE ev.corrective_action_id = ca.id AND ev.is_effective = true
		  )
	`).Scan(&unverifiedDone).Error; err != nil {
		return cid, err
	}
	for _, a := range unverifiedDone {
		if err := db.WithContext(ctx).Create(&ConsistencyReport{
			CheckType:     "ACTION_VERIFICATION",
			EntityType:    "CorrectiveAction",
			EntityId:      a.ID,
			Details:       "action marked Done without an effective verification",
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error; err != nil {
			return cid, fmt.Errorf("persist ACTION_VERIFICATION report: %w", err)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":               "ConsistencyChecks",
			"correlation_id":      cid,
			"tests_checked":       len(completedTests),
			"missing_escalations": len(missingEscalations),
			"rate_drifts":         rateDrifts,
			"unverified_done":     len(unverifiedDone),
		}).Info("consistency checks completed")
	}
	return cid, nil
}
