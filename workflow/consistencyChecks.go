package workflow

import (
	"context"
	"time"

	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
	"github.com/sirupsen/logrus"
)

// RunConsistencyChecks sweeps the QHSE records for drift and writes
// findings to consistency_reports. Intended to run nightly or via an
// admin trigger. A redis singleton lock keeps concurrent deployments
// from running the sweep twice.
func RunConsistencyChecks(ctx context.Context, logger *logrus.Logger) error {
	release, err := utils.SingletonJobLock(ctx, "consistency-checks", 10*time.Minute,
		"consistencyChecks.go", "RunConsistencyChecks")
	if err != nil {
		return err
	}
	defer release()

	cid, err := models.RunConsistencyChecks(ctx)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "ConsistencyChecks",
			"correlation_id": cid,
		}).Info("consistency sweep completed")
	}
	return nil
}
