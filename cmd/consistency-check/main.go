// consistency-check runs the drift sweep once and exits. Intended for a
// nightly scheduler (Cloud Scheduler, cron). Findings land in the
// consistency_reports table; the command only reports, it never repairs.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/consistency-check
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/metraware/qhse_backend/config"
	"github.com/metraware/qhse_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	// Redis is optional here; without it the singleton lock is a no-op,
	// which is fine for a cron-driven single run.
	config.ConnectRedisWithRetry()

	logger := config.GetLogger()
	if err := workflow.RunConsistencyChecks(ctx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "consistency checks failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("consistency checks completed")
}
