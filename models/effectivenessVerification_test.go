package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
)

// seedActionChain builds equipment -> manual NC -> plan -> one action.
func seedActionChain(t *testing.T, ctx context.Context) (*models.NonConformity, *models.CorrectiveAction) {
	t.Helper()
	equipment := seedEquipment(t, ctx)

	nc, err := models.CreateNonConformity(ctx, &models.NewNonConformity{
		EquipmentId: equipment.ID,
		Description: "Oil leak detected during routine inspection.",
	})
	if err != nil {
		t.Fatalf("CreateNonConformity: %v", err)
	}

	plan, err := models.CreateActionPlan(ctx, &models.NewActionPlan{
		NonConformityId: nc.ID,
		Title:           "Leak remediation",
	})
	if err != nil {
		t.Fatalf("CreateActionPlan: %v", err)
	}

	action, err := models.AddCorrectiveAction(ctx, &models.NewCorrectiveAction{
		ActionPlanId: plan.ID,
		Description:  "Replace the worn gasket.",
	})
	if err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}
	return nc, action
}

func TestEffectiveVerificationCompletesAction(t *testing.T) {
	ctx := setupTestDB(t)
	nc, action := seedActionChain(t, ctx)

	if _, err := models.StartCorrectiveAction(ctx, action.ID); err != nil {
		t.Fatalf("StartCorrectiveAction: %v", err)
	}

	verification, err := models.CreateEffectivenessVerification(ctx, &models.NewEffectivenessVerification{
		CorrectiveActionId: action.ID,
		Method:             "Pressure retest after 48h",
		IsEffective:        boolPtr(true),
		Result:             "No residual leak.",
	})
	if err != nil {
		t.Fatalf("CreateEffectivenessVerification: %v", err)
	}
	if verification.VerifierId != 1 {
		t.Fatalf("verifier = %d, want the context user", verification.VerifierId)
	}

	reloaded, err := utils.FetchModel[models.CorrectiveAction](ctx, action.ID)
	if err != nil {
		t.Fatalf("reload action: %v", err)
	}
	if reloaded.CurrentStatus != models.ActionStatusDone {
		t.Fatalf("action status = %s, want Done", reloaded.CurrentStatus)
	}

	// the parent NC is never closed by a verification
	ncReloaded, err := models.GetNonConformity(ctx, nc.ID)
	if err != nil {
		t.Fatalf("reload NC: %v", err)
	}
	if ncReloaded.CurrentStatus != models.NonConformityStatusOpen {
		t.Fatalf("NC status = %s, want still Open", ncReloaded.CurrentStatus)
	}

	// Done is terminal: no second verification, no edits
	_, err = models.CreateEffectivenessVerification(ctx, &models.NewEffectivenessVerification{
		CorrectiveActionId: action.ID,
		Method:             "Second look",
		IsEffective:        boolPtr(false),
	})
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("verify Done action: err = %v, want invalid state", err)
	}
	_, err = models.UpdateCorrectiveAction(ctx, action.ID, &models.NewCorrectiveAction{
		ActionPlanId: action.ActionPlanId,
		Description:  "reworded",
	})
	if !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("edit Done action: err = %v, want invalid state", err)
	}
}

func TestIneffectiveVerificationSendsActionBackToRevisit(t *testing.T) {
	ctx := setupTestDB(t)
	_, action := seedActionChain(t, ctx)

	if _, err := models.StartCorrectiveAction(ctx, action.ID); err != nil {
		t.Fatalf("StartCorrectiveAction: %v", err)
	}

	if _, err := models.CreateEffectivenessVerification(ctx, &models.NewEffectivenessVerification{
		CorrectiveActionId: action.ID,
		Method:             "Visual inspection",
		IsEffective:        boolPtr(false),
		Result:             "Leak reappeared after a week.",
	}); err != nil {
		t.Fatalf("CreateEffectivenessVerification: %v", err)
	}

	reloaded, err := utils.FetchModel[models.CorrectiveAction](ctx, action.ID)
	if err != nil {
		t.Fatalf("reload action: %v", err)
	}
	if reloaded.CurrentStatus != models.ActionStatusToRevisit {
		t.Fatalf("action status = %s, want ToRevisit", reloaded.CurrentStatus)
	}

	// ToRevisit can be restarted and re-verified
	if _, err := models.StartCorrectiveAction(ctx, action.ID); err != nil {
		t.Fatalf("restart ToRevisit action: %v", err)
	}
	if _, err := models.CreateEffectivenessVerification(ctx, &models.NewEffectivenessVerification{
		CorrectiveActionId: action.ID,
		Method:             "Pressure retest",
		IsEffective:        boolPtr(true),
	}); err != nil {
		t.Fatalf("second verification: %v", err)
	}

	verifications, err := models.ListActionVerifications(ctx, action.ID)
	if err != nil {
		t.Fatalf("ListActionVerifications: %v", err)
	}
	if len(verifications) != 2 {
		t.Fatalf("got %d verifications, want 2", len(verifications))
	}
}

func TestActionPlanRules(t *testing.T) {
	ctx := setupTestDB(t)
	nc, action := seedActionChain(t, ctx)

	// one plan per NC
	if _, err := models.CreateActionPlan(ctx, &models.NewActionPlan{
		NonConformityId: nc.ID,
	}); err == nil {
		t.Fatal("second plan for the same NC should be rejected")
	}

	// positions append in order
	second, err := models.AddCorrectiveAction(ctx, &models.NewCorrectiveAction{
		ActionPlanId: action.ActionPlanId,
		Description:  "Retrain the operators.",
	})
	if err != nil {
		t.Fatalf("AddCorrectiveAction: %v", err)
	}
	if action.Position != 1 || second.Position != 2 {
		t.Fatalf("positions = %d, %d; want 1, 2", action.Position, second.Position)
	}
	if second.CurrentStatus != models.ActionStatusPlanned {
		t.Fatalf("new action status = %s, want Planned", second.CurrentStatus)
	}
}

func TestCloseNonConformityIsManual(t *testing.T) {
	ctx := setupTestDB(t)
	nc, _ := seedActionChain(t, ctx)

	inProgress, err := models.MarkNonConformityInProgress(ctx, nc.ID)
	if err != nil {
		t.Fatalf("MarkNonConformityInProgress: %v", err)
	}
	if inProgress.CurrentStatus != models.NonConformityStatusInProgress {
		t.Fatalf("NC status = %s, want InProgress", inProgress.CurrentStatus)
	}

	closed, err := models.CloseNonConformity(ctx, nc.ID)
	if err != nil {
		t.Fatalf("CloseNonConformity: %v", err)
	}
	if closed.CurrentStatus != models.NonConformityStatusClosed {
		t.Fatalf("NC status = %s, want Closed", closed.CurrentStatus)
	}
	if closed.ClosureDate == nil {
		t.Fatal("closure date not stamped")
	}
	if closed.ValidatorId != 1 {
		t.Fatalf("validator = %d, want the context user", closed.ValidatorId)
	}

	if _, err := models.CloseNonConformity(ctx, nc.ID); !errors.Is(err, utils.ErrorInvalidState) {
		t.Fatalf("double close: err = %v, want invalid state", err)
	}
}
