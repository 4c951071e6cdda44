package models

import (
	"github.com/shopspring/decimal"
)

// Fixed classification thresholds. Not configurable: the classification
// feeds regulatory reporting and must read identically across deployments.
var (
	conformeThreshold = decimal.NewFromInt(95)
	partielThreshold  = decimal.NewFromInt(70)
	hundred           = decimal.NewFromInt(100)
)

// computeDeviations returns the absolute and percentage deviation of a
// measured value against its reference. The percentage is zero when the
// reference is zero (division undefined); the stored zero plus the
// conformity flag carry the information downstream.
func computeDeviations(measured, reference decimal.Decimal) (abs decimal.Decimal, pct decimal.Decimal) {
	abs = measured.Sub(reference).Abs()
	if reference.IsZero() {
		return abs, decimal.Zero
	}
	pct = abs.Div(reference).Mul(hundred).Round(2)
	return abs, pct
}

// isWithinTolerance checks the inclusive tolerance band.
func isWithinTolerance(measured, toleranceMin, toleranceMax decimal.Decimal) bool {
	return measured.GreaterThanOrEqual(toleranceMin) && measured.LessThanOrEqual(toleranceMax)
}

// ComputeConformityRate aggregates the per-measurement conformity flags:
// conforming / total x 100, rounded to 2 decimal places. A test with zero
// measurements has a rate of 0 (never a division by zero, never null).
func ComputeConformityRate(measurements []Measurement) decimal.Decimal {
	if len(measurements) == 0 {
		return decimal.Zero
	}
	var conforming int64
	for _, m := range measurements {
		if m.IsConforming != nil && *m.IsConforming {
			conforming++
		}
	}
	return decimal.NewFromInt(conforming).
		Div(decimal.NewFromInt(int64(len(measurements)))).
		Mul(hundred).
		Round(2)
}

// ClassifyConformityRate maps an aggregate rate onto the test result:
// >= 95 Conforme, >= 70 Partiel, below NonConforme.
func ClassifyConformityRate(rate decimal.Decimal) TestResult {
	switch {
	case rate.GreaterThanOrEqual(conformeThreshold):
		return TestResultConforme
	case rate.GreaterThanOrEqual(partielThreshold):
		return TestResultPartiel
	default:
		return TestResultNonConforme
	}
}
