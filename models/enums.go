package models

import (
	"encoding/json"
	"errors"
)

type TestStatus string

const (
	TestStatusPlanned    TestStatus = "Planned"
	TestStatusInProgress TestStatus = "InProgress"
	TestStatusSuspended  TestStatus = "Suspended"
	TestStatusCompleted  TestStatus = "Completed"
	TestStatusCancelled  TestStatus = "Cancelled"
)

func (t TestStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *TestStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "Planned":
		*t = TestStatusPlanned
	case "InProgress":
		*t = TestStatusInProgress
	case "Suspended":
		*t = TestStatusSuspended
	case "Completed":
		*t = TestStatusCompleted
	case "Cancelled":
		*t = TestStatusCancelled
	default:
		return errors.New("invalid test status")
	}
	return nil
}

// IsTerminal reports whether no further lifecycle transition is allowed.
func (t TestStatus) IsTerminal() bool {
	return t == TestStatusCompleted || t == TestStatusCancelled
}

type TestResult string

const (
	TestResultConforme    TestResult = "Conforme"
	TestResultPartiel     TestResult = "Partiel"
	TestResultNonConforme TestResult = "NonConforme"
)

func (t TestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *TestResult) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "Conforme":
		*t = TestResultConforme
	case "Partiel":
		*t = TestResultPartiel
	case "NonConforme":
		*t = TestResultNonConforme
	default:
		return errors.New("invalid test result")
	}
	return nil
}

type NonConformityStatus string

const (
	NonConformityStatusOpen       NonConformityStatus = "Open"
	NonConformityStatusInProgress NonConformityStatus = "InProgress"
	NonConformityStatusClosed     NonConformityStatus = "Closed"
)

func (s NonConformityStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *NonConformityStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "Open":
		*s = NonConformityStatusOpen
	case "InProgress":
		*s = NonConformityStatusInProgress
	case "Closed":
		*s = NonConformityStatusClosed
	default:
		return errors.New("invalid non-conformity status")
	}
	return nil
}

type ActionStatus string

const (
	ActionStatusPlanned    ActionStatus = "Planned"
	ActionStatusInProgress ActionStatus = "InProgress"
	ActionStatusDone       ActionStatus = "Done"
	ActionStatusToRevisit  ActionStatus = "ToRevisit"
)

func (s ActionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *ActionStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "Planned":
		*s = ActionStatusPlanned
	case "InProgress":
		*s = ActionStatusInProgress
	case "Done":
		*s = ActionStatusDone
	case "ToRevisit":
		*s = ActionStatusToRevisit
	default:
		return errors.New("invalid action status")
	}
	return nil
}

type RootCauseCategory string

const (
	RootCauseCategoryEquipment   RootCauseCategory = "Equipment"
	RootCauseCategoryMethod      RootCauseCategory = "Method"
	RootCauseCategoryMaterial    RootCauseCategory = "Material"
	RootCauseCategoryManpower    RootCauseCategory = "Manpower"
	RootCauseCategoryEnvironment RootCauseCategory = "Environment"
	RootCauseCategoryUnknown     RootCauseCategory = "Unknown"
)
