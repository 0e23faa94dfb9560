package testutil

import "testing"

// Given, When, Then and And name nested subtests after the scenario step, so
// a failing fold reads as "Given a new payment/When it is captured/Then ...".
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

// And continues the previous step kind.
func And(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "And", desc, fn)
}

// step fails the parent when the step fails, so later steps in a scenario
// never run against state an earlier step did not produce.
func step(t *testing.T, kind, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(kind+" "+desc, fn) {
		t.FailNow()
	}
}
