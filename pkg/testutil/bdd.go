package testutil

import "testing"

// Given, When, and Then label the steps of a scenario-style test as nested
// subtests, so multi-step behavioral tests read as a narrative in `go test -v`
// output without a BDD framework.
func Given(t *testing.T, description string, step func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+description, step)
}

func When(t *testing.T, description string, step func(t *testing.T)) {
	t.Helper()
	t.Run("When "+description, step)
}

func Then(t *testing.T, description string, step func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+description, step)
}
