package healretry

import (
	"errors"
	"testing"
)

type fakeSQLStateError struct{ state string }

func (e *fakeSQLStateError) Error() string    { return "pg error " + e.state }
func (e *fakeSQLStateError) SQLState() string { return e.state }

func TestWillHealKnownStates(t *testing.T) {
	for _, state := range []string{"26000", "42P05", "0A000"} {
		if !WillHeal(&fakeSQLStateError{state: state}) {
			t.Errorf("WillHeal(%s) = false, want true", state)
		}
	}
}

func TestWillHealUnknownState(t *testing.T) {
	if WillHeal(&fakeSQLStateError{state: "23505"}) {
		t.Errorf("WillHeal(23505) = true, want false (unique_violation is not a plan-staleness error)")
	}
}

func TestWillHealNonSQLStateError(t *testing.T) {
	if WillHeal(errors.New("plain error")) {
		t.Errorf("WillHeal on a plain error = true, want false")
	}
}

func TestIsQueryCanceled(t *testing.T) {
	if !IsQueryCanceled(&fakeSQLStateError{state: "57014"}) {
		t.Errorf("IsQueryCanceled(57014) = false, want true")
	}
	if IsQueryCanceled(&fakeSQLStateError{state: "26000"}) {
		t.Errorf("IsQueryCanceled(26000) = true, want false")
	}
}
