package params

import (
	"testing"

	"github.com/riftdata/pgstmt/internal/errkind"
)

func TestSetPositionalOutOfRange(t *testing.T) {
	l := New(2, nil)
	err := l.SetPositional(3, []byte("x"), 25, FormatText)
	kindErr, ok := err.(*errkind.Error)
	if !ok || kindErr.Kind != errkind.InvalidParameterValue {
		t.Fatalf("err = %v, want InvalidParameterValue", err)
	}
}

func TestSetNamedUnknown(t *testing.T) {
	l := New(1, map[string]int{"id": 1})
	err := l.SetNamed("missing", []byte("x"), 25, FormatText)
	kindErr, ok := err.(*errkind.Error)
	if !ok || kindErr.Kind != errkind.InvalidParameterName {
		t.Fatalf("err = %v, want InvalidParameterName", err)
	}
}

func TestSetNamedSharesSlotAcrossOccurrences(t *testing.T) {
	l := New(1, map[string]int{"id": 1})
	if err := l.SetNamed("id", []byte("7"), 23, FormatText); err != nil {
		t.Fatalf("SetNamed: %v", err)
	}
	if string(l.Slots()[0].Value) != "7" {
		t.Errorf("Slots()[0].Value = %q, want 7", l.Slots()[0].Value)
	}
}

func TestValidateReportsFirstMissingParameter(t *testing.T) {
	l := New(3, nil)
	_ = l.SetPositional(1, []byte("a"), 25, FormatText)
	_ = l.SetPositional(3, []byte("c"), 25, FormatText)

	err := l.Validate()
	kindErr, ok := err.(*errkind.Error)
	if !ok || kindErr.Kind != errkind.MissingParameter {
		t.Fatalf("err = %v, want MissingParameter", err)
	}
	if kindErr.Message == "" {
		t.Errorf("expected a message naming the missing slot")
	}
}

func TestValidatePassesWhenFullyBound(t *testing.T) {
	l := New(2, nil)
	_ = l.SetPositional(1, []byte("a"), 25, FormatText)
	_ = l.SetPositional(2, []byte("b"), 25, FormatText)
	if err := l.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestResetMarksSlotUnbound(t *testing.T) {
	l := New(1, nil)
	_ = l.SetPositional(1, []byte("a"), 25, FormatText)
	l.Reset(1)
	if err := l.Validate(); err == nil {
		t.Errorf("expected MissingParameter after Reset")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := New(1, nil)
	_ = l.SetPositional(1, []byte("a"), 25, FormatText)

	clone := l.Clone()
	_ = clone.SetPositional(1, []byte("b"), 25, FormatText)

	if string(l.Slots()[0].Value) != "a" {
		t.Errorf("original list mutated by clone's SetPositional")
	}
	if string(clone.Slots()[0].Value) != "b" {
		t.Errorf("clone.Slots()[0].Value = %q, want b", clone.Slots()[0].Value)
	}
}
