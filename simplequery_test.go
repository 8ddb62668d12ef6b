package pgstmt

import (
	"testing"

	"github.com/riftdata/pgstmt/internal/oid"
	"github.com/riftdata/pgstmt/internal/params"
)

func TestInlineParamsSubstitutesLiterals(t *testing.T) {
	pl := params.New(2, nil)
	if err := pl.SetPositional(1, []byte("7"), oid.Int4, params.FormatText); err != nil {
		t.Fatalf("SetPositional: %v", err)
	}
	if err := pl.SetPositional(2, []byte("O'Brien"), oid.Text, params.FormatText); err != nil {
		t.Fatalf("SetPositional: %v", err)
	}

	got, ok := inlineParams("INSERT INTO t(a,b) VALUES($1,$2)", pl)
	if !ok {
		t.Fatal("inlineParams reported binary format with no bound binary slots")
	}
	want := "INSERT INTO t(a,b) VALUES('7'::int4,'O''Brien'::text)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInlineParamsRendersUnboundAndNilAsNull(t *testing.T) {
	pl := params.New(1, nil)
	got, ok := inlineParams("DELETE FROM t WHERE a = $1", pl)
	if !ok {
		t.Fatal("inlineParams reported false unexpectedly")
	}
	want := "DELETE FROM t WHERE a = NULL"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInlineParamsRejectsBinaryFormat(t *testing.T) {
	pl := params.New(1, nil)
	if err := pl.SetPositional(1, []byte{0x01, 0x02}, oid.Int4, params.FormatBinary); err != nil {
		t.Fatalf("SetPositional: %v", err)
	}
	if _, ok := inlineParams("SELECT $1", pl); ok {
		t.Error("inlineParams should refuse to inline a binary-format parameter")
	}
}

func TestInlineParamsIgnoresDollarInsideQuotedText(t *testing.T) {
	pl := params.New(1, nil)
	if err := pl.SetPositional(1, []byte("x"), oid.Text, params.FormatText); err != nil {
		t.Fatalf("SetPositional: %v", err)
	}
	got, ok := inlineParams("SELECT '$1 is not a placeholder here', a FROM t WHERE a = $1", pl)
	if !ok {
		t.Fatal("inlineParams reported false unexpectedly")
	}
	want := "SELECT '$1 is not a placeholder here', a FROM t WHERE a = 'x'::text"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInlineParamsUnknownOIDOmitsCast(t *testing.T) {
	pl := params.New(1, nil)
	if err := pl.SetPositional(1, []byte("abc"), 99999, params.FormatText); err != nil {
		t.Fatalf("SetPositional: %v", err)
	}
	got, ok := inlineParams("SELECT $1", pl)
	if !ok {
		t.Fatal("inlineParams reported false unexpectedly")
	}
	want := "SELECT 'abc'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
