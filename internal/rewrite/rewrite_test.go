package rewrite

import (
	"reflect"
	"testing"
)

func TestRewriteJDBCStyle(t *testing.T) {
	res, err := Rewrite("SELECT * FROM t WHERE a = ? AND b = ?", Options{Style: StyleJDBC})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if len(res.SubQueries) != 1 {
		t.Fatalf("want 1 sub-statement, got %d", len(res.SubQueries))
	}
	got := res.SubQueries[0].SQL
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("SQL = %q, want %q", got, want)
	}
	if res.SlotCount != 2 {
		t.Errorf("SlotCount = %d, want 2", res.SlotCount)
	}
}

func TestRewriteNamedStyleSharesSlot(t *testing.T) {
	res, err := Rewrite("SELECT * FROM t WHERE a = :x OR b = :x OR c = :y", Options{Style: StyleNamed})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "SELECT * FROM t WHERE a = $1 OR b = $1 OR c = $2"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q", sq.SQL, want)
	}
	if res.SlotCount != 2 {
		t.Errorf("SlotCount = %d, want 2", res.SlotCount)
	}
	if !reflect.DeepEqual(res.NamedSlots, map[string]int{"x": 1, "y": 2}) {
		t.Errorf("NamedSlots = %v", res.NamedSlots)
	}
	if !reflect.DeepEqual(sq.Slots, []int{1, 2}) {
		t.Errorf("Slots = %v, want [1 2] (first-seen order, no duplicates)", sq.Slots)
	}
}

func TestRewriteNativeStyleBumpsNextSlot(t *testing.T) {
	res, err := Rewrite("SELECT $2, $1", Options{Style: StyleNative})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.SlotCount != 2 {
		t.Errorf("SlotCount = %d, want 2", res.SlotCount)
	}
}

func TestRewriteOutOfStylePlaceholderIsLiteral(t *testing.T) {
	// '?' is not recognized under StyleNamed; it must pass through
	// untouched rather than raise a syntax error, matching how the
	// engine treats the JSON '?' operator when the caller has selected a
	// different placeholder style.
	res, err := Rewrite("SELECT data ? 'key' FROM t WHERE id = :id", Options{Style: StyleNamed})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	want := "SELECT data ? 'key' FROM t WHERE id = $1"
	if res.SubQueries[0].SQL != want {
		t.Errorf("SQL = %q, want %q", res.SubQueries[0].SQL, want)
	}
}

func TestRewriteIgnoresPlaceholdersInQuotesAndComments(t *testing.T) {
	sql := "SELECT '?', \"a?b\" -- trailing ?\n, ?"
	res, err := Rewrite(sql, Options{Style: StyleJDBC})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.SlotCount != 1 {
		t.Errorf("SlotCount = %d, want 1 (only the bare '?' counts)", res.SlotCount)
	}
}

func TestRewriteDollarQuotedBodyPassesThrough(t *testing.T) {
	sql := "SELECT $tag$literal ? not a placeholder$tag$ WHERE a = ?"
	res, err := Rewrite(sql, Options{Style: StyleJDBC})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.SlotCount != 1 {
		t.Errorf("SlotCount = %d, want 1", res.SlotCount)
	}
}

func TestRewriteSplitsOnUnquotedSemicolon(t *testing.T) {
	sql := "INSERT INTO t(a,b) VALUES($1,$2); INSERT INTO t(a,b) VALUES(?,?); " +
		"INSERT INTO t(a,b) VALUES(:a,:b)"
	res, err := Rewrite(sql, Options{Style: StyleAny})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if len(res.SubQueries) != 3 {
		t.Fatalf("want 3 sub-statements, got %d: %+v", len(res.SubQueries), res.SubQueries)
	}
	if res.SlotCount != 6 {
		t.Errorf("SlotCount = %d, want 6 (2 native + 2 jdbc + 2 named, one global space)", res.SlotCount)
	}
	for i, sq := range res.SubQueries {
		if !sq.IsRewritableInsert {
			t.Errorf("sub-statement %d not flagged rewritable: %q", i, sq.SQL)
		}
	}
}

func TestRewriteIsStableAcrossCalls(t *testing.T) {
	sql := "INSERT INTO t(a,b) VALUES(?,?) RETURNING id"
	opts := Options{Style: StyleJDBC}

	r1, err := Rewrite(sql, opts)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	r2, err := Rewrite(sql, opts)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Errorf("Rewrite is not stable: %+v != %+v", r1, r2)
	}
}

func TestRewriteEmptyStatementBetweenSemicolons(t *testing.T) {
	res, err := Rewrite(";;", Options{Style: StyleJDBC})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if len(res.SubQueries) != 1 || !res.SubQueries[0].IsEmpty {
		t.Errorf("want one empty sub-statement, got %+v", res.SubQueries)
	}
}

func TestAnnotateInsertRejectsMultipleTuples(t *testing.T) {
	res, err := Rewrite("INSERT INTO t(a) VALUES($1),($2)", Options{Style: StyleNative})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.SubQueries[0].IsRewritableInsert {
		t.Errorf("statement with two tuples already present should not be marked rewritable")
	}
}

func TestAnnotateInsertRejectsOnConflict(t *testing.T) {
	res, err := Rewrite("INSERT INTO t(a) VALUES($1) ON CONFLICT DO NOTHING", Options{Style: StyleNative})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.SubQueries[0].IsRewritableInsert {
		t.Errorf("ON CONFLICT clause should not be marked rewritable")
	}
}

func TestAnnotateInsertCapturesReturning(t *testing.T) {
	res, err := Rewrite("INSERT INTO t(a,b) VALUES($1,$2) RETURNING id, created_at", Options{Style: StyleNative})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	if !sq.IsRewritableInsert {
		t.Fatalf("expected rewritable insert")
	}
	if !reflect.DeepEqual(sq.ReturningColumns, []string{"id", "created_at"}) {
		t.Errorf("ReturningColumns = %v", sq.ReturningColumns)
	}
	if sq.ValuesClause != "($1,$2)" {
		t.Errorf("ValuesClause = %q", sq.ValuesClause)
	}
}

func TestRewriteGenerateKeysAppendsReturning(t *testing.T) {
	res, err := Rewrite("INSERT INTO t(a) VALUES(?)", Options{
		Style:        StyleJDBC,
		GenerateKeys: true,
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "INSERT INTO t(a) VALUES($1) RETURNING *"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q", sq.SQL, want)
	}
}

func TestRewriteGenerateKeysAppendsReturningToUpdate(t *testing.T) {
	res, err := Rewrite("UPDATE t SET a = ? WHERE id = ?", Options{
		Style:        StyleJDBC,
		GenerateKeys: true,
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "UPDATE t SET a = $1 WHERE id = $2 RETURNING *"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q", sq.SQL, want)
	}
	if !sq.HasReturning {
		t.Errorf("HasReturning = false, want true")
	}
}

func TestRewriteGenerateKeysAppendsReturningToDelete(t *testing.T) {
	res, err := Rewrite("DELETE FROM t WHERE id = ?", Options{
		Style:               StyleJDBC,
		GenerateKeys:        true,
		GeneratedKeyColumns: []string{"id"},
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "DELETE FROM t WHERE id = $1 RETURNING id"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q", sq.SQL, want)
	}
	if !reflect.DeepEqual(sq.ReturningColumns, []string{"id"}) {
		t.Errorf("ReturningColumns = %v", sq.ReturningColumns)
	}
}

func TestRewriteGenerateKeysAppendsReturningToMultiTupleInsert(t *testing.T) {
	// Two tuples already present means annotateInsert won't flag this as
	// IsRewritableInsert, but GenerateKeys must still append RETURNING.
	res, err := Rewrite("INSERT INTO t(a) VALUES(?),(?)", Options{
		Style:        StyleJDBC,
		GenerateKeys: true,
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "INSERT INTO t(a) VALUES($1),($2) RETURNING *"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q", sq.SQL, want)
	}
	if sq.IsRewritableInsert {
		t.Errorf("multi-tuple INSERT should still not be flagged rewritable")
	}
}

func TestRewriteGenerateKeysSkipsExistingReturning(t *testing.T) {
	res, err := Rewrite("UPDATE t SET a = ? WHERE id = ? RETURNING a", Options{
		Style:        StyleJDBC,
		GenerateKeys: true,
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "UPDATE t SET a = $1 WHERE id = $2 RETURNING a"
	if sq.SQL != want {
		t.Errorf("SQL = %q, want %q (no double RETURNING)", sq.SQL, want)
	}
}

func TestRewriteGenerateKeysIgnoresSelect(t *testing.T) {
	res, err := Rewrite("SELECT * FROM t WHERE id = ?", Options{
		Style:        StyleJDBC,
		GenerateKeys: true,
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	sq := res.SubQueries[0]
	want := "SELECT * FROM t WHERE id = $1"
	if sq.SQL != want {
		t.Errorf("SELECT should be untouched by GenerateKeys: SQL = %q", sq.SQL)
	}
}

func TestRewriteUnterminatedQuoteIsSyntaxError(t *testing.T) {
	_, err := Rewrite("SELECT 'unterminated", Options{Style: StyleJDBC})
	if _, ok := err.(*SyntaxError); !ok {
		t.Errorf("err = %v, want *SyntaxError", err)
	}
}
