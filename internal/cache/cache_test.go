package cache

import (
	"testing"

	"github.com/riftdata/pgstmt/internal/rewrite"
)

func build(sql string) func() (*rewrite.Result, error) {
	return func() (*rewrite.Result, error) {
		return rewrite.Rewrite(sql, rewrite.Options{Style: rewrite.StyleJDBC})
	}
}

func TestBorrowSharesEntryForSameKey(t *testing.T) {
	c := New(10, 0)
	key := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)

	cq1, err := c.Borrow(key, build("SELECT 1"))
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	cq2, err := c.Borrow(key, build("SELECT 1"))
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if cq1 != cq2 {
		t.Errorf("expected the same *CachedQuery for equal keys")
	}
	if cq1.BorrowCount() != 2 {
		t.Errorf("BorrowCount = %d, want 2", cq1.BorrowCount())
	}
}

func TestReleaseDecrementsBorrowCount(t *testing.T) {
	c := New(10, 0)
	key := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)
	cq, _ := c.Borrow(key, build("SELECT 1"))
	c.Release(cq)
	if cq.BorrowCount() != 0 {
		t.Errorf("BorrowCount = %d, want 0", cq.BorrowCount())
	}
}

func TestEvictionNeverRemovesBorrowedEntry(t *testing.T) {
	c := New(1, 0)
	key1 := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)
	key2 := NewCacheKey("SELECT 2", rewrite.StyleJDBC, false, false, nil)

	cq1, _ := c.Borrow(key1, build("SELECT 1"))
	_, _ = c.Borrow(key2, build("SELECT 2"))

	// key1 is still borrowed (never released) so it must survive even
	// though capacity is 1 and a second distinct key was added.
	if _, ok := c.lru.Get(key1); !ok {
		t.Errorf("borrowed entry was evicted")
	}
	if cq1.BorrowCount() != 1 {
		t.Errorf("BorrowCount = %d, want 1", cq1.BorrowCount())
	}
}

func TestEvictionRemovesOldestUnborrowedEntry(t *testing.T) {
	c := New(1, 0)
	key1 := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)
	key2 := NewCacheKey("SELECT 2", rewrite.StyleJDBC, false, false, nil)

	cq1, _ := c.Borrow(key1, build("SELECT 1"))
	c.Release(cq1)
	_, _ = c.Borrow(key2, build("SELECT 2"))

	if _, ok := c.lru.Get(key1); ok {
		t.Errorf("expected key1 to be evicted once unborrowed and over capacity")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestRecordExecutionPromotesExactlyOnce(t *testing.T) {
	c := New(10, 3)
	key := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)
	cq, _ := c.Borrow(key, build("SELECT 1"))

	var promotions int
	for i := 0; i < 5; i++ {
		if c.RecordExecution(cq) {
			promotions++
		}
	}
	if promotions != 1 {
		t.Errorf("promotions = %d, want 1", promotions)
	}
	if cq.ExecutionCount() != 5 {
		t.Errorf("ExecutionCount = %d, want 5", cq.ExecutionCount())
	}
}

func TestDrainPendingClosesReturnsEvictedPreparedNames(t *testing.T) {
	c := New(1, 0)
	key1 := NewCacheKey("SELECT 1", rewrite.StyleJDBC, false, false, nil)
	key2 := NewCacheKey("SELECT 2", rewrite.StyleJDBC, false, false, nil)

	cq1, _ := c.Borrow(key1, build("SELECT 1"))
	cq1.MarkPrepared("stmt_1")
	c.Release(cq1)

	_, _ = c.Borrow(key2, build("SELECT 2"))

	closes := c.DrainPendingCloses()
	if len(closes) != 1 || closes[0] != "stmt_1" {
		t.Errorf("DrainPendingCloses = %v, want [stmt_1]", closes)
	}
	if more := c.DrainPendingCloses(); len(more) != 0 {
		t.Errorf("second drain should be empty, got %v", more)
	}
}

func TestCacheKeyDistinguishesGeneratedKeyColumns(t *testing.T) {
	k1 := NewCacheKey("INSERT INTO t VALUES (?)", rewrite.StyleJDBC, false, false, []string{"id"})
	k2 := NewCacheKey("INSERT INTO t VALUES (?)", rewrite.StyleJDBC, false, false, nil)
	if k1 == k2 {
		t.Errorf("keys with different generated-key column sets should differ")
	}
}
