// Package cache implements the query cache: it remembers the rewrite of
// a SQL string keyed by its text and rewrite options, and tracks which
// cached entries have been promoted to a server-prepared statement.
//
// Storage and recency tracking ride on hashicorp/golang-lru's generic
// simplelru.LRU, the same recency-ordered map/list structure used
// elsewhere in the example pack (github.com/Icinga/icinga-go-library
// carries it as a dependency). Eviction itself is not delegated to the
// library's built-in callback: a borrowed entry must never be evicted,
// which the library's automatic "evict on Add" behavior can't express,
// so Cache keeps the LRU unbounded underneath and runs its own
// capacity check whenever Borrow inserts a new entry, skipping anything
// still on loan.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/riftdata/pgstmt/internal/rewrite"
)

// CacheKey identifies one cached rewrite. Two calls with equal keys
// always share the same CachedQuery.
type CacheKey struct {
	SQL                string
	Style              rewrite.PlaceholderStyle
	EscapeProcessing   bool
	UseParameterized   bool
	ReturningColumnSet string // GeneratedKeyColumns joined with "\x00", "" for RETURNING *
}

// NewCacheKey builds a CacheKey from the parameters a caller passes to
// Statement.Execute*; it is the canonical way to construct one so the
// ReturningColumnSet join stays consistent.
func NewCacheKey(sql string, style rewrite.PlaceholderStyle, escapeProcessing, useParameterized bool, generatedKeyColumns []string) CacheKey {
	return CacheKey{
		SQL:                sql,
		Style:              style,
		EscapeProcessing:   escapeProcessing,
		UseParameterized:   useParameterized,
		ReturningColumnSet: strings.Join(generatedKeyColumns, "\x00"),
	}
}

// CachedQuery is one entry: a rewrite result plus the bookkeeping the
// executor needs to decide whether to prepare it on the server and
// whether it is still in use.
type CachedQuery struct {
	Key       CacheKey
	Rewritten *rewrite.Result

	borrowCount    int32 // atomic; >0 means in use by at least one Statement
	executionCount int64 // atomic; counts completed executions, drives promotion

	mu           sync.Mutex
	Prepared     bool
	PreparedName string // server-side statement name once Prepared is true
}

// BorrowCount reports how many Statements currently hold this entry.
func (cq *CachedQuery) BorrowCount() int32 { return atomic.LoadInt32(&cq.borrowCount) }

// ExecutionCount reports how many times this entry has been executed.
func (cq *CachedQuery) ExecutionCount() int64 { return atomic.LoadInt64(&cq.executionCount) }

// MarkPrepared records the server-assigned prepared statement name. It
// is idempotent: calling it twice with the same name is a no-op.
func (cq *CachedQuery) MarkPrepared(name string) {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	cq.Prepared = true
	cq.PreparedName = name
}

// ClearPrepared un-prepares the entry and returns the server-side name
// it previously held (empty if it was never prepared), for the
// Statement retry path (spec §4.5: "retried exactly once after closing
// and re-preparing the CachedQuery"). The caller is responsible for
// sending the Close message for the returned name.
func (cq *CachedQuery) ClearPrepared() string {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	name := cq.PreparedName
	cq.Prepared = false
	cq.PreparedName = ""
	return name
}

// Cache is the statement-level query cache. It is safe for concurrent
// use by multiple Statements sharing one connection.
type Cache struct {
	mu               sync.Mutex
	lru              *simplelru.LRU[CacheKey, *CachedQuery]
	capacity         int
	prepareThreshold int64

	pendingCloses []string // server-side prepared names evicted while unborrowed
}

// New creates a Cache that holds at most capacity entries and promotes
// an entry to a server-prepared statement once its execution count
// reaches prepareThreshold. A prepareThreshold of 0 disables promotion
// (every execution runs unnamed).
func New(capacity int, prepareThreshold int64) *Cache {
	lru, _ := simplelru.NewLRU[CacheKey, *CachedQuery](1<<30, nil)
	return &Cache{
		lru:              lru,
		capacity:         capacity,
		prepareThreshold: prepareThreshold,
	}
}

// Borrow returns the CachedQuery for key, building it with build if it
// isn't already cached, and increments its borrow count. The caller
// must call Release when done (typically when the Statement executing
// against it closes or moves on to a new SQL string).
func (c *Cache) Borrow(key CacheKey, build func() (*rewrite.Result, error)) (*CachedQuery, error) {
	c.mu.Lock()
	cq, ok := c.lru.Get(key)
	if ok {
		atomic.AddInt32(&cq.borrowCount, 1)
		c.mu.Unlock()
		return cq, nil
	}
	c.mu.Unlock()

	rewritten, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have raced us to insert the same key.
	if existing, ok := c.lru.Get(key); ok {
		atomic.AddInt32(&existing.borrowCount, 1)
		return existing, nil
	}

	cq = &CachedQuery{Key: key, Rewritten: rewritten, borrowCount: 1}
	c.lru.Add(key, cq)
	c.evictLocked()
	return cq, nil
}

// Release decrements an entry's borrow count. It is safe to call after
// the entry has already been evicted from the cache.
func (c *Cache) Release(cq *CachedQuery) {
	atomic.AddInt32(&cq.borrowCount, -1)
}

// RecordExecution increments an entry's execution count and reports
// whether this call is the one that crosses prepareThreshold, i.e. the
// caller should now Parse this statement on the server under a name and
// call MarkPrepared. The edge fires exactly once per entry.
func (c *Cache) RecordExecution(cq *CachedQuery) bool {
	if c.prepareThreshold <= 0 {
		atomic.AddInt64(&cq.executionCount, 1)
		return false
	}
	n := atomic.AddInt64(&cq.executionCount, 1)
	return n == c.prepareThreshold
}

// evictLocked removes entries over capacity, oldest first, but never
// touches one with a positive borrow count. If every entry beyond
// capacity is currently borrowed, the cache is temporarily allowed to
// exceed its configured capacity rather than evict in-use state.
func (c *Cache) evictLocked() {
	for c.lru.Len() > c.capacity {
		keys := c.lru.Keys()
		evicted := false
		for _, k := range keys {
			cq, ok := c.lru.Peek(k)
			if !ok || cq.BorrowCount() > 0 {
				continue
			}
			c.lru.Remove(k)
			cq.mu.Lock()
			if cq.Prepared {
				c.pendingCloses = append(c.pendingCloses, cq.PreparedName)
			}
			cq.mu.Unlock()
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// DrainPendingCloses returns and clears the list of server-side
// prepared-statement names that were evicted while holding a prepared
// name. The connection layer is expected to send a Close message for
// each before (or lazily, the next time it reuses the name slot)
// issuing a new Parse.
func (c *Cache) DrainPendingCloses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pendingCloses
	c.pendingCloses = nil
	return out
}

// Len reports the current number of cached entries, including any
// temporarily over capacity.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
