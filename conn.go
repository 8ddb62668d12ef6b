package pgstmt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/riftdata/pgstmt/internal/cache"
	"github.com/riftdata/pgstmt/internal/pglog"
	"github.com/riftdata/pgstmt/internal/protoengine"
	"github.com/riftdata/pgstmt/internal/sessionparams"
	"github.com/riftdata/pgstmt/pkg/wire"
)

// Conn is one PostgreSQL connection: the protocol engine driving its
// extended-query state machine, the query cache Statements on it share,
// and the session parameter map the engine publishes. A Transport
// (§6 of the spec) supplies the actual socket; TLS, SCRAM, and pooling
// live above or below this package entirely.
type Conn struct {
	engine *protoengine.Engine
	cache  *cache.Cache
	cfg    Config

	stmtSeq int64
}

// Connect performs the v3 startup handshake over transport and returns
// a ready-to-use Conn. cfg may be nil to take DefaultConfig().
func Connect(ctx context.Context, transport protoengine.Transport, startupParams map[string]string, password string, cfg *Config) (*Conn, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = c
	}

	session := sessionparams.New()
	engine := protoengine.New(transport, session)
	if err := engine.Startup(ctx, startupParams, password); err != nil {
		return nil, fmt.Errorf("pgstmt: connect: %w", err)
	}

	pglog.Default().Debug("connection established", "pid", engine.Meta().PID)

	return &Conn{
		engine: engine,
		cache:  cache.New(cfg.CacheCapacity, cfg.PrepareThreshold),
		cfg:    *cfg,
	}, nil
}

// NewStatement creates a Statement bound to this connection, inheriting
// the connection's Config as its initial tuning values.
func (c *Conn) NewStatement() *Statement {
	return &Statement{
		conn:             c,
		style:            c.cfg.PlaceholderStyle,
		prepareThreshold: c.cfg.PrepareThreshold,
		fetchSize:        c.cfg.DefaultFetchSize,
		adaptiveFetch:    c.cfg.AdaptiveFetch,
		rewriteBatched:   c.cfg.ReWriteBatchedInserts,
		autoCommit:       true,
		timeout:          c.cfg.QueryTimeout,
	}
}

// GetParameterStatus returns the current value of a GUC_REPORT
// parameter (spec §6), or ("", false) if the server has never reported
// it.
func (c *Conn) GetParameterStatus(name string) (string, bool) {
	return c.engine.Session().Get(name)
}

// GetParameterStatuses returns a read-only snapshot of every currently
// known session parameter. Mutating the returned map has no effect on
// the connection's view.
func (c *Conn) GetParameterStatuses() map[string]string {
	return c.engine.Session().Snapshot()
}

// nextStatementName allocates a fresh server-side prepared-statement
// name for promotion out of the unnamed path.
func (c *Conn) nextStatementName() string {
	return fmt.Sprintf("pgstmt_%d", atomic.AddInt64(&c.stmtSeq, 1))
}

// prepareNamed sends a standalone Parse for cq under a freshly allocated
// name and marks it prepared, draining any server-side names the cache
// evicted first so their slots are reclaimed before being reused.
func (c *Conn) prepareNamed(ctx context.Context, cq *cache.CachedQuery, sql string, paramTypeOIDs []uint32) error {
	for _, name := range c.cache.DrainPendingCloses() {
		if err := c.engine.Close(ctx, wire.TargetStatement, name); err != nil {
			return fmt.Errorf("pgstmt: close evicted prepared statement %q: %w", name, err)
		}
	}

	name := c.nextStatementName()
	if err := c.engine.Prepare(ctx, name, sql, paramTypeOIDs); err != nil {
		return err
	}
	cq.MarkPrepared(name)
	return nil
}
