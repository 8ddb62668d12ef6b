package pgstmt

import (
	"time"

	"github.com/riftdata/pgstmt/internal/rewrite"
)

// Config holds the engine's tunables. Its mapstructure tags let an
// embedding application decode it from whatever source it already uses
// for its own configuration (the teacher's own Config, for instance, is
// decoded from spf13/viper); this package stays a leaf and never
// imports viper itself.
type Config struct {
	PlaceholderStyle      rewrite.PlaceholderStyle `mapstructure:"placeholder_style"`
	PrepareThreshold      int64                    `mapstructure:"prepare_threshold"`
	AutoSave              string                   `mapstructure:"auto_save"`
	PreferQueryMode       string                   `mapstructure:"prefer_query_mode"`
	ReWriteBatchedInserts bool                     `mapstructure:"rewrite_batched_inserts"`
	AdaptiveFetch         bool                     `mapstructure:"adaptive_fetch"`
	DefaultFetchSize      int                      `mapstructure:"default_fetch_size"`
	CacheCapacity         int                      `mapstructure:"cache_capacity"`
	QueryTimeout          time.Duration            `mapstructure:"query_timeout"`
}

// AutoSave modes, mirroring PostgreSQL JDBC's autosave semantics for
// retrying after a transaction-aborting error.
const (
	AutoSaveNever    = "never"
	AutoSaveAlways   = "always"
	AutoSaveConservative = "conservative"
)

// PreferQueryMode values: whether the engine defaults to the extended
// protocol's binary-capable path or always issues a simple Query.
const (
	PreferQueryModeExtended = "extended"
	PreferQueryModeSimple   = "simple"
)

// DefaultConfig mirrors the teacher's DefaultConfig shape: a fully
// populated, immediately usable Config.
func DefaultConfig() *Config {
	return &Config{
		PlaceholderStyle:      rewrite.StyleAny,
		PrepareThreshold:      5,
		AutoSave:              AutoSaveNever,
		PreferQueryMode:       PreferQueryModeExtended,
		ReWriteBatchedInserts: true,
		AdaptiveFetch:         true,
		DefaultFetchSize:      0,
		CacheCapacity:         256,
		QueryTimeout:          0,
	}
}
