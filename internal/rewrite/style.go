package rewrite

// PlaceholderStyle selects which placeholder syntaxes the lexer
// recognizes inside a single rewrite (spec.md §4.1).
type PlaceholderStyle int

const (
	// StyleAny accepts '?', '$n', and ':name' in the same rewrite,
	// merging them under one global slot index space in lexical order.
	StyleAny PlaceholderStyle = iota
	// StyleJDBC recognizes only positional '?' markers.
	StyleJDBC
	// StyleNamed recognizes only ':identifier' markers; repeated names
	// share one slot, assigned in first-seen order.
	StyleNamed
	// StyleNative recognizes only already-native '$n' markers.
	StyleNative
	// StyleNone disables placeholder substitution entirely; '?', '$n',
	// and ':name' all pass through as literal text.
	StyleNone
)

func (s PlaceholderStyle) String() string {
	switch s {
	case StyleAny:
		return "any"
	case StyleJDBC:
		return "jdbc"
	case StyleNamed:
		return "named"
	case StyleNative:
		return "native"
	case StyleNone:
		return "none"
	default:
		return "unknown"
	}
}

// Options configures one call to Rewrite.
type Options struct {
	Style PlaceholderStyle

	// EnableEscapeProcessing turns on JDBC-style '??' -> '?' escaping
	// when Style allows '?' placeholders.
	EnableEscapeProcessing bool

	// UseParameterized is carried through to CacheKey by the caller; the
	// rewriter itself does not consult it, and a bare literal VALUES
	// tuple is treated as rewritable either way.
	UseParameterized bool

	// GenerateKeys requests that INSERT/UPDATE/DELETE sub-statements
	// without an explicit RETURNING clause get one appended.
	GenerateKeys bool

	// GeneratedKeyColumns, if non-empty, is the explicit projected list
	// appended as "RETURNING col1, col2"; empty means "RETURNING *".
	GeneratedKeyColumns []string
}
