package rewrite

import (
	"fmt"
	"strings"
)

// scanState is the lexer's single piece of mutable context beyond
// position: which region of the input the cursor is currently inside.
type scanState int

const (
	stateDefault scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateLineComment
	stateBlockComment
	stateDollarQuote
)

// SyntaxError reports a malformed placeholder or an unterminated quoted
// region, with the byte position in the original input.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("rewrite: syntax error at byte %d: %s", e.Pos, e.Message)
}

// lexResult is the raw output of one forward scan, before the
// rewritable-INSERT/RETURNING post-pass in rewrite.go.
type lexResult struct {
	subStatements []string // rewritten ($n-form) text of each sub-statement
	subSlots      [][]int  // distinct slots referenced per sub-statement, first-seen order
	slotCount     int
	namedSlots    map[string]int // nil unless any ':name' placeholder was bound
}

// scan performs the single forward pass described in spec.md §4.1: it
// tracks quoting/comment state, splits on unquoted ';', and rewrites
// recognized placeholders into native '$n' form, assigning slots in one
// global index space shared across all sub-statements.
func scan(sql string, opts Options) (*lexResult, error) {
	res := &lexResult{}

	var out strings.Builder
	var subSlotsSeen []int
	seenInSub := map[int]bool{}

	nextSlot := 1
	namedSlots := map[string]int{}

	state := stateDefault
	var dollarTag string
	blockDepth := 0

	flushSub := func() {
		text := strings.TrimSpace(out.String())
		if text != "" {
			res.subStatements = append(res.subStatements, text)
			res.subSlots = append(res.subSlots, subSlotsSeen)
		}
		out.Reset()
		subSlotsSeen = nil
		seenInSub = map[int]bool{}
	}

	recordSlot := func(slot int) {
		if !seenInSub[slot] {
			seenInSub[slot] = true
			subSlotsSeen = append(subSlotsSeen, slot)
		}
	}

	allowStyle := func(want PlaceholderStyle) bool {
		return opts.Style == StyleAny || opts.Style == want
	}

	n := len(sql)
	for i := 0; i < n; {
		c := sql[i]

		switch state {
		case stateSingleQuote:
			if c == '\'' {
				if i+1 < n && sql[i+1] == '\'' {
					out.WriteByte(c)
					out.WriteByte(sql[i+1])
					i += 2
					continue
				}
				state = stateDefault
			}
			out.WriteByte(c)
			i++
			continue

		case stateDoubleQuote:
			if c == '"' {
				if i+1 < n && sql[i+1] == '"' {
					out.WriteByte(c)
					out.WriteByte(sql[i+1])
					i += 2
					continue
				}
				state = stateDefault
			}
			out.WriteByte(c)
			i++
			continue

		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateDefault
			}
			i++
			continue

		case stateBlockComment:
			out.WriteByte(c)
			if c == '*' && i+1 < n && sql[i+1] == '/' {
				out.WriteByte('/')
				i += 2
				blockDepth--
				if blockDepth == 0 {
					state = stateDefault
				}
				continue
			}
			if c == '/' && i+1 < n && sql[i+1] == '*' {
				out.WriteByte('*')
				i += 2
				blockDepth++
				continue
			}
			i++
			continue

		case stateDollarQuote:
			if c == '$' && strings.HasPrefix(sql[i:], dollarTag) {
				out.WriteString(dollarTag)
				i += len(dollarTag)
				state = stateDefault
				continue
			}
			out.WriteByte(c)
			i++
			continue
		}

		// stateDefault: look for region starts, statement separators,
		// and placeholders.
		switch {
		case c == '\'':
			state = stateSingleQuote
			out.WriteByte(c)
			i++

		case c == '"':
			state = stateDoubleQuote
			out.WriteByte(c)
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			state = stateLineComment
			out.WriteByte(c)
			out.WriteByte(sql[i+1])
			i += 2

		case c == '/' && i+1 < n && sql[i+1] == '*':
			state = stateBlockComment
			blockDepth = 1
			out.WriteByte(c)
			out.WriteByte(sql[i+1])
			i += 2

		case c == '$' && looksLikeDollarTagStart(sql, i):
			tag, end := readDollarTag(sql, i)
			if tag == "" {
				// Not a well-formed "$tag$"; treat as literal text.
				out.WriteByte(c)
				i++
				continue
			}
			dollarTag = tag
			state = stateDollarQuote
			out.WriteString(tag)
			i = end

		case c == '$' && allowStyle(StyleNative) && i+1 < n && isDigit(sql[i+1]):
			end := i + 1
			for end < n && isDigit(sql[end]) {
				end++
			}
			slot := atoiFast(sql[i+1 : end])
			if slot < 1 {
				return nil, &SyntaxError{Pos: i, Message: "native placeholder index must be >= 1"}
			}
			if slot >= nextSlot {
				nextSlot = slot + 1
			}
			recordSlot(slot)
			fmt.Fprintf(&out, "$%d", slot)
			if slot > res.slotCount {
				res.slotCount = slot
			}
			i = end

		case c == '?' && allowStyle(StyleJDBC):
			if opts.EnableEscapeProcessing && i+1 < n && sql[i+1] == '?' {
				out.WriteByte('?')
				i += 2
				continue
			}
			slot := nextSlot
			nextSlot++
			recordSlot(slot)
			fmt.Fprintf(&out, "$%d", slot)
			if slot > res.slotCount {
				res.slotCount = slot
			}
			i++

		case c == ':' && allowStyle(StyleNamed) && i+1 < n && sql[i+1] == ':':
			// "::" is the cast operator, never a named placeholder.
			out.WriteByte(':')
			out.WriteByte(':')
			i += 2

		case c == ':' && allowStyle(StyleNamed) && i+1 < n && isIdentStart(sql[i+1]):
			end := i + 1
			for end < n && isIdentChar(sql[end]) {
				end++
			}
			name := sql[i+1 : end]
			slot, ok := namedSlots[name]
			if !ok {
				slot = nextSlot
				nextSlot++
				namedSlots[name] = slot
			}
			recordSlot(slot)
			fmt.Fprintf(&out, "$%d", slot)
			if slot > res.slotCount {
				res.slotCount = slot
			}
			i = end

		case c == ';':
			flushSub()
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}

	switch state {
	case stateSingleQuote, stateDoubleQuote:
		return nil, &SyntaxError{Pos: n, Message: "unterminated quoted region"}
	case stateBlockComment:
		return nil, &SyntaxError{Pos: n, Message: "unterminated block comment"}
	case stateDollarQuote:
		return nil, &SyntaxError{Pos: n, Message: "unterminated dollar-quoted region"}
	}

	flushSub()
	if res.slotCount < nextSlot-1 {
		res.slotCount = nextSlot - 1
	}
	if len(namedSlots) > 0 {
		res.namedSlots = namedSlots
	}
	return res, nil
}

func looksLikeDollarTagStart(sql string, i int) bool {
	if i+1 >= len(sql) {
		return false
	}
	c := sql[i+1]
	return c == '$' || isIdentStart(c)
}

// readDollarTag attempts to read a dollar-quote opening tag ("$tag$" or
// "$$") starting at sql[i]. Returns ("", i) if what follows isn't a
// well-formed tag (e.g. it's actually a native placeholder).
func readDollarTag(sql string, i int) (tag string, end int) {
	n := len(sql)
	j := i + 1
	for j < n && sql[j] != '$' && isIdentChar(sql[j]) {
		j++
	}
	if j >= n || sql[j] != '$' {
		return "", i
	}
	return sql[i : j+1], j + 1
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func atoiFast(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

// lowerASCII folds a single ASCII letter to lower case using the bit
// trick spec.md §4.1 calls for; non-letters pass through unchanged.
func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c | 0x20
	}
	return c
}

// equalFoldASCIIWindow compares s (assumed already lower/upper mixed)
// against want (lower-case) case-insensitively, falling back to
// strings.EqualFold the moment a non-ASCII byte appears in the window,
// per spec.md §4.1's "falls back to full Unicode-aware compare when a
// non-ASCII byte is seen in the scan window".
func equalFoldASCIIWindow(s, want string) bool {
	if len(s) != len(want) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return strings.EqualFold(s, want)
		}
		if lowerASCII(s[i]) != want[i] {
			return false
		}
	}
	return true
}
