// Package lexer converts raw directive-bearing template text into an ordered
// sequence of typed tokens.
//
// The scanner is a single left-to-right pass over the source. At every
// position the earliest-starting directive match wins; ties between patterns
// starting at the same offset are broken by a fixed priority order. Text
// between matches is emitted verbatim as Text tokens. The lexer never judges
// nesting balance — that belongs to the compiler — and directive-free input
// is a one-token Text result, never an error.
package lexer

import (
	"regexp"
	"strings"

	"templateguard/internal/errors"
)

// Directive surface syntax, in priority order. setvar is matched before the
// structural close patterns so its body never leaks partial tokens.
var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{IfOpen, regexp.MustCompile(`(?is)<if\s+(.+?)\s+then>`)},
	{ElseIf, regexp.MustCompile(`(?is)<elseif\s+(.+?)\s+then>`)},
	{Else, regexp.MustCompile(`(?i)<else\s*/>`)},
	{IfClose, regexp.MustCompile(`(?i)</if>`)},
	{SetVar, regexp.MustCompile(`(?is)<setvar\s+([A-Za-z_][A-Za-z0-9_]*)\s*>(.*?)</setvar>`)},
	{FuncOpen, regexp.MustCompile(`(?i)<func\s+([A-Za-z_][A-Za-z0-9_]*)\s*>`)},
	{FuncClose, regexp.MustCompile(`(?i)</func>`)},
	{Include, regexp.MustCompile(`(?i)<template\s+([A-Za-z0-9_][A-Za-z0-9_ \-]*?)\s*>`)},
	{Expression, regexp.MustCompile(`(?s)\{=\s*(.+?)\s*\}`)},
}

// Lead-in sequences that mark the presence of directives. The runtime's fast
// path checks these before paying for a full parse. Directive names accept any
// whitespace after them, so the lead-ins stop at the name: a false positive
// only costs a parse, a false negative would skip compilation entirely.
var leadIns = []string{"<if", "<else", "</if>", "<func", "</func>", "<template", "<setvar", "{="}

// ContainsDirective reports whether source carries any recognized directive
// lead-in sequence. A false result guarantees Parse returns a single Text
// token equal to the input.
func ContainsDirective(source string) bool {
	lower := strings.ToLower(source)
	for _, lead := range leadIns {
		if strings.Contains(lower, lead) {
			return true
		}
	}

	return false
}

// Parse tokenizes source. Malformed captures (an unterminated inline
// expression or setvar body) produce a parse error carrying the byte offset
// and a short context snippet.
func Parse(source string) ([]Token, error) {
	var tokens []Token

	rest := source
	base := 0 // offset of rest within source

	for rest != "" {
		bestStart := -1
		bestPattern := -1
		var bestLoc []int

		for i, p := range patterns {
			loc := p.re.FindStringSubmatchIndex(rest)
			if loc == nil {
				continue
			}
			if bestStart == -1 || loc[0] < bestStart {
				bestStart = loc[0]
				bestPattern = i
				bestLoc = loc
			}
		}

		if bestPattern == -1 {
			if err := checkMalformed(rest, base); err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: Text, Raw: rest, Pos: base})
			break
		}

		// A "{=" or "<setvar" sitting before the earliest match can never be
		// completed by a later pattern; report it instead of swallowing it
		// into a Text token.
		if err := checkMalformed(rest[:bestStart], base); err != nil {
			return nil, err
		}

		if bestStart > 0 {
			tokens = append(tokens, Token{Kind: Text, Raw: rest[:bestStart], Pos: base})
		}

		tokens = append(tokens, buildToken(patterns[bestPattern].kind, rest, bestLoc, base))

		base += bestLoc[1]
		rest = rest[bestLoc[1]:]
	}

	if len(tokens) == 0 {
		tokens = append(tokens, Token{Kind: Text, Raw: "", Pos: 0})
	}

	return tokens, nil
}

func buildToken(kind Kind, rest string, loc []int, base int) Token {
	tok := Token{
		Kind: kind,
		Raw:  rest[loc[0]:loc[1]],
		Pos:  base + loc[0],
	}

	group := func(n int) string {
		start, end := loc[2*n], loc[2*n+1]
		if start < 0 {
			return ""
		}

		return rest[start:end]
	}

	switch kind {
	case IfOpen, ElseIf:
		tok.Condition = strings.TrimSpace(group(1))
	case Expression:
		tok.Condition = strings.TrimSpace(group(1))
	case FuncOpen:
		tok.FunctionName = strings.TrimSpace(group(1))
	case Include:
		tok.IncludeTarget = strings.TrimSpace(group(1))
	case SetVar:
		tok.VariableName = strings.TrimSpace(group(1))
		tok.VariableValue = strings.TrimSpace(group(2))
	}

	return tok
}

var (
	reDanglingExpr   = regexp.MustCompile(`\{=`)
	reDanglingSetVar = regexp.MustCompile(`(?i)<setvar\s`)
)

// checkMalformed reports directive openers in segment that no pattern could
// complete. base is the offset of segment within the original source.
func checkMalformed(segment string, base int) error {
	if loc := reDanglingExpr.FindStringIndex(segment); loc != nil {
		return errors.NewParseError(
			"UNTERMINATED_EXPRESSION",
			"inline expression is missing its closing '}'",
			base+loc[0],
			snippet(segment, loc[0]),
		)
	}

	if loc := reDanglingSetVar.FindStringIndex(segment); loc != nil {
		return errors.NewParseError(
			"UNTERMINATED_SETVAR",
			"setvar directive is missing its closing </setvar>",
			base+loc[0],
			snippet(segment, loc[0]),
		)
	}

	return nil
}

// snippet extracts a short context window around offset for diagnostics.
func snippet(s string, offset int) string {
	end := offset + 40
	if end > len(s) {
		end = len(s)
	}

	return s[offset:end]
}
