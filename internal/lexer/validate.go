package lexer

import (
	"fmt"
	"regexp"
	"strings"
)

// Diagnostic is one finding from the validate-only walk. Offsets are byte
// offsets; Line and Column are 1-based for editor integration.
type Diagnostic struct {
	Message string
	Offset  int
	Line    int
	Column  int
}

// String formats the diagnostic as file-less "line:col: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// Structural markers only; captures are irrelevant for depth checking.
var validateMarkers = []struct {
	re     *regexp.Regexp
	delta  int // conditional depth change
	fdelta int // function depth change
	name   string
}{
	{regexp.MustCompile(`(?is)<if\s+.+?\s+then>`), +1, 0, "if"},
	{regexp.MustCompile(`(?is)<elseif\s+.+?\s+then>`), 0, 0, "elseif"},
	{regexp.MustCompile(`(?i)<else\s*/>`), 0, 0, "else"},
	{regexp.MustCompile(`(?i)</if>`), -1, 0, "endif"},
	{regexp.MustCompile(`(?i)<func\s+[A-Za-z_][A-Za-z0-9_]*\s*>`), 0, +1, "func"},
	{regexp.MustCompile(`(?i)</func>`), 0, -1, "endfunc"},
}

// Validate performs a lightweight nesting-depth walk without building a full
// token stream. It needs neither the security policy nor the compiler, so it
// is cheap enough for editor-time and pre-save checks. An empty result means
// the source would pass the compiler's structural checks.
func Validate(source string) []Diagnostic {
	var diags []Diagnostic

	type hit struct {
		start, end int
		marker     int
	}

	var hits []hit
	for i, m := range validateMarkers {
		for _, loc := range m.re.FindAllStringIndex(source, -1) {
			hits = append(hits, hit{loc[0], loc[1], i})
		}
	}

	// Walk markers in source order. Overlapping matches cannot occur: every
	// marker starts with '<' and consumes through its closing '>'.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].start < hits[j-1].start; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	ifDepth, funcDepth := 0, 0
	for _, h := range hits {
		m := validateMarkers[h.marker]
		switch m.name {
		case "elseif", "else":
			if ifDepth == 0 {
				diags = append(diags, diagnosticAt(source, h.start,
					fmt.Sprintf("<%s> outside of an <if> block", m.name)))
			}
		case "endif":
			if ifDepth == 0 {
				diags = append(diags, diagnosticAt(source, h.start, "</if> without matching <if>"))
				continue
			}
		case "endfunc":
			if funcDepth == 0 {
				diags = append(diags, diagnosticAt(source, h.start, "</func> without matching <func>"))
				continue
			}
		}
		ifDepth += m.delta
		funcDepth += m.fdelta
	}

	if ifDepth > 0 {
		diags = append(diags, diagnosticAt(source, len(source),
			fmt.Sprintf("%d unclosed <if> block(s)", ifDepth)))
	}
	if funcDepth > 0 {
		diags = append(diags, diagnosticAt(source, len(source),
			fmt.Sprintf("%d unclosed <func> block(s)", funcDepth)))
	}

	if loc := reDanglingExpr.FindStringIndex(stripExpressions(source)); loc != nil {
		diags = append(diags, diagnosticAt(source, loc[0], "inline expression is missing its closing '}'"))
	}

	return diags
}

var reWellFormedExpr = regexp.MustCompile(`(?s)\{=\s*(.+?)\s*\}`)

// stripExpressions blanks out well-formed {= ... } spans so only dangling
// openers remain, preserving offsets.
func stripExpressions(source string) string {
	return reWellFormedExpr.ReplaceAllStringFunc(source, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

func diagnosticAt(source string, offset int, message string) Diagnostic {
	line, col := 1, 1
	for _, r := range source[:offset] {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return Diagnostic{Message: message, Offset: offset, Line: line, Column: col}
}
