// Package policy is the pure validation gate consulted by the compiler for
// every function call and every free-form expression.
//
// Function names are checked against a strict, closed allow-list: anything
// absent is rejected. Free-form expressions pass through a fixed set of
// forbidden structural patterns first (code evaluation, process spawning,
// file access, dynamic inclusion, indirection, command substitution, dynamic
// dispatch) and then every bare identifier call inside them is re-checked
// against the same allow-list. The policy knows nothing about tokens or
// templates — it is a string-in/string-or-error-out gate, loaded once and
// immutable for the life of the process.
package policy

import (
	"regexp"
	"strings"

	"templateguard/internal/errors"
)

type forbiddenPattern struct {
	re     *regexp.Regexp
	reason string
}

// Policy holds the immutable allow-list and forbidden-pattern set.
type Policy struct {
	allowed   map[string]struct{}
	names     []string
	forbidden []forbiddenPattern
}

// allowedFunctions is the closed set of function names permitted inside
// directives and expressions: string case/trim/escape transforms, numeric
// coercions, length helpers, encoding helpers, and one-way hashing.
var allowedFunctions = []string{
	// string transforms
	"lower", "upper", "lower_case", "upper_case", "title", "ucfirst", "reverse",
	"trim", "ltrim", "rtrim", "repeat", "replace",
	"substr", "strlen", "length", "contains",
	"starts_with", "ends_with", "split", "join", "format",
	// numeric coercions and helpers
	"int", "float", "abs", "ceil", "floor",
	"round", "max", "min", "number_format",
	// encoding
	"html_escape", "url_encode", "url_decode",
	"base64_encode", "base64_decode", "hex_encode",
	// one-way hashing
	"md5", "sha1", "sha256", "crc32",
}

// forbiddenExpressionPatterns reject expressions outright before any
// call-site scanning happens. The list is a denylist over one sub-grammar and
// is deliberately aggressive: matching a pattern inside a string literal
// still rejects the expression.
var forbiddenExpressionPatterns = []forbiddenPattern{
	{regexp.MustCompile(`(?i)\b(eval|assert|exec|system|shell_exec|passthru|popen|proc_open|spawn|fork)\s*\(`), "code execution or process spawning"},
	{regexp.MustCompile(`(?i)\b(file|file_get_contents|file_put_contents|fopen|readfile|read_file|write_file|unlink|open)\s*\(`), "file read or write"},
	{regexp.MustCompile(`(?i)\b(include|include_once|require|require_once|import|template)\s*\(`), "dynamic inclusion of source"},
	{regexp.MustCompile(`(?i)\b(call_user_func|call_user_func_array|call|apply|invoke|dispatch)\s*\(`), "dynamic invocation of a named function"},
	{regexp.MustCompile(`(?i)\breflect\w*\s*\(`), "reflection-style indirection"},
	{regexp.MustCompile(`\$\s*\$`), "variable-of-a-variable indirection"},
	{regexp.MustCompile(`\$\s*\{`), "indirect variable reference"},
	{regexp.MustCompile("`"), "command substitution"},
	{regexp.MustCompile(`(?i)\bsetvar\s*\(`), "assignment outside of a setvar directive"},
}

// runtimeBindings are callable from expressions but are not transformations:
// they never pass ValidateFunction, so a <func> directive cannot name them.
// getvar reads the scoped variable table populated by <setvar> directives.
var runtimeBindings = map[string]struct{}{
	"getvar": {},
}

// reCallSite finds bare identifier( call patterns inside an expression.
var reCallSite = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// New builds the process-wide policy. The returned value is immutable; there
// is no runtime reconfiguration path.
func New() *Policy {
	allowed := make(map[string]struct{}, len(allowedFunctions))
	for _, name := range allowedFunctions {
		allowed[name] = struct{}{}
	}

	names := make([]string, len(allowedFunctions))
	copy(names, allowedFunctions)

	return &Policy{
		allowed:   allowed,
		names:     names,
		forbidden: forbiddenExpressionPatterns,
	}
}

// AllowedFunctions returns a copy of the allow-list in declaration order.
// The evaluator's function table is built from exactly this set.
func (p *Policy) AllowedFunctions() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)

	return out
}

// ValidateFunction checks name against the allow-list, case-insensitively,
// after trimming surrounding space. On success it returns the canonical
// (lowered, trimmed) name.
func (p *Policy) ValidateFunction(name string) (string, error) {
	canonical := strings.ToLower(strings.TrimSpace(name))

	if canonical == "" {
		return "", errors.NewSecurityError(
			errors.CodeForbiddenCall,
			"empty function name",
			name,
		)
	}

	if _, ok := p.allowed[canonical]; !ok {
		return "", errors.NewSecurityError(
			errors.CodeForbiddenCall,
			"function is not on the allow-list",
			canonical,
		)
	}

	return canonical, nil
}

// ValidateExpression checks a free-form expression. It rejects outright on
// any forbidden structural pattern, then re-applies ValidateFunction to every
// bare identifier call found inside, so expressions can only call whitelisted
// functions even without a <func> directive. On success the trimmed
// expression is returned unchanged.
func (p *Policy) ValidateExpression(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)

	if trimmed == "" {
		return "", errors.NewSecurityError(
			errors.CodeForbiddenExpr,
			"empty expression",
			expr,
		)
	}

	for _, fp := range p.forbidden {
		if loc := fp.re.FindString(trimmed); loc != "" {
			return "", errors.NewSecurityError(
				errors.CodeForbiddenExpr,
				"expression contains forbidden construct: "+fp.reason,
				loc,
			)
		}
	}

	for _, m := range reCallSite.FindAllStringSubmatch(trimmed, -1) {
		if _, ok := runtimeBindings[strings.ToLower(m[1])]; ok {
			continue
		}
		if _, err := p.ValidateFunction(m[1]); err != nil {
			return "", err
		}
	}

	return trimmed, nil
}
