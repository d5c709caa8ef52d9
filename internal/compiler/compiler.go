// Package compiler turns a token sequence into a single executable-string
// artifact in HCL template syntax.
//
// The emitted artifact reproduces the source's conditional and function
// wrapping semantics exactly: conditionals become %{ if } / %{ else } /
// %{ endif } sequences, chained <elseif> branches become nested conditionals
// (one closing grouping is emitted per opened branch), function wrappers
// become interpolated calls over their quoted body, and inline expressions
// become interpolations. Every condition, expression and function name is
// validated by the security policy before anything is emitted, and every
// rewritten condition and expression must parse as HCL so the artifact as a
// whole is guaranteed to parse; a policy rejection or syntax failure is
// re-wrapped as a compile error carrying the originating token so callers
// handle a single error type.
//
// The compiler is re-entrant: every Compile call starts from an empty frame
// stack and shares no mutable state.
package compiler

import (
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"templateguard/internal/errors"
	"templateguard/internal/lexer"
	"templateguard/internal/policy"
)

// Compiler consumes token sequences and emits compiled artifacts.
type Compiler struct {
	policy *policy.Policy
}

// New creates a compiler validating against the given policy.
func New(p *policy.Policy) *Compiler {
	return &Compiler{policy: p}
}

// condFrame tracks one open conditional. branches counts opened <elseif>
// branches; each one nests a fresh conditional, so the matching </if> must
// emit branches+1 closing groupings.
type condFrame struct {
	branches int
	hasElse  bool
}

// Compile emits the artifact for tokens. Structural imbalance is reported,
// never silently repaired.
func (c *Compiler) Compile(tokens []lexer.Token) (string, error) {
	var out strings.Builder

	var stack []condFrame
	funcDepth := 0

	for _, tok := range tokens {
		switch tok.Kind {
		case lexer.Text:
			out.WriteString(escapeText(tok.Raw, funcDepth > 0))

		case lexer.IfOpen:
			cond, err := c.checkExpression(tok.Condition, tok)
			if err != nil {
				return "", err
			}
			stack = append(stack, condFrame{})
			out.WriteString("%{ if ")
			out.WriteString(cond)
			out.WriteString(" }")

		case lexer.ElseIf:
			if len(stack) == 0 {
				return "", errors.NewCompileError(
					errors.CodeElseIfWithoutIf,
					"<elseif> without an open <if>",
					nil,
				).WithFragment(tok.Raw).WithOffset(tok.Pos)
			}
			cond, err := c.checkExpression(tok.Condition, tok)
			if err != nil {
				return "", err
			}
			stack[len(stack)-1].branches++
			out.WriteString("%{ else }%{ if ")
			out.WriteString(cond)
			out.WriteString(" }")

		case lexer.Else:
			if len(stack) == 0 {
				return "", errors.NewCompileError(
					errors.CodeElseWithoutIf,
					"<else /> without an open <if>",
					nil,
				).WithFragment(tok.Raw).WithOffset(tok.Pos)
			}
			stack[len(stack)-1].hasElse = true
			out.WriteString("%{ else }")

		case lexer.IfClose:
			if len(stack) == 0 {
				return "", errors.NewCompileError(
					errors.CodeUnbalancedIf,
					"</if> without matching <if>",
					nil,
				).WithFragment(tok.Raw).WithOffset(tok.Pos)
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !frame.hasElse {
				// Explicit empty fallback keeps falsy conditionals rendering
				// as an empty string rather than an unset branch.
				out.WriteString("%{ else }")
			}
			for i := 0; i <= frame.branches; i++ {
				out.WriteString("%{ endif }")
			}

		case lexer.FuncOpen:
			name, err := c.policy.ValidateFunction(tok.FunctionName)
			if err != nil {
				return "", wrapSecurity(err, tok)
			}
			funcDepth++
			out.WriteString("${ ")
			out.WriteString(name)
			out.WriteString(`("`)

		case lexer.FuncClose:
			if funcDepth == 0 {
				return "", errors.NewCompileError(
					errors.CodeUnbalancedFunc,
					"</func> without matching <func>",
					nil,
				).WithFragment(tok.Raw).WithOffset(tok.Pos)
			}
			funcDepth--
			out.WriteString(`") }`)

		case lexer.Include:
			out.WriteString(`${ include("`)
			out.WriteString(sanitizeIncludeTarget(tok.IncludeTarget))
			out.WriteString(`") }`)

		case lexer.Expression:
			expr, err := c.checkExpression(tok.Condition, tok)
			if err != nil {
				return "", err
			}
			out.WriteString("${ ")
			out.WriteString(expr)
			out.WriteString(" }")

		case lexer.SetVar:
			value, err := c.checkExpression(tok.VariableValue, tok)
			if err != nil {
				return "", err
			}
			out.WriteString(`${ setvar("`)
			out.WriteString(sanitizeVariableName(tok.VariableName))
			out.WriteString(`", `)
			out.WriteString(value)
			out.WriteString(") }")
		}
	}

	if len(stack) > 0 {
		return "", errors.NewCompileError(
			errors.CodeUnbalancedIf,
			"<if> block is never closed",
			nil,
		)
	}
	if funcDepth > 0 {
		return "", errors.NewCompileError(
			errors.CodeUnbalancedFunc,
			"<func> block is never closed",
			nil,
		)
	}

	return out.String(), nil
}

// checkExpression gates one condition or expression: policy validation,
// variable rewriting, then an HCL parse of the rewritten form. The parse
// guarantees the finished artifact parses too, so a typo in a condition
// fails here, where the runtime can degrade, instead of at the host's
// evaluation stage.
func (c *Compiler) checkExpression(raw string, tok lexer.Token) (string, error) {
	expr, err := c.policy.ValidateExpression(raw)
	if err != nil {
		return "", wrapSecurity(err, tok)
	}

	rewritten := rewriteVariables(expr)

	if _, diags := hclsyntax.ParseExpression([]byte(rewritten), "", hcl.Pos{Line: 1, Column: 1}); diags.HasErrors() {
		return "", errors.NewCompileError(
			errors.CodeInvalidExpr,
			"expression in "+tok.Kind.String()+" directive is not syntactically valid",
			diags,
		).WithFragment(tok.Raw).WithOffset(tok.Pos)
	}

	return rewritten, nil
}

// wrapSecurity converts a policy rejection into a compile error carrying the
// originating token, so the runtime only ever sees compile errors.
func wrapSecurity(err error, tok lexer.Token) error {
	return errors.NewCompileError(
		errors.CodeForbiddenExpr,
		"security policy rejected "+tok.Kind.String()+" directive",
		err,
	).WithFragment(tok.Raw).WithOffset(tok.Pos)
}

var (
	reIncludeSanitizer = regexp.MustCompile(`[^A-Za-z0-9_ \-]`)
	reVarNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// rewriteVariables turns $name sigils into bare variable references
// understood by the evaluation context. Sigils inside double-quoted string
// literals are left alone. $$ indirection never reaches here; the policy
// rejects it first.
func rewriteVariables(expr string) string {
	var out strings.Builder
	out.Grow(len(expr))

	inString := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]

		if inString && c == '\\' && i+1 < len(expr) {
			out.WriteByte(c)
			i++
			out.WriteByte(expr[i])

			continue
		}

		if c == '"' {
			inString = !inString
		}

		if !inString && c == '$' && i+1 < len(expr) && isIdentStart(expr[i+1]) {
			continue // drop the sigil, keep the identifier
		}

		out.WriteByte(c)
	}

	return out.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// sanitizeIncludeTarget strips everything outside identifier, space and
// hyphen characters from an include target.
func sanitizeIncludeTarget(name string) string {
	return strings.TrimSpace(reIncludeSanitizer.ReplaceAllString(name, ""))
}

// sanitizeVariableName strips everything outside identifier characters.
func sanitizeVariableName(name string) string {
	return reVarNameSanitizer.ReplaceAllString(name, "")
}

// escapeText escapes a literal text segment for the artifact. Interpolation
// and directive openers are always neutralized; inside a function wrapper the
// text sits in a quoted HCL string, so quotes and backslashes are escaped
// too.
func escapeText(s string, inQuotedString bool) string {
	if inQuotedString {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		s = strings.ReplaceAll(s, "\n", `\n`)
		s = strings.ReplaceAll(s, "\r", `\r`)
		s = strings.ReplaceAll(s, "\t", `\t`)
	}
	s = strings.ReplaceAll(s, "${", "$${")
	s = strings.ReplaceAll(s, "%{", "%%{")

	return s
}
