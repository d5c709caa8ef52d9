//go:build property

package compiler

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"templateguard/internal/lexer"
	"templateguard/internal/policy"
)

// TestCompilerProperties validates structural guarantees of compilation
func TestCompilerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: directive-free text always compiles, and unescaping the
	// artifact recovers the input byte for byte
	properties.Property("plain text round-trips through compilation", prop.ForAll(
		func(text string) bool {
			if lexer.ContainsDirective(text) {
				return true
			}

			tokens, err := lexer.Parse(text)
			if err != nil {
				return false
			}

			out, err := New(policy.New()).Compile(tokens)
			if err != nil {
				return false
			}

			unescaped := strings.ReplaceAll(out, "$${", "${")
			unescaped = strings.ReplaceAll(unescaped, "%%{", "%{")

			return unescaped == text
		},
		gen.AnyString(),
	))

	// Property: N nested conditionals produce exactly N closing groupings
	properties.Property("nested conditionals stay balanced", prop.ForAll(
		func(depth int) bool {
			if depth < 1 || depth > 30 {
				return true
			}

			var source strings.Builder
			for i := 0; i < depth; i++ {
				source.WriteString("<if $x then>")
			}
			source.WriteString("body")
			for i := 0; i < depth; i++ {
				source.WriteString("</if>")
			}

			tokens, err := lexer.Parse(source.String())
			if err != nil {
				return false
			}

			out, err := New(policy.New()).Compile(tokens)
			if err != nil {
				return false
			}

			return strings.Count(out, "%{ if ") == depth &&
				strings.Count(out, "%{ endif }") == depth
		},
		gen.IntRange(1, 30),
	))

	// Property: every elseif branch adds exactly one extra closing grouping
	properties.Property("elseif branches each close once", prop.ForAll(
		func(branches int) bool {
			if branches < 0 || branches > 20 {
				return true
			}

			var source strings.Builder
			source.WriteString("<if $a then>x")
			for i := 0; i < branches; i++ {
				source.WriteString("<elseif $b then>y")
			}
			source.WriteString("</if>")

			tokens, err := lexer.Parse(source.String())
			if err != nil {
				return false
			}

			out, err := New(policy.New()).Compile(tokens)
			if err != nil {
				return false
			}

			return strings.Count(out, "%{ endif }") == branches+1
		},
		gen.IntRange(0, 20),
	))

	// Property: compilation of the same token stream is deterministic
	properties.Property("compilation is idempotent", prop.ForAll(
		func(cond string, body string) bool {
			if strings.ContainsAny(cond, "<>{}$%()\"`\\") || strings.TrimSpace(cond) == "" {
				return true
			}
			if lexer.ContainsDirective(body) {
				return true
			}

			source := "<if $" + sanitizeIdent(cond) + " then>" + body + "</if>"

			tokens, err := lexer.Parse(source)
			if err != nil {
				return true
			}

			c := New(policy.New())

			first, err1 := c.Compile(tokens)
			second, err2 := c.Compile(tokens)

			if err1 != nil || err2 != nil {
				return (err1 == nil) == (err2 == nil)
			}

			return first == second
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	// Property: an unmatched close is always a compile error, never a panic
	properties.Property("unmatched close always errors", prop.ForAll(
		func(prefix string) bool {
			if lexer.ContainsDirective(prefix) {
				return true
			}

			tokens, err := lexer.Parse(prefix + "</if>")
			if err != nil {
				return true
			}

			_, err = New(policy.New()).Compile(tokens)

			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	b.WriteByte('v')
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
