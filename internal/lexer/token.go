package lexer

import "fmt"

// Kind identifies the lexical category of a token.
type Kind int

const (
	// Text is a verbatim text segment between directives.
	Text Kind = iota
	// IfOpen is a conditional opener: <if EXPR then>.
	IfOpen
	// ElseIf is a chained branch: <elseif EXPR then>.
	ElseIf
	// Else is the fallback branch marker: <else />.
	Else
	// IfClose closes a conditional: </if>.
	IfClose
	// FuncOpen starts a function wrapper: <func NAME>.
	FuncOpen
	// FuncClose closes a function wrapper: </func>.
	FuncClose
	// Include pulls in another template by name: <template NAME>.
	Include
	// Expression is an inline expression: {= EXPR }.
	Expression
	// SetVar assigns into the scoped variable table: <setvar NAME>EXPR</setvar>.
	SetVar
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Text:
		return "Text"
	case IfOpen:
		return "IfOpen"
	case ElseIf:
		return "ElseIf"
	case Else:
		return "Else"
	case IfClose:
		return "IfClose"
	case FuncOpen:
		return "FuncOpen"
	case FuncClose:
		return "FuncClose"
	case Include:
		return "Include"
	case Expression:
		return "Expression"
	case SetVar:
		return "SetVar"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Token is one immutable lexical unit. Nesting balance is deliberately not
// checked here; the compiler's stack discipline owns structural validation.
type Token struct {
	Kind Kind
	// Raw is the literal text segment for Text tokens and the full matched
	// directive span otherwise.
	Raw string
	// Pos is the byte offset of the token in the source, for diagnostics.
	Pos int

	// Condition holds the condition text for IfOpen and ElseIf, or the
	// expression text for Expression tokens.
	Condition string
	// FunctionName holds the wrapped function name for FuncOpen.
	FunctionName string
	// VariableName and VariableValue hold the assignment parts for SetVar.
	VariableName  string
	VariableValue string
	// IncludeTarget holds the referenced template name for Include.
	IncludeTarget string
}
