// Package evaluator executes compiled artifacts.
//
// A compiled artifact is an HCL template string; evaluation parses it with
// hclsyntax and resolves it against an evaluation context holding the host's
// variable scope and a function table containing exactly the security
// policy's allow-list, plus three runtime bindings (include, setvar, getvar)
// that the compiler emits for the corresponding directives. There is no
// general-purpose interpreter anywhere in this path: an artifact can only
// ever call what the table names.
package evaluator

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"templateguard/internal/errors"
	"templateguard/internal/storage"
)

// Evaluator renders compiled artifacts against a variable scope.
type Evaluator struct {
	store storage.TemplateStore
}

// New creates an evaluator. store backs the include binding; it may be nil
// for templates that never include.
func New(store storage.TemplateStore) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate renders artifact. identity names the template in diagnostics,
// scopeID is forwarded to include fetches, and vars is the host's variable
// scope for the render.
func (e *Evaluator) Evaluate(artifact, identity string, scopeID int, vars map[string]cty.Value) (string, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(artifact), identity, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return "", errors.NewInternalError(
			"ARTIFACT_PARSE",
			"compiled artifact does not parse: "+diags.Error(),
			diags,
		)
	}

	if vars == nil {
		vars = map[string]cty.Value{}
	}

	ctx := &hcl.EvalContext{
		Variables: vars,
		Functions: e.functionTable(scopeID),
	}

	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return "", errors.NewInternalError(
			"ARTIFACT_EVAL",
			"evaluating compiled artifact: "+diags.Error(),
			diags,
		)
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", errors.NewInternalError("ARTIFACT_RESULT", "stringifying artifact result", err)
	}

	return str.AsString(), nil
}

// functionTable builds the per-evaluation function table: the allow-list
// functions plus the runtime bindings. The scoped variable table behind
// setvar/getvar lives for exactly one evaluation; HCL template parts evaluate
// in source order, so reads observe earlier writes.
func (e *Evaluator) functionTable(scopeID int) map[string]function.Function {
	table := make(map[string]function.Function, len(baseFunctions)+3)
	for name, fn := range baseFunctions {
		table[name] = fn
	}

	scoped := map[string]cty.Value{}

	table["setvar"] = function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
			{Name: "value", Type: cty.DynamicPseudoType},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			scoped[args[0].AsString()] = args[1]

			// Assignments produce no visible output.
			return cty.StringVal(""), nil
		},
	})

	table["getvar"] = function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if v, ok := scoped[args[0].AsString()]; ok {
				return v, nil
			}

			return cty.StringVal(""), nil
		},
	})

	table["include"] = function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if e.store == nil {
				return cty.StringVal(""), nil
			}

			text, err := e.store.GetOriginal(args[0].AsString(), scopeID, storage.EscapeNone)
			if err != nil {
				return cty.NilVal, err
			}

			return cty.StringVal(text), nil
		},
	})

	return table
}
