package evaluator

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"templateguard/internal/policy"
	"templateguard/internal/storage"
)

func eval(t *testing.T, artifact string, vars map[string]cty.Value) string {
	t.Helper()

	out, err := New(nil).Evaluate(artifact, "test", 0, vars)
	require.NoError(t, err)

	return out
}

func TestEvaluate_PlainText(t *testing.T) {
	assert.Equal(t, "hello world", eval(t, "hello world", nil))
}

func TestEvaluate_Variables(t *testing.T) {
	out := eval(t, "Hi ${ name }!", map[string]cty.Value{
		"name": cty.StringVal("Ada"),
	})
	assert.Equal(t, "Hi Ada!", out)
}

func TestEvaluate_Conditionals(t *testing.T) {
	artifact := "%{ if flag }Yes%{ else }No%{ endif }"

	assert.Equal(t, "Yes", eval(t, artifact, map[string]cty.Value{"flag": cty.True}))
	assert.Equal(t, "No", eval(t, artifact, map[string]cty.Value{"flag": cty.False}))
}

func TestEvaluate_NestedConditionalBranches(t *testing.T) {
	// The elseif encoding: each extra branch is an if inside the else arm.
	artifact := "%{ if a }A%{ else }%{ if b }B%{ else }C%{ endif }%{ endif }"

	vars := func(a, b bool) map[string]cty.Value {
		return map[string]cty.Value{"a": cty.BoolVal(a), "b": cty.BoolVal(b)}
	}

	assert.Equal(t, "A", eval(t, artifact, vars(true, true)))
	assert.Equal(t, "B", eval(t, artifact, vars(false, true)))
	assert.Equal(t, "C", eval(t, artifact, vars(false, false)))
}

func TestEvaluate_AllowedFunctions(t *testing.T) {
	cases := map[string]struct {
		artifact string
		want     string
	}{
		"upper_case":    {`${ upper_case("hello") }`, "HELLO"},
		"lower":         {`${ lower("HELLO") }`, "hello"},
		"title":         {`${ title("hello world") }`, "Hello World"},
		"ucfirst":       {`${ ucfirst("hello") }`, "Hello"},
		"reverse":       {`${ reverse("abc") }`, "cba"},
		"trim":          {`${ trim("  x  ") }`, "x"},
		"ltrim":         {`${ ltrim("  x  ") }`, "x  "},
		"rtrim":         {`${ rtrim("  x  ") }`, "  x"},
		"repeat":        {`${ repeat("ab", 3) }`, "ababab"},
		"replace":       {`${ replace("a-b-c", "-", "+") }`, "a+b+c"},
		"substr":        {`${ substr("hello", 1, 3) }`, "ell"},
		"strlen":        {`${ strlen("hello") }`, "5"},
		"contains":      {`${ contains("haystack", "stack") }`, "true"},
		"starts_with":   {`${ starts_with("haystack", "hay") }`, "true"},
		"ends_with":     {`${ ends_with("haystack", "hay") }`, "false"},
		"join":          {`${ join("-", split(",", "a,b,c")) }`, "a-b-c"},
		"format":        {`${ format("%s=%d", "n", 4) }`, "n=4"},
		"int":           {`${ int(3.9) }`, "3"},
		"float":         {`${ float("2.5") }`, "2.5"},
		"abs":           {`${ abs(-4) }`, "4"},
		"ceil":          {`${ ceil(1.1) }`, "2"},
		"floor":         {`${ floor(1.9) }`, "1"},
		"round":         {`${ round(2.5) }`, "3"},
		"max":           {`${ max(1, 7, 3) }`, "7"},
		"min":           {`${ min(4, 2, 9) }`, "2"},
		"number_format": {`${ number_format(1234567.891, 2) }`, "1,234,567.89"},
		"html_escape":   {`${ html_escape("<b>&</b>") }`, "&lt;b&gt;&amp;&lt;/b&gt;"},
		"url_encode":    {`${ url_encode("a b&c") }`, "a+b%26c"},
		"url_decode":    {`${ url_decode("a+b%26c") }`, "a b&c"},
		"base64_encode": {`${ base64_encode("hi") }`, "aGk="},
		"base64_decode": {`${ base64_decode("aGk=") }`, "hi"},
		"hex_encode":    {`${ hex_encode("hi") }`, "6869"},
		"md5":           {`${ md5("hello") }`, "5d41402abc4b2a76b9719d911017c592"},
		"sha1":          {`${ sha1("hello") }`, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		"crc32":         {`${ crc32("hello") }`, "3610a686"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, eval(t, tc.artifact, nil))
		})
	}
}

func TestEvaluate_Sha256(t *testing.T) {
	out := eval(t, `${ sha256("hello") }`, nil)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", out)
}

func TestEvaluate_RepeatBounded(t *testing.T) {
	_, err := New(nil).Evaluate(`${ repeat("x", 100000) }`, "test", 0, nil)
	assert.Error(t, err)
}

func TestEvaluate_SetVarGetVar(t *testing.T) {
	t.Run("reads observe earlier writes", func(t *testing.T) {
		out := eval(t, `${ setvar("greeting", "hi") }${ upper_case(getvar("greeting")) }`, nil)
		assert.Equal(t, "HI", out)
	})

	t.Run("unset variable reads empty", func(t *testing.T) {
		assert.Equal(t, "", eval(t, `${ getvar("missing") }`, nil))
	})

	t.Run("scope does not leak between evaluations", func(t *testing.T) {
		e := New(nil)

		_, err := e.Evaluate(`${ setvar("x", "1") }`, "test", 0, nil)
		require.NoError(t, err)

		out, err := e.Evaluate(`${ getvar("x") }`, "test", 0, nil)
		require.NoError(t, err)
		assert.Equal(t, "", out)
	})
}

func TestEvaluate_Include(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Put("footer", 0, "-- the footer --")

	out, err := New(store).Evaluate(`body ${ include("footer") }`, "page", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "body -- the footer --", out)
}

func TestEvaluate_IncludeWithoutStore(t *testing.T) {
	out, err := New(nil).Evaluate(`x${ include("footer") }y`, "page", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "xy", out)
}

func TestEvaluate_MalformedArtifact(t *testing.T) {
	_, err := New(nil).Evaluate("%{ if }", "test", 0, nil)
	assert.Error(t, err)
}

func TestEvaluate_UnknownFunctionRejected(t *testing.T) {
	_, err := New(nil).Evaluate(`${ dangerous_call() }`, "test", 0, nil)
	assert.Error(t, err, "nothing outside the function table is callable")
}

func TestFunctionTableMatchesPolicy(t *testing.T) {
	// The policy's allow-list and the evaluator's implementation table must
	// name exactly the same functions.
	allowed := policy.New().AllowedFunctions()
	implemented := AllowedFunctionNames()

	sort.Strings(allowed)
	sort.Strings(implemented)

	assert.Equal(t, allowed, implemented)
}
