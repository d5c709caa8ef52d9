package evaluator

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"html"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// baseFunctions implements the security policy's allow-list, one cty function
// per allowed name. The policy package owns the list of names; a test asserts
// the two stay in lockstep.
var baseFunctions = map[string]function.Function{
	// string transforms
	"lower":       stdlib.LowerFunc,
	"upper":       stdlib.UpperFunc,
	"lower_case":  stdlib.LowerFunc,
	"upper_case":  stdlib.UpperFunc,
	"title":       stringFunc(func(s string) string { return cases.Title(language.Und).String(s) }),
	"ucfirst":     stringFunc(ucfirst),
	"reverse":     stdlib.ReverseFunc,
	"trim":        stringFunc(strings.TrimSpace),
	"ltrim":       stringFunc(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
	"rtrim":       stringFunc(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
	"repeat":      repeatFunc,
	"replace":     stdlib.ReplaceFunc,
	"substr":      stdlib.SubstrFunc,
	"strlen":      stdlib.StrlenFunc,
	"length":      stdlib.StrlenFunc,
	"contains":    stringPredicateFunc(strings.Contains),
	"starts_with": stringPredicateFunc(strings.HasPrefix),
	"ends_with":   stringPredicateFunc(strings.HasSuffix),
	"split":       stdlib.SplitFunc,
	"join":        stdlib.JoinFunc,
	"format":      stdlib.FormatFunc,

	// numeric coercions and helpers
	"int":           stdlib.IntFunc,
	"float":         floatFunc,
	"abs":           stdlib.AbsoluteFunc,
	"ceil":          stdlib.CeilFunc,
	"floor":         stdlib.FloorFunc,
	"round":         roundFunc,
	"max":           stdlib.MaxFunc,
	"min":           stdlib.MinFunc,
	"number_format": numberFormatFunc,

	// encoding
	"html_escape":   stringFunc(html.EscapeString),
	"url_encode":    stringFunc(url.QueryEscape),
	"url_decode":    urlDecodeFunc,
	"base64_encode": stringFunc(func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }),
	"base64_decode": base64DecodeFunc,
	"hex_encode":    stringFunc(func(s string) string { return hex.EncodeToString([]byte(s)) }),

	// one-way hashing
	"md5": stringFunc(func(s string) string {
		sum := md5.Sum([]byte(s))

		return hex.EncodeToString(sum[:])
	}),
	"sha1": stringFunc(func(s string) string {
		sum := sha1.Sum([]byte(s))

		return hex.EncodeToString(sum[:])
	}),
	"sha256": stringFunc(func(s string) string {
		sum := sha256.Sum256([]byte(s))

		return hex.EncodeToString(sum[:])
	}),
	"crc32": stringFunc(func(s string) string {
		return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(s)))
	}),
}

// stringFunc lifts a string-to-string transform into a cty function.
func stringFunc(f func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(f(args[0].AsString())), nil
		},
	})
}

// stringPredicateFunc lifts a two-string predicate into a cty function.
func stringPredicateFunc(f func(string, string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
			{Name: "other", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.BoolVal(f(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

func ucfirst(s string) string {
	if s == "" {
		return s
	}

	r, size := utf8.DecodeRuneInString(s)

	return string(unicode.ToUpper(r)) + s[size:]
}

// repeatBound caps repetition so a template cannot balloon output.
const repeatBound = 10000

var repeatFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
		{Name: "count", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		n, _ := args[1].AsBigFloat().Int64()
		if n < 0 || n > repeatBound {
			return cty.NilVal, fmt.Errorf("repeat count %d out of range [0, %d]", n, repeatBound)
		}

		return cty.StringVal(strings.Repeat(args[0].AsString(), int(n))), nil
	},
})

var floatFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.DynamicPseudoType},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		v, err := convert.Convert(args[0], cty.Number)
		if err != nil {
			return cty.NilVal, err
		}

		return v, nil
	},
})

var roundFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		f, _ := args[0].AsBigFloat().Float64()

		return cty.NumberFloatVal(math.Round(f)), nil
	},
})

var numberFormatFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
		{Name: "decimals", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		f, _ := args[0].AsBigFloat().Float64()
		decimals, _ := args[1].AsBigFloat().Int64()
		if decimals < 0 || decimals > 20 {
			return cty.NilVal, fmt.Errorf("decimals %d out of range [0, 20]", decimals)
		}

		return cty.StringVal(groupThousands(strconv.FormatFloat(f, 'f', int(decimals), 64))), nil
	},
})

// groupThousands inserts comma separators into the integer part of a
// formatted decimal number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, fracPart := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot:]
	}

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	return sign + grouped.String() + fracPart
}

var urlDecodeFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		decoded, err := url.QueryUnescape(args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}

		return cty.StringVal(decoded), nil
	},
})

var base64DecodeFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		decoded, err := base64.StdEncoding.DecodeString(args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}

		return cty.StringVal(string(decoded)), nil
	},
})

// AllowedFunctionNames returns the names implemented by the evaluator's base
// table, for parity checks against the security policy.
func AllowedFunctionNames() []string {
	names := make([]string, 0, len(baseFunctions))
	for name := range baseFunctions {
		names = append(names, name)
	}

	return names
}
