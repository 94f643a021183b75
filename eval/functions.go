package eval

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wbrown/janus-sparql/bindings"
	"github.com/wbrown/janus-sparql/term"
)

// regexTimeout bounds REGEX/REPLACE pattern compilation per §5 (100ms).
const regexTimeout = 100 * time.Millisecond

// evalCall dispatches the §4.2 built-in function table. Unknown functions
// and argument errors yield Unbound per §4.2's "unspecified errors yield
// Unbound" rule.
func (e *Evaluator) evalCall(tbl *bindings.Table, c CallExpr) term.Value {
	name := strings.ToUpper(c.Name)

	// Casts are recognized by their xsd:-prefixed name (see castTarget)
	// before the upper-cased built-in table is consulted.
	if iri, isCast := castTarget(c.Name); isCast {
		if len(c.Args) != 1 {
			return term.UnboundValue
		}
		return e.evalCast(e.Eval(tbl, c.Args[0]), iri)
	}

	args := make([]term.Value, len(c.Args))
	// IF and COALESCE need lazy/short-circuit evaluation, so they read
	// c.Args directly instead of the eagerly evaluated args slice below.
	switch name {
	case "IF":
		if len(c.Args) != 3 {
			return term.UnboundValue
		}
		cond := e.Eval(tbl, c.Args[0])
		b, ok := AsBoolean(cond)
		if !ok {
			return term.UnboundValue
		}
		if b {
			return e.Eval(tbl, c.Args[1])
		}
		return e.Eval(tbl, c.Args[2])
	case "COALESCE":
		for _, a := range c.Args {
			v := e.Eval(tbl, a)
			if !v.IsUnbound() {
				return v
			}
		}
		return term.UnboundValue
	}

	for i, a := range c.Args {
		args[i] = e.Eval(tbl, a)
	}

	switch name {
	case "BOUND":
		if len(args) != 1 {
			return term.UnboundValue
		}
		return term.Bool(!args[0].IsUnbound())
	case "STR":
		if len(args) != 1 || args[0].IsUnbound() {
			return term.UnboundValue
		}
		return term.PlainString(args[0].Lex())
	case "STRLEN":
		s, ok := lexOf(args, 1)
		if !ok {
			return term.UnboundValue
		}
		return term.Int(int64(utf8.RuneCountInString(s)))
	case "UCASE":
		return caseFn(args, strings.ToUpper)
	case "LCASE":
		return caseFn(args, strings.ToLower)
	case "ENCODE_FOR_URI":
		s, ok := lexOf(args, 1)
		if !ok {
			return term.UnboundValue
		}
		return term.PlainString(encodeForURI(s))
	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			if a.IsUnbound() {
				return term.UnboundValue
			}
			b.WriteString(a.Lex())
		}
		return term.PlainString(b.String())
	case "SUBSTR":
		return substrFn(args)
	case "STRBEFORE":
		return strBeforeAfter(args, true)
	case "STRAFTER":
		return strBeforeAfter(args, false)
	case "REPLACE":
		return replaceFn(args)
	case "CONTAINS":
		return strPredicate(args, strings.Contains)
	case "STRSTARTS":
		return strPredicate(args, strings.HasPrefix)
	case "STRENDS":
		return strPredicate(args, strings.HasSuffix)
	case "STRDT":
		return strDT(args)
	case "STRLANG":
		return strLang(args)
	case "UUID":
		return term.Uri("urn:uuid:" + uuid.New().String())
	case "STRUUID":
		return term.PlainString(uuid.New().String())
	case "NOW":
		if e.Now != nil {
			return term.TypedString(e.Now(), "http://www.w3.org/2001/XMLSchema#dateTime")
		}
		return term.TypedString(time.Now().UTC().Format(time.RFC3339), "http://www.w3.org/2001/XMLSchema#dateTime")
	case "RAND":
		if e.Rand != nil {
			return term.Double(e.Rand())
		}
		return term.Double(0)
	case "ABS":
		return mathFn1(args, math.Abs)
	case "CEIL":
		return mathFn1(args, math.Ceil)
	case "FLOOR":
		return mathFn1(args, math.Floor)
	case "ROUND":
		return roundFn(args)
	case "MD5":
		return digestFn(args, md5.Sum)
	case "SHA1":
		return digestFn(args, sha1.Sum)
	case "SHA256":
		return digestFnSlice(args, func(b []byte) []byte { h := sha256.Sum256(b); return h[:] })
	case "SHA384":
		return digestFnSlice(args, sha384Sum)
	case "SHA512":
		return digestFnSlice(args, func(b []byte) []byte { h := sha512.Sum512(b); return h[:] })
	case "YEAR", "MONTH", "DAY", "HOURS", "MINUTES", "SECONDS":
		return dateTimeFieldFn(args, name)
	case "ISIRI", "ISURI":
		if len(args) != 1 {
			return term.UnboundValue
		}
		return term.Bool(args[0].Kind == term.UriValue)
	case "ISLITERAL":
		if len(args) != 1 {
			return term.UnboundValue
		}
		return term.Bool(args[0].Kind == term.StringValue || args[0].Kind == term.IntegerValue ||
			args[0].Kind == term.DoubleValue || args[0].Kind == term.BooleanValue)
	case "ISBLANK":
		return term.Bool(false) // blank-node Values are not represented in this evaluator
	case "ISNUMERIC":
		if len(args) != 1 {
			return term.UnboundValue
		}
		return term.Bool(args[0].Kind == term.IntegerValue || args[0].Kind == term.DoubleValue)
	case "DATATYPE":
		if len(args) != 1 || args[0].IsUnbound() {
			return term.UnboundValue
		}
		dt := args[0].Datatype()
		if dt == "" {
			return term.UnboundValue
		}
		return term.Uri(dt)
	case "LANG":
		if len(args) != 1 {
			return term.UnboundValue
		}
		return term.PlainString(args[0].Lang())
	case "LANGMATCHES":
		return langMatches(args)
	case "SAMETERM":
		if len(args) != 2 {
			return term.UnboundValue
		}
		return term.Bool(args[0].Kind == args[1].Kind && args[0].Lexical == args[1].Lexical &&
			args[0].Int == args[1].Int && args[0].Float == args[1].Float && args[0].Bool == args[1].Bool)
	case "REGEX":
		return regexFn(args)
	}
	return term.UnboundValue
}

func lexOf(args []term.Value, n int) (string, bool) {
	if len(args) < n || args[0].IsUnbound() {
		return "", false
	}
	return args[0].Lex(), true
}

// withSuffix rebuilds a literal carrying v's language tag or datatype
// suffix, per the "preserves suffix" rule used by UCASE/LCASE/SUBSTR/
// STRBEFORE/STRAFTER.
func withSuffix(v term.Value, newLex string) term.Value {
	if v.Kind != term.StringValue {
		return term.PlainString(newLex)
	}
	if lang := v.Lang(); lang != "" {
		return term.LangString(newLex, lang)
	}
	if dt := v.Datatype(); dt != "" && dt != term.XsdStringIri {
		return term.TypedString(newLex, dt)
	}
	return term.PlainString(newLex)
}

func caseFn(args []term.Value, f func(string) string) term.Value {
	if len(args) != 1 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	return withSuffix(args[0], f(args[0].Lex()))
}

func encodeForURI(s string) string {
	// RFC 3986 unreserved set: ALPHA / DIGIT / "-" / "." / "_" / "~".
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func substrFn(args []term.Value) term.Value {
	if len(args) < 2 || len(args) > 3 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	startF, ok := CoerceToNumber(args[1])
	if !ok {
		return term.UnboundValue
	}
	runes := []rune(args[0].Lex())
	start := int(startF)
	if start < 1 {
		start = 1
	}
	length := len(runes) - (start - 1)
	if len(args) == 3 {
		lenF, ok := CoerceToNumber(args[2])
		if !ok {
			return term.UnboundValue
		}
		length = int(lenF)
		if length < 0 {
			length = 0
		}
	}
	from := start - 1
	if from > len(runes) {
		from = len(runes)
	}
	to := from + length
	if to > len(runes) {
		to = len(runes)
	}
	if to < from {
		to = from
	}
	return withSuffix(args[0], string(runes[from:to]))
}

func strBeforeAfter(args []term.Value, before bool) term.Value {
	if len(args) != 2 || args[0].IsUnbound() || args[1].IsUnbound() {
		return term.UnboundValue
	}
	s := args[0].Lex()
	d := args[1].Lex()
	if d == "" {
		if before {
			return term.PlainString("")
		}
		return withSuffix(args[0], s)
	}
	idx := strings.Index(s, d)
	if idx < 0 {
		return term.PlainString("")
	}
	if before {
		return withSuffix(args[0], s[:idx])
	}
	return withSuffix(args[0], s[idx+len(d):])
}

func strPredicate(args []term.Value, f func(s, sub string) bool) term.Value {
	if len(args) != 2 || args[0].IsUnbound() || args[1].IsUnbound() {
		return term.UnboundValue
	}
	return term.Bool(f(args[0].Lex(), args[1].Lex()))
}

func strDT(args []term.Value) term.Value {
	if len(args) != 2 || args[0].IsUnbound() || args[1].IsUnbound() {
		return term.UnboundValue
	}
	if args[0].Lang() != "" {
		return term.UnboundValue
	}
	iri := args[1].Lex()
	if args[1].Kind == term.UriValue {
		iri = strings.TrimSuffix(strings.TrimPrefix(args[1].Lexical, "<"), ">")
	}
	if iri == term.XsdStringIri {
		return term.PlainString(args[0].Lex())
	}
	return term.TypedString(args[0].Lex(), iri)
}

func strLang(args []term.Value) term.Value {
	if len(args) != 2 || args[0].IsUnbound() || args[1].IsUnbound() {
		return term.UnboundValue
	}
	if args[0].Lang() != "" {
		return term.UnboundValue
	}
	lex := args[0].Lex()
	if lex == "" {
		return term.UnboundValue
	}
	return term.LangString(lex, args[1].Lex())
}

func langMatches(args []term.Value) term.Value {
	if len(args) != 2 {
		return term.UnboundValue
	}
	tag := strings.ToLower(args[0].Lex())
	pat := strings.ToLower(args[1].Lex())
	if pat == "*" {
		return term.Bool(tag != "")
	}
	return term.Bool(tag == pat || strings.HasPrefix(tag, pat+"-"))
}

func mathFn1(args []term.Value, f func(float64) float64) term.Value {
	if len(args) != 1 {
		return term.UnboundValue
	}
	if args[0].Kind == term.IntegerValue {
		return args[0] // "preserve Integer input unchanged" (§4.2)
	}
	n, ok := CoerceToNumber(args[0])
	if !ok {
		return term.UnboundValue
	}
	return numericResult(f(n), false)
}

func roundFn(args []term.Value) term.Value {
	if len(args) != 1 {
		return term.UnboundValue
	}
	if args[0].Kind == term.IntegerValue {
		return args[0]
	}
	n, ok := CoerceToNumber(args[0])
	if !ok {
		return term.UnboundValue
	}
	// Half-away-from-zero, per §4.2/§8.
	var r float64
	if n >= 0 {
		r = math.Floor(n + 0.5)
	} else {
		r = math.Ceil(n - 0.5)
	}
	return numericResult(r, false)
}

func digestFn(args []term.Value, sum func([]byte) [16]byte) term.Value {
	if len(args) != 1 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	h := sum([]byte(args[0].Lex()))
	return term.PlainString(hex.EncodeToString(h[:]))
}

func digestFnSlice(args []term.Value, sum func([]byte) []byte) term.Value {
	if len(args) != 1 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	h := sum([]byte(args[0].Lex()))
	return term.PlainString(hex.EncodeToString(h))
}

func sha384Sum(b []byte) []byte {
	h := sha512.Sum384(b)
	return h[:]
}

func dateTimeFieldFn(args []term.Value, field string) term.Value {
	if len(args) != 1 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	t, err := time.Parse(time.RFC3339, args[0].Lex())
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", args[0].Lex())
		if err != nil {
			return term.UnboundValue
		}
	}
	switch field {
	case "YEAR":
		return term.Int(int64(t.Year()))
	case "MONTH":
		return term.Int(int64(t.Month()))
	case "DAY":
		return term.Int(int64(t.Day()))
	case "HOURS":
		return term.Int(int64(t.Hour()))
	case "MINUTES":
		return term.Int(int64(t.Minute()))
	case "SECONDS":
		return term.Double(float64(t.Second()) + float64(t.Nanosecond())/1e9)
	}
	return term.UnboundValue
}

// castTarget recognizes the xsd:* cast-function IRIs of §4.2.1/§4.2.2.
func castTarget(name string) (string, bool) {
	lower := strings.ToLower(name)
	switch lower {
	case "xsd:integer":
		return term.XsdInteger, true
	case "xsd:decimal":
		return term.XsdDecimal, true
	case "xsd:double":
		return term.XsdDouble, true
	case "xsd:float":
		return term.XsdFloat, true
	case "xsd:boolean":
		return term.XsdBoolean, true
	case "xsd:string":
		return term.XsdStringIri, true
	}
	return "", false
}

func (e *Evaluator) evalCast(v term.Value, target string) term.Value {
	switch target {
	case term.XsdInteger:
		switch v.Kind {
		case term.BooleanValue:
			if v.Bool {
				return term.Int(1)
			}
			return term.Int(0)
		case term.IntegerValue:
			return v
		case term.DoubleValue:
			if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
				return term.UnboundValue
			}
			return term.Int(int64(math.Trunc(v.Float)))
		case term.StringValue:
			lex := v.Lex()
			if strings.ContainsAny(lex, ".eE") {
				return term.UnboundValue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(lex), 10, 64)
			if err != nil {
				return term.UnboundValue
			}
			return term.Int(n)
		}
		return term.UnboundValue
	case term.XsdDecimal, term.XsdDouble, term.XsdFloat:
		switch v.Kind {
		case term.IntegerValue:
			return term.Double(float64(v.Int))
		case term.DoubleValue:
			return v
		case term.BooleanValue:
			if v.Bool {
				return term.Double(1)
			}
			return term.Double(0)
		case term.StringValue:
			f, err := parseFloatLenient(strings.TrimSpace(v.Lex()))
			if err != nil {
				return term.UnboundValue
			}
			return term.Double(f)
		}
		return term.UnboundValue
	case term.XsdBoolean:
		switch v.Kind {
		case term.IntegerValue:
			return term.Bool(v.Int != 0)
		case term.DoubleValue:
			return term.Bool(v.Float != 0 && !math.IsNaN(v.Float))
		case term.BooleanValue:
			return v
		case term.StringValue:
			lex := v.Lex()
			if lex == "true" || lex == "1" {
				return term.Bool(true)
			}
			if lex == "false" || lex == "0" {
				return term.Bool(false)
			}
		}
		return term.UnboundValue
	case term.XsdStringIri:
		if v.IsUnbound() {
			return term.UnboundValue
		}
		return term.PlainString(v.Lex())
	}
	return term.UnboundValue
}

// compileRegexWithTimeout compiles pat with flags, bounded to regexTimeout
// per §5. Go's regexp compilation is effectively synchronous CPU work, so
// the timeout is enforced by racing compilation against a timer goroutine.
func compileRegexWithTimeout(pat, flags string) (*regexp.Regexp, error) {
	goPat := translateFlags(pat, flags)
	type result struct {
		re  *regexp.Regexp
		err error
	}
	ch := make(chan result, 1)
	go func() {
		re, err := regexp.Compile(goPat)
		ch <- result{re, err}
	}()
	select {
	case r := <-ch:
		return r.re, r.err
	case <-time.After(regexTimeout):
		return nil, fmt.Errorf("eval: regex compile timeout")
	}
}

// translateFlags maps SPARQL REGEX flags (i,s,m,x) onto Go's inline
// (?flags) group; Go's RE2 doesn't support 'x' (extended/free-spacing), so
// 'x' is approximated by stripping unescaped whitespace before compilation.
func translateFlags(pat, flags string) string {
	if strings.Contains(flags, "x") {
		pat = stripFreeSpacing(pat)
	}
	var goFlags string
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			goFlags += string(f)
		}
	}
	if goFlags == "" {
		return pat
	}
	return "(?" + goFlags + ")" + pat
}

func stripFreeSpacing(pat string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pat {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			b.WriteRune(r)
			escaped = true
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func regexFn(args []term.Value) term.Value {
	if len(args) < 2 || len(args) > 3 || args[0].IsUnbound() || args[1].IsUnbound() {
		return term.UnboundValue
	}
	flags := ""
	if len(args) == 3 {
		flags = args[2].Lex()
	}
	re, err := compileRegexWithTimeout(args[1].Lex(), flags)
	if err != nil {
		return term.UnboundValue
	}
	return term.Bool(re.MatchString(args[0].Lex()))
}

func replaceFn(args []term.Value) term.Value {
	if len(args) < 3 || len(args) > 4 || args[0].IsUnbound() {
		return term.UnboundValue
	}
	flags := ""
	if len(args) == 4 {
		flags = args[3].Lex()
	}
	re, err := compileRegexWithTimeout(args[1].Lex(), flags)
	if err != nil {
		return term.UnboundValue
	}
	repl := translateReplacement(args[2].Lex())
	return withSuffix(args[0], re.ReplaceAllString(args[0].Lex(), repl))
}

// translateReplacement maps XPath/ECMA $1-style backreferences to Go's
// ${1} replacement syntax.
func translateReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '$' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}
