package cipher

import (
	"regexp"
	"strconv"
	"time"

	"github.com/dlclark/regexp2"
)

// Kind names a transform implemented by the player script.
type Kind string

const (
	KindSignature Kind = "signature"
	KindNParam    Kind = "nparam"
)

// namePattern locates the name of a transform function. Matches capture the
// name in group "name" and, when the function is picked from an array
// literal, the element index in group "idx".
type namePattern struct {
	id string
	re *regexp2.Regexp
}

const patternTimeout = 10 * time.Second

func mustPattern(id, expr string) namePattern {
	re := regexp2.MustCompile(expr, regexp2.RE2)
	re.MatchTimeout = patternTimeout
	return namePattern{id: id, re: re}
}

// find returns the function name and array index (-1 when absent) of the
// first match in src.
func (p namePattern) find(src string) (string, int, bool) {
	m, err := p.re.FindStringMatch(src)
	if err != nil || m == nil {
		return "", -1, false
	}
	g := m.GroupByName("name")
	if g == nil || len(g.Captures) == 0 {
		return "", -1, false
	}
	idx := -1
	if gi := m.GroupByName("idx"); gi != nil && len(gi.Captures) > 0 {
		n, err := strconv.Atoi(gi.Captures[0].String())
		if err != nil {
			return "", -1, false
		}
		idx = n
	}
	return g.Captures[0].String(), idx, true
}

// Ranked most specific first; the trailing entries only match old players.
var signaturePatterns = []namePattern{
	mustPattern("set-encode", `\b[cs]\s*&&\s*[adf]\.set\([^,]+\s*,\s*encodeURIComponent\s*\(\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("set-encode-any", `\b[a-zA-Z0-9]+\s*&&\s*[a-zA-Z0-9]+\.set\([^,]+\s*,\s*encodeURIComponent\s*\(\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("split-2", `(?:\b|[^a-zA-Z0-9$])(?P<name>[a-zA-Z0-9$]{2})\s*=\s*function\(\s*a\s*\)\s*{\s*a\s*=\s*a\.split\(\s*""\s*\)`),
	mustPattern("split", `(?P<name>[a-zA-Z0-9$]+)\s*=\s*function\(\s*a\s*\)\s*{\s*a\s*=\s*a\.split\(\s*""\s*\)`),
	mustPattern("signature-key", `(["'])signature\1\s*,\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("sig-or", `\.sig\|\|(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("akamaized", `yt\.akamaized\.net/\)\s*\|\|\s*.*?\s*[cs]\s*&&\s*[adf]\.set\([^,]+\s*,\s*(?:encodeURIComponent\s*\()?\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("set", `\b[cs]\s*&&\s*[adf]\.set\([^,]+\s*,\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("set-any", `\b[a-zA-Z0-9]+\s*&&\s*[a-zA-Z0-9]+\.set\([^,]+\s*,\s*(?P<name>[a-zA-Z0-9$]+)\(`),
	mustPattern("set-call", `\bc\s*&&\s*[a-zA-Z0-9]+\.set\([^,]+\s*,\s*\([^)]*\)\s*\(\s*(?P<name>[a-zA-Z0-9$]+)\(`),
}

var nParamPatterns = []namePattern{
	mustPattern("get-n", `(?x)
		(?:
			\.get\("n"\)\)&&\(b=|
			(?:
				b=String\.fromCharCode\(110\)|
				(?P<str_idx>[a-zA-Z0-9_$.]+)&&\(b="nn"\[\+(\k<str_idx>)\]
			)
			(?:
				,[a-zA-Z0-9_$]+\(a\))?,c=a\.
				(?:
					get\(b\)|
					[a-zA-Z0-9_$]+\[b\]\|\|null
				)\)&&\(c=|
			\b(?P<var>[a-zA-Z0-9_$]+)=
		)(?P<name>[a-zA-Z0-9_$]+)(?:\[(?P<idx>\d+)\])?\([a-zA-Z]\)
		(?(var),[a-zA-Z0-9_$]+\.set\("n"\,(\k<var>)\),(\k<name>)\.length)`),
	mustPattern("get-n-array", `\.get\("n"\)\)\s*&&\s*\(b=(?P<name>[a-zA-Z0-9$]{1,3})\[(?P<idx>\d+)\]`),
	mustPattern("get-n-call", `\.get\("n"\)\)\s*&&\s*\(b=(?P<name>[a-zA-Z0-9$]+)(?:\[(?P<idx>\d+)\])?\([a-zA-Z0-9$]+\)`),
}

// Exception sentinels the n transform returns when it rejects its input.
const (
	nExceptPrefix = "enhanced_except_"
	nExceptInfix  = "_w8_"
)

var (
	// funcAssignRe finds "NAME=function(" headers for the structural
	// n-function fallback.
	funcAssignRe = regexp.MustCompile(`([a-zA-Z0-9_$]+)\s*=\s*function\s*\(`)

	// nGuardExpr matches the "if(typeof X==='undefined')return a;" prelude
	// newer n functions carry. PARAM is substituted per function.
	nGuardExpr = `;\s*if\s*\(\s*typeof\s+[a-zA-Z0-9_$]+\s*===?\s*(?:"undefined"|'undefined'|[a-zA-Z0-9_$]+\[\d+\])\s*\)\s*return\s+PARAM;`
)

func patternsFor(kind Kind) []namePattern {
	if kind == KindNParam {
		return nParamPatterns
	}
	return signaturePatterns
}
