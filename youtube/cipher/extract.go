package cipher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/youtube/jsinterp"
)

const (
	// maxAuxDepth bounds how far auxiliary declarations are followed.
	maxAuxDepth = 3
	// markerWindow is how far before an exception marker the structural
	// fallback looks for the enclosing function header.
	markerWindow = 256 << 10
)

var identRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// ExtractedFunction is a transform function isolated from a player script,
// together with the global declarations it reads.
type ExtractedFunction struct {
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name"`
	Params    []string `json:"params"`
	Body      string   `json:"body"`
	Auxiliary []string `json:"auxiliary,omitempty"`
	// Array is set when the name was picked from an array literal; Index is
	// the element used.
	Array   string `json:"array,omitempty"`
	Index   int    `json:"index,omitempty"`
	Pattern string `json:"pattern"`
}

func (f *ExtractedFunction) declaration() string {
	return "var " + f.Name + "=function(" + strings.Join(f.Params, ",") + "){" + f.Body + "};"
}

// Source renders the snippet the interpreter parses: auxiliary declarations
// first, then the function itself bound to Name.
func (f *ExtractedFunction) Source() string {
	var b strings.Builder
	for _, d := range f.Auxiliary {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	b.WriteString(f.declaration())
	return b.String()
}

// Hash identifies the snippet's exact text.
func (f *ExtractedFunction) Hash() string {
	sum := sha256.Sum256([]byte(f.Source()))
	return hex.EncodeToString(sum[:])
}

// Extract locates the function implementing kind in a player script. Patterns
// are tried in rank order and the first that yields a complete function wins.
func Extract(script string, kind Kind) (*ExtractedFunction, error) {
	var lastErr error
	for _, p := range patternsFor(kind) {
		name, idx, ok := p.find(script)
		if !ok {
			continue
		}
		fn, err := extractNamed(script, kind, name, idx)
		if err != nil {
			lastErr = fmt.Errorf("pattern %s: %w", p.id, err)
			continue
		}
		fn.Pattern = p.id
		return fn, nil
	}
	if kind == KindNParam {
		fn, err := extractByMarker(script)
		if err == nil {
			return fn, nil
		}
		if lastErr == nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no %s pattern matched", errs.ErrExtraction, kind)
	}
	return nil, NewError(ErrCodeExtraction, StageExtract, kind, "", lastErr)
}

func extractNamed(script string, kind Kind, name string, idx int) (*ExtractedFunction, error) {
	fn := &ExtractedFunction{Kind: kind}
	if idx >= 0 {
		resolved, err := resolveArrayElement(script, name, idx)
		if err != nil {
			return nil, err
		}
		fn.Array, fn.Index = name, idx
		name = resolved
	}
	params, body, err := functionBody(script, name)
	if err != nil {
		return nil, err
	}
	fn.Name, fn.Params, fn.Body = name, params, body
	if kind == KindNParam {
		fn.Body = stripNGuard(fn.Body, fn.Params)
	}
	aux, err := auxiliary(script, fn)
	if err != nil {
		return nil, err
	}
	fn.Auxiliary = aux
	return fn, nil
}

// resolveArrayElement maps "NAME[idx]" to the identifier stored at idx of
// the array literal assigned to NAME.
func resolveArrayElement(script, name string, idx int) (string, error) {
	re := regexp.MustCompile(`(?:^|[^a-zA-Z0-9_$.])` + regexp.QuoteMeta(name) + `\s*=\s*\[`)
	loc := re.FindStringIndex(script)
	if loc == nil {
		return "", fmt.Errorf("%w: array %s not found", errs.ErrExtraction, name)
	}
	open := loc[1] - 1
	end, err := matchBrace(script, open)
	if err != nil {
		return "", err
	}
	elems := splitTopLevel(script, open, end)
	if idx >= len(elems) {
		return "", fmt.Errorf("%w: index %d out of range for array %s of length %d", errs.ErrExtraction, idx, name, len(elems))
	}
	el := elems[idx]
	if !identRe.MatchString(el) {
		return "", fmt.Errorf("%w: %s[%d] is not a function name", errs.ErrExtraction, name, idx)
	}
	return el, nil
}

// functionBody finds the declaration of name and returns its parameter
// names and body text, scanned to the matching brace.
func functionBody(script, name string) ([]string, string, error) {
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?:function\s+` + q + `|(?:^|[^a-zA-Z0-9_$.])` + q + `\s*=\s*function)\s*\(([^)]*)\)\s*\{`)
	loc := re.FindStringSubmatchIndex(script)
	if loc == nil {
		return nil, "", fmt.Errorf("%w: function %s not found", errs.ErrExtraction, name)
	}
	open := loc[1] - 1
	end, err := matchBrace(script, open)
	if err != nil {
		return nil, "", err
	}
	var params []string
	for _, p := range strings.Split(script[loc[2]:loc[3]], ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return params, script[open+1 : end], nil
}

func stripNGuard(body string, params []string) string {
	if len(params) == 0 {
		return body
	}
	re := regexp.MustCompile(strings.Replace(nGuardExpr, "PARAM", regexp.QuoteMeta(params[0]), 1))
	return re.ReplaceAllLiteralString(";"+body, ";")[1:]
}

type auxResolver struct {
	script string
	seen   map[string]bool
	decls  []string
}

// auxiliary collects, dependencies first, the declarations of the globals the
// function reads.
func auxiliary(script string, fn *ExtractedFunction) ([]string, error) {
	r := &auxResolver{script: script, seen: map[string]bool{fn.Name: true}}
	if err := r.resolve(fn.declaration(), 0); err != nil {
		return nil, err
	}
	return r.decls, nil
}

func (r *auxResolver) resolve(src string, depth int) error {
	names, err := jsinterp.FreeNames(src)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrExtraction, err)
	}
	for _, name := range names {
		if r.seen[name] {
			continue
		}
		r.seen[name] = true
		decl, ok := declarationOf(r.script, name)
		if !ok {
			continue
		}
		if depth < maxAuxDepth {
			if err := r.resolve(decl, depth+1); err != nil {
				return err
			}
		}
		r.decls = append(r.decls, decl)
	}
	return nil
}

// declarationOf returns a standalone declaration of the global name.
func declarationOf(script, name string) (string, bool) {
	q := regexp.QuoteMeta(name)
	if loc := regexp.MustCompile(`\bfunction\s+` + q + `\s*\(`).FindStringIndex(script); loc != nil {
		if brace := strings.IndexByte(script[loc[1]:], '{'); brace >= 0 {
			if end, err := matchBrace(script, loc[1]+brace); err == nil {
				return script[loc[0] : end+1], true
			}
		}
	}
	re := regexp.MustCompile(`(?:^|[^a-zA-Z0-9_$.])` + q + `\s*=`)
	for _, loc := range re.FindAllStringIndex(script, -1) {
		at := loc[1]
		if at < len(script) && (script[at] == '=' || script[at] == '>') {
			continue
		}
		init := strings.TrimSpace(script[at:expressionEnd(script, at)])
		if init == "" {
			continue
		}
		return "var " + name + "=" + init + ";", true
	}
	return "", false
}

// extractByMarker finds the n function through the exception sentinels it
// returns, taking the innermost "NAME=function(" whose body spans the marker.
func extractByMarker(script string) (*ExtractedFunction, error) {
	for _, marker := range []string{nExceptPrefix, nExceptInfix} {
		at := strings.Index(script, marker)
		if at < 0 {
			continue
		}
		from := at - markerWindow
		if from < 0 {
			from = 0
		}
		locs := funcAssignRe.FindAllStringSubmatchIndex(script[from:at], -1)
		for i := len(locs) - 1; i >= 0; i-- {
			start := from + locs[i][2]
			if start > 0 && script[start-1] == '.' {
				continue
			}
			name := script[start : from+locs[i][3]]
			brace := strings.IndexByte(script[from+locs[i][1]:], '{')
			if brace < 0 {
				continue
			}
			end, err := matchBrace(script, from+locs[i][1]+brace)
			if err != nil || end < at {
				continue
			}
			fn, err := extractNamed(script, KindNParam, name, -1)
			if err != nil {
				return nil, err
			}
			fn.Pattern = "marker"
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: no n-function exception marker found", errs.ErrExtraction)
}
