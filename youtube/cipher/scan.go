package cipher

import (
	"fmt"
	"strings"

	"github.com/ytget/descramble/errs"
)

// walkSource steps through src from start, skipping string, template, regex
// and comment bodies, and calls visit at every other byte with the bracket
// depth after that byte. It returns the index at which visit returned true.
func walkSource(src string, start int, visit func(i int, c byte, depth int) bool) (int, error) {
	depth := 0
	for i := start; i < len(src); {
		c := src[i]
		var (
			next int
			err  error
		)
		switch {
		case c == '"' || c == '\'':
			next, err = skipString(src, i)
		case c == '`':
			next, err = skipTemplate(src, i)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			next = strings.IndexByte(src[i:], '\n')
			if next < 0 {
				next = len(src)
			} else {
				next += i + 1
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return -1, fmt.Errorf("%w: unterminated comment at %d", errs.ErrExtraction, i)
			}
			next = i + 2 + end + 2
		case c == '/' && regexAllowed(src, i):
			next, err = skipRegex(src, i)
		default:
			switch c {
			case '{', '(', '[':
				depth++
			case '}', ')', ']':
				depth--
			}
			if visit(i, c, depth) {
				return i, nil
			}
			i++
			continue
		}
		if err != nil {
			return -1, err
		}
		i = next
	}
	return len(src), fmt.Errorf("%w: unbalanced source from offset %d", errs.ErrExtraction, start)
}

// matchBrace returns the index of the bracket closing the one at open.
func matchBrace(src string, open int) (int, error) {
	if open >= len(src) || strings.IndexByte("{([", src[open]) < 0 {
		return -1, fmt.Errorf("%w: no opening bracket at %d", errs.ErrExtraction, open)
	}
	return walkSource(src, open, func(_ int, c byte, depth int) bool {
		return depth == 0 && (c == '}' || c == ')' || c == ']')
	})
}

// expressionEnd returns the end (exclusive) of the expression starting at
// start: the first top-level ',' or ';', an unmatched closing bracket, or the
// end of src.
func expressionEnd(src string, start int) int {
	end, err := walkSource(src, start, func(_ int, c byte, depth int) bool {
		return depth < 0 || (depth == 0 && (c == ',' || c == ';'))
	})
	if err != nil {
		return len(src)
	}
	return end
}

// splitTopLevel splits the contents of the bracketed literal src[open:close+1]
// at its top-level commas.
func splitTopLevel(src string, open, close int) []string {
	var parts []string
	from := open + 1
	_, _ = walkSource(src[:close], open, func(i int, c byte, depth int) bool {
		if depth == 1 && c == ',' {
			parts = append(parts, strings.TrimSpace(src[from:i]))
			from = i + 1
		}
		return false
	})
	if last := strings.TrimSpace(src[from:close]); last != "" || len(parts) > 0 {
		parts = append(parts, last)
	}
	return parts
}

func skipString(src string, i int) (int, error) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, nil
		case '\n':
			return -1, fmt.Errorf("%w: unterminated string at %d", errs.ErrExtraction, i)
		}
	}
	return -1, fmt.Errorf("%w: unterminated string at %d", errs.ErrExtraction, i)
}

func skipTemplate(src string, i int) (int, error) {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '`':
			return j + 1, nil
		case '$':
			if j+1 < len(src) && src[j+1] == '{' {
				end, err := matchBrace(src, j+1)
				if err != nil {
					return -1, err
				}
				j = end
			}
		}
	}
	return -1, fmt.Errorf("%w: unterminated template at %d", errs.ErrExtraction, i)
}

func skipRegex(src string, i int) (int, error) {
	inClass := false
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				j++
				for j < len(src) && isIdentByte(src[j]) {
					j++
				}
				return j, nil
			}
		case '\n':
			return -1, fmt.Errorf("%w: unterminated regex at %d", errs.ErrExtraction, i)
		}
	}
	return -1, fmt.Errorf("%w: unterminated regex at %d", errs.ErrExtraction, i)
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "of": true, "new": true, "delete": true, "void": true, "throw": true,
}

// regexAllowed decides whether a '/' at i starts a regex literal rather than
// a division, from the last significant byte before it.
func regexAllowed(src string, i int) bool {
	j := i - 1
	for j >= 0 && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
		j--
	}
	if j < 0 {
		return true
	}
	p := src[j]
	if strings.IndexByte("(,=:[!&|?{};+-*%<>~^", p) >= 0 {
		return true
	}
	if !isIdentByte(p) {
		return false
	}
	k := j
	for k >= 0 && isIdentByte(src[k]) {
		k--
	}
	return regexKeywords[src[k+1:j+1]]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
