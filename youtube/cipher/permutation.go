package cipher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/ytget/descramble/errs"
)

const (
	// probeBase is the first code unit of the probe alphabet. Probe
	// position i carries probeBase+i, so every unit names its own index.
	probeBase = 0x4E00
	// MaxProbeLen keeps probe units below the surrogate range.
	MaxProbeLen = 0xD800 - probeBase
)

var errNotPermutation = errors.New("transform output is not a rearrangement of its input")

// PermutationSpec is the position map derived from one probe run:
// output[i] = input[Indices[i]] for inputs of exactly InputLen code units.
type PermutationSpec struct {
	InputLen int   `json:"input_len"`
	Indices  []int `json:"indices"`
	// SourceHash is the hash of the extracted function the spec was derived
	// from.
	SourceHash string `json:"source_hash,omitempty"`
}

// probe returns the length-n probe string.
func probe(n int) string {
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(probeBase + i)
	}
	return string(utf16.Decode(units))
}

// derivePermutation traces each unit of a probe run's output back to its
// probe position. In strict mode the output must be a full permutation: the
// same length as the input with every position used once. Otherwise shorter
// outputs and repeated positions are accepted.
func derivePermutation(inputLen int, output string, strict bool) (PermutationSpec, error) {
	units := utf16.Encode([]rune(output))
	if strict && len(units) != inputLen {
		return PermutationSpec{}, fmt.Errorf("%w: output length %d, input length %d", errNotPermutation, len(units), inputLen)
	}
	if len(units) > inputLen {
		return PermutationSpec{}, fmt.Errorf("%w: output longer than input", errNotPermutation)
	}
	used := make([]bool, inputLen)
	indices := make([]int, len(units))
	for i, u := range units {
		idx := int(u) - probeBase
		if idx < 0 || idx >= inputLen {
			return PermutationSpec{}, fmt.Errorf("%w: output unit %d (%#x) is not a probe unit", errNotPermutation, i, u)
		}
		if strict && used[idx] {
			return PermutationSpec{}, fmt.Errorf("%w: input position %d used twice", errNotPermutation, idx)
		}
		used[idx] = true
		indices[i] = idx
	}
	return PermutationSpec{InputLen: inputLen, Indices: indices}, nil
}

// Valid reports whether the spec is internally consistent.
func (p PermutationSpec) Valid() bool {
	if p.InputLen <= 0 || len(p.Indices) > p.InputLen {
		return false
	}
	for _, i := range p.Indices {
		if i < 0 || i >= p.InputLen {
			return false
		}
	}
	return true
}

// Apply rearranges s. It fails with errs.ErrLengthMismatch unless s is
// exactly InputLen code units long.
func (p PermutationSpec) Apply(s string) (string, error) {
	if isASCII(s) {
		if len(s) != p.InputLen {
			return "", fmt.Errorf("%w: spec for length %d applied to length %d", errs.ErrLengthMismatch, p.InputLen, len(s))
		}
		out := make([]byte, len(p.Indices))
		for i, idx := range p.Indices {
			out[i] = s[idx]
		}
		return string(out), nil
	}
	units := utf16.Encode([]rune(s))
	if len(units) != p.InputLen {
		return "", fmt.Errorf("%w: spec for length %d applied to length %d", errs.ErrLengthMismatch, p.InputLen, len(units))
	}
	out := make([]uint16, len(p.Indices))
	for i, idx := range p.Indices {
		out[i] = units[idx]
	}
	return string(utf16.Decode(out)), nil
}

// Code renders the spec as a compact expression over s, collapsing runs of
// adjacent positions into slices, e.g. "s[2] + s[40:3:-1] + s[0]".
func (p PermutationSpec) Code() string {
	idxs := p.Indices
	switch len(idxs) {
	case 0:
		return `""`
	case 1:
		return "s[" + strconv.Itoa(idxs[0]) + "]"
	}
	var parts []string
	inRun := false
	step, start := 0, 0
	for k := 1; k < len(idxs); k++ {
		cur, prev := idxs[k], idxs[k-1]
		if inRun {
			if cur-prev == step {
				continue
			}
			parts = append(parts, sliceExpr(start, prev, step))
			inRun = false
			continue
		}
		if d := cur - prev; d == 1 || d == -1 {
			step, start, inRun = d, prev, true
			continue
		}
		parts = append(parts, "s["+strconv.Itoa(prev)+"]")
	}
	last := idxs[len(idxs)-1]
	if inRun {
		parts = append(parts, sliceExpr(start, last, step))
	} else {
		parts = append(parts, "s["+strconv.Itoa(last)+"]")
	}
	return strings.Join(parts, " + ")
}

func sliceExpr(start, end, step int) string {
	var b strings.Builder
	b.WriteString("s[")
	if start != 0 {
		b.WriteString(strconv.Itoa(start))
	}
	b.WriteByte(':')
	if end+step >= 0 {
		b.WriteString(strconv.Itoa(end + step))
	}
	if step != 1 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(step))
	}
	b.WriteByte(']')
	return b.String()
}

// shapeID describes a signature by the lengths of its dot-separated parts,
// e.g. "43.43". Equal shapes imply equal lengths.
func shapeID(sig string) string {
	parts := strings.Split(sig, ".")
	lens := make([]string, len(parts))
	for i, part := range parts {
		lens[i] = strconv.Itoa(unitLen(part))
	}
	return strings.Join(lens, ".")
}

func unitLen(s string) int {
	if isASCII(s) {
		return len(s)
	}
	return len(utf16.Encode([]rune(s)))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
