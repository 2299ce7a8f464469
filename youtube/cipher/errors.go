package cipher

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ytget/descramble/errs"
)

// Error codes
const (
	ErrCodePlayerURL      = "PLAYER_URL_INVALID"
	ErrCodePlayerFetch    = "PLAYER_FETCH_FAILED"
	ErrCodeExtraction     = "EXTRACTION_FAILED"
	ErrCodeInterpreter    = "INTERPRETER_FAILED"
	ErrCodeBadResult      = "RESULT_REJECTED"
	ErrCodeLengthMismatch = "LENGTH_MISMATCH"
)

// Stages reported in Error.Op and in degradation warnings.
const (
	StageResolve   = "resolve"
	StageFetch     = "fetch"
	StageExtract   = "extraction"
	StageParse     = "parse"
	StageInterpret = "interpretation"
	StageResult    = "result"
)

var codeSentinels = map[string]error{
	ErrCodePlayerURL:      errs.ErrPlayerURL,
	ErrCodePlayerFetch:    errs.ErrPlayerFetch,
	ErrCodeExtraction:     errs.ErrExtraction,
	ErrCodeInterpreter:    errs.ErrInterpreter,
	ErrCodeBadResult:      errs.ErrBadResult,
	ErrCodeLengthMismatch: errs.ErrLengthMismatch,
}

// Error is a structured descrambling failure. It unwraps to the errs sentinel
// for its Code and to the underlying cause.
type Error struct {
	Code    string `json:"code"`
	Op      string `json:"op"`
	Kind    Kind   `json:"kind,omitempty"`
	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Kind != "" {
		b.WriteString(string(e.Kind))
		b.WriteByte(' ')
	}
	b.WriteString(e.Op)
	if e.Version != "" {
		b.WriteString(" (player ")
		b.WriteString(e.Version)
		b.WriteByte(')')
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the code's sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := codeSentinels[e.Code]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and stage.
func NewError(code, op string, kind Kind, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Kind: kind, Message: message, Err: cause}
}

// IsExtraction reports whether err is a pattern-extraction failure.
func IsExtraction(err error) bool { return errors.Is(err, errs.ErrExtraction) }

// IsInterpreter reports whether err came from the guest-script interpreter.
func IsInterpreter(err error) bool { return errors.Is(err, errs.ErrInterpreter) }

// IsPlayerFetch reports whether the player script could not be downloaded.
func IsPlayerFetch(err error) bool { return errors.Is(err, errs.ErrPlayerFetch) }

// IsBadResult reports whether a transform output failed a sanity check.
func IsBadResult(err error) bool { return errors.Is(err, errs.ErrBadResult) }

// StageOf returns the stage recorded in err, or "" when err is not an *Error.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// classify wraps a lower-level error into an *Error for stage op.
func classify(op string, kind Kind, version string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Version == "" {
			e.Version = version
		}
		return e
	}
	code := ErrCodeInterpreter
	switch {
	case errors.Is(err, errs.ErrPlayerURL):
		code = ErrCodePlayerURL
	case errors.Is(err, errs.ErrPlayerFetch):
		code = ErrCodePlayerFetch
	case errors.Is(err, errs.ErrExtraction):
		code = ErrCodeExtraction
	case errors.Is(err, errs.ErrLengthMismatch):
		code = ErrCodeLengthMismatch
	case errors.Is(err, errs.ErrBadResult):
		code = ErrCodeBadResult
	}
	return &Error{Code: code, Op: op, Kind: kind, Version: version, Err: err}
}
