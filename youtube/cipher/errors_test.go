package cipher

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ytget/descramble/errs"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "full",
			err: &Error{
				Code:    ErrCodeExtraction,
				Op:      StageExtract,
				Kind:    KindSignature,
				Version: "3b5d5649",
				Message: "no pattern matched",
				Err:     errors.New("boom"),
			},
			expected: "EXTRACTION_FAILED: signature extraction (player 3b5d5649): no pattern matched: boom",
		},
		{
			name: "code and stage only",
			err: &Error{
				Code: ErrCodePlayerURL,
				Op:   StageResolve,
			},
			expected: "PLAYER_URL_INVALID: resolve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_MarshalJSON(t *testing.T) {
	err := NewError(ErrCodeBadResult, StageResult, KindNParam, "identity", nil)
	err.Version = "a1b2c3d4"

	data, err2 := json.Marshal(err)
	if err2 != nil {
		t.Fatalf("Failed to marshal error: %v", err2)
	}

	var result map[string]any
	if err2 := json.Unmarshal(data, &result); err2 != nil {
		t.Fatalf("Failed to unmarshal error: %v", err2)
	}

	want := map[string]string{
		"code":    ErrCodeBadResult,
		"op":      StageResult,
		"kind":    string(KindNParam),
		"version": "a1b2c3d4",
		"message": "identity",
		"error":   err.Error(),
	}
	for k, v := range want {
		if got, ok := result[k].(string); !ok || got != v {
			t.Errorf("JSON field %s = %v, want %v", k, result[k], v)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(NewError(ErrCodePlayerFetch, StageFetch, KindSignature, "", cause))

	if !errors.Is(err, errs.ErrPlayerFetch) {
		t.Error("expected ErrPlayerFetch sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if errors.Is(err, errs.ErrExtraction) {
		t.Error("unexpected ErrExtraction")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if got := StageOf(wrapped); got != StageFetch {
		t.Errorf("StageOf() = %q, want %q", got, StageFetch)
	}
	if got := StageOf(cause); got != "" {
		t.Errorf("StageOf(plain) = %q, want empty", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		isExt bool
		isJS  bool
		isNet bool
		isBad bool
	}{
		{"extraction", NewError(ErrCodeExtraction, StageExtract, KindSignature, "", nil), true, false, false, false},
		{"interpreter", NewError(ErrCodeInterpreter, StageInterpret, KindNParam, "", nil), false, true, false, false},
		{"fetch", NewError(ErrCodePlayerFetch, StageFetch, KindSignature, "", nil), false, false, true, false},
		{"bad result", NewError(ErrCodeBadResult, StageResult, KindNParam, "", nil), false, false, false, true},
		{"wrapped sentinel", fmt.Errorf("x: %w", errs.ErrInterpreter), false, true, false, false},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExtraction(tt.err); got != tt.isExt {
				t.Errorf("IsExtraction() = %v, want %v", got, tt.isExt)
			}
			if got := IsInterpreter(tt.err); got != tt.isJS {
				t.Errorf("IsInterpreter() = %v, want %v", got, tt.isJS)
			}
			if got := IsPlayerFetch(tt.err); got != tt.isNet {
				t.Errorf("IsPlayerFetch() = %v, want %v", got, tt.isNet)
			}
			if got := IsBadResult(tt.err); got != tt.isBad {
				t.Errorf("IsBadResult() = %v, want %v", got, tt.isBad)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: x", errs.ErrPlayerURL), ErrCodePlayerURL},
		{fmt.Errorf("%w: x", errs.ErrPlayerFetch), ErrCodePlayerFetch},
		{fmt.Errorf("%w: x", errs.ErrExtraction), ErrCodeExtraction},
		{fmt.Errorf("%w: x", errs.ErrLengthMismatch), ErrCodeLengthMismatch},
		{fmt.Errorf("%w: x", errs.ErrBadResult), ErrCodeBadResult},
		{errors.New("anything else"), ErrCodeInterpreter},
	}
	for _, tt := range tests {
		got := classify(StageInterpret, KindSignature, "v1", tt.err)
		if got.Code != tt.code {
			t.Errorf("classify(%v).Code = %s, want %s", tt.err, got.Code, tt.code)
		}
		if got.Version != "v1" {
			t.Errorf("classify(%v).Version = %q", tt.err, got.Version)
		}
	}

	existing := NewError(ErrCodeExtraction, StageExtract, KindNParam, "", nil)
	got := classify(StageInterpret, KindNParam, "v2", fmt.Errorf("wrapped: %w", existing))
	if got != existing || got.Op != StageExtract || got.Version != "v2" {
		t.Errorf("classify did not reuse existing error: %+v", got)
	}
}
