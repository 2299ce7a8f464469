package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "ErrExtraction", err: ErrExtraction, expected: "function extraction failed"},
		{name: "ErrInterpreter", err: ErrInterpreter, expected: "interpreter failed"},
		{name: "ErrCacheFormat", err: ErrCacheFormat, expected: "cache format mismatch"},
		{name: "ErrPlayerFetch", err: ErrPlayerFetch, expected: "player fetch failed"},
		{name: "ErrPlayerURL", err: ErrPlayerURL, expected: "unrecognized player url"},
		{name: "ErrBadResult", err: ErrBadResult, expected: "transform returned an invalid result"},
		{name: "ErrLengthMismatch", err: ErrLengthMismatch, expected: "permutation length mismatch"},
		{name: "ErrFormat", err: ErrFormat, expected: "malformed format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("player abc: %w", ErrExtraction)
	if !errors.Is(wrapped, ErrExtraction) {
		t.Error("wrapped error should match ErrExtraction")
	}
	if errors.Is(wrapped, ErrInterpreter) {
		t.Error("wrapped extraction error should not match ErrInterpreter")
	}
}

func TestErrorUniqueness(t *testing.T) {
	errorList := []error{
		ErrExtraction,
		ErrInterpreter,
		ErrCacheFormat,
		ErrPlayerFetch,
		ErrPlayerURL,
		ErrBadResult,
		ErrLengthMismatch,
		ErrFormat,
	}

	for i, err1 := range errorList {
		for j, err2 := range errorList {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Error %d and %d should not be equal", i, j)
			}
		}
	}
}
