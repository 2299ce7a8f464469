package errs

import (
	"errors"
)

var (
	// ErrExtraction indicates that no pattern located the requested transform
	// function, or that an array indirection could not be resolved.
	ErrExtraction = errors.New("function extraction failed")
	// ErrInterpreter indicates unsupported syntax or a runtime type mismatch
	// inside an extracted function.
	ErrInterpreter = errors.New("interpreter failed")
	// ErrCacheFormat indicates a persisted entry written by an incompatible
	// format version. It is handled inside the cache and never returned to callers.
	ErrCacheFormat = errors.New("cache format mismatch")
	// ErrPlayerFetch indicates the player script could not be downloaded.
	ErrPlayerFetch = errors.New("player fetch failed")
	// ErrPlayerURL indicates that a player reference has an unrecognized shape.
	ErrPlayerURL = errors.New("unrecognized player url")
	// ErrBadResult indicates that a transform returned a value known to be wrong,
	// such as the unmodified input or an obfuscator exception sentinel.
	ErrBadResult = errors.New("transform returned an invalid result")
	// ErrLengthMismatch indicates a permutation was applied to a value of a
	// different length than the one it was derived for.
	ErrLengthMismatch = errors.New("permutation length mismatch")
	// ErrFormat indicates a media format with neither a usable URL nor a
	// well-formed signature cipher.
	ErrFormat = errors.New("malformed format")
)
