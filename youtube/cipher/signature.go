package cipher

import (
	"context"
	"strings"

	"github.com/ytget/descramble/internal/cache"
	"github.com/ytget/descramble/internal/logger"
	"github.com/ytget/descramble/youtube/playerjs"
)

// DecryptSignature turns a scrambled signature into the value the server
// accepts. contentID is only used for diagnostics.
//
// The first signature of a given shape for a player build is interpreted
// directly, and a probe run derives a PermutationSpec that later signatures
// of the same shape reuse without interpretation. On failure it returns ""
// and an *Error; it never returns a guessed value.
func (s *Session) DecryptSignature(ctx context.Context, cipherText, contentID, playerRef string) (string, error) {
	ref, err := playerjs.ParseRef(playerRef)
	if err != nil {
		return "", s.report(classify(StageResolve, KindSignature, "", err))
	}
	if cipherText == "" {
		e := NewError(ErrCodeBadResult, StageResolve, KindSignature, "empty signature", nil)
		e.Version = ref.ID
		return "", s.report(e)
	}
	log := s.log.WithComponent(logger.ComponentSignature)
	shape := shapeID(cipherText)
	specKey := ref.Key() + "_" + shape

	if spec, ok := s.lookupSpec(ctx, ref, specKey, unitLen(cipherText)); ok {
		out, err := spec.Apply(cipherText)
		if err == nil {
			s.metrics.SpecHits.Inc()
			if !s.dueForVerification(specKey) {
				log.Trace("fast path", logger.Fields{"player": ref.ID, "shape": shape, "content": contentID})
				return out, nil
			}
			direct, err := s.interpretSignature(ctx, ref, cipherText)
			if err != nil {
				return "", err
			}
			s.metrics.Verifications.Inc()
			if direct != out {
				s.metrics.Mismatches.Inc()
				s.disableFastPath(ref, specKey, "fast path disagreed with interpreter")
			}
			return direct, nil
		}
		s.forgetSpec(specKey)
	}

	s.metrics.SpecMisses.Inc()
	c, err := s.compiledFor(ctx, ref, KindSignature)
	if err != nil {
		return "", s.report(classify(StageExtract, KindSignature, ref.ID, err))
	}
	direct, err := s.run(c, KindSignature, cipherText)
	if err != nil {
		return "", s.report(classify(StageInterpret, KindSignature, ref.ID, err))
	}
	log.Debug("interpreted signature", logger.Fields{"player": ref.ID, "shape": shape, "content": contentID})
	if !s.fastPathDisabled(ref) {
		s.deriveSpec(ref, specKey, shape, c, cipherText, direct)
	}
	return direct, nil
}

func (s *Session) interpretSignature(ctx context.Context, ref playerjs.Ref, cipherText string) (string, error) {
	c, err := s.compiledFor(ctx, ref, KindSignature)
	if err != nil {
		return "", s.report(classify(StageExtract, KindSignature, ref.ID, err))
	}
	out, err := s.run(c, KindSignature, cipherText)
	if err != nil {
		return "", s.report(classify(StageInterpret, KindSignature, ref.ID, err))
	}
	return out, nil
}

func (s *Session) fastPathDisabled(ref playerjs.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noFast[ref.Key()]
}

// lookupSpec returns a usable spec for specKey from memory or the persistent
// cache. Persisted specs are rejected when they do not fit n, when they are
// truncating and truncation is off, or when they were not derived from the
// function text of this build. When that text is neither compiled nor
// persisted, the function is loaded to check the spec against it.
func (s *Session) lookupSpec(ctx context.Context, ref playerjs.Ref, specKey string, n int) (PermutationSpec, bool) {
	if s.fastPathDisabled(ref) {
		return PermutationSpec{}, false
	}
	s.mu.Lock()
	e, ok := s.specs[specKey]
	s.mu.Unlock()
	if ok {
		if e.spec.InputLen != n {
			return PermutationSpec{}, false
		}
		return e.spec, true
	}

	var spec PermutationSpec
	if !s.store.Load(cache.NamespaceSigFuncs, specKey, specFormatTag, &spec) {
		return PermutationSpec{}, false
	}
	log := s.log.WithComponent(logger.ComponentSignature)
	switch {
	case spec.InputLen != n || !spec.Valid():
		log.Debug("ignoring persisted spec of wrong length", logger.Fields{"key": specKey, "want": n, "have": spec.InputLen})
		return PermutationSpec{}, false
	case !s.opts.AllowTruncation && len(spec.Indices) != spec.InputLen:
		log.Debug("ignoring truncating persisted spec", logger.Fields{"key": specKey})
		return PermutationSpec{}, false
	case spec.SourceHash == "":
		log.Debug("ignoring persisted spec without source hash", logger.Fields{"key": specKey})
		return PermutationSpec{}, false
	}
	hash := s.knownHash(ref)
	if hash == "" {
		c, err := s.compiledFor(ctx, ref, KindSignature)
		if err != nil {
			return PermutationSpec{}, false
		}
		hash = c.hash
	}
	if hash != spec.SourceHash {
		log.Debug("ignoring persisted spec from other function text", logger.Fields{"key": specKey})
		return PermutationSpec{}, false
	}
	s.mu.Lock()
	s.specs[specKey] = &specEntry{spec: spec}
	s.mu.Unlock()
	return spec, true
}

// knownHash returns the hash of the signature function for ref when it is
// available without a network fetch.
func (s *Session) knownHash(ref playerjs.Ref) string {
	if c := s.loaded(ref, KindSignature); c != nil {
		return c.hash
	}
	var fn ExtractedFunction
	if s.store.Load(cache.NamespaceJSFuncs, funcKey(ref, KindSignature), jsFuncFormatTag, &fn) && fn.Name != "" {
		return fn.Hash()
	}
	return ""
}

func (s *Session) dueForVerification(specKey string) bool {
	if s.opts.VerifyEvery <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.specs[specKey]
	if !ok {
		return false
	}
	e.hits++
	return e.hits%s.opts.VerifyEvery == 0
}

// deriveSpec probes the function and caches the resulting spec when it is a
// valid rearrangement that reproduces the direct result for input.
func (s *Session) deriveSpec(ref playerjs.Ref, specKey, shape string, c *compiled, input, direct string) {
	n := unitLen(input)
	if n > MaxProbeLen {
		return
	}
	out, err := s.run(c, KindSignature, probe(n))
	if err != nil {
		s.disableFastPath(ref, specKey, "probe run failed: "+err.Error())
		return
	}
	spec, err := derivePermutation(n, out, !s.opts.AllowTruncation)
	if err != nil {
		s.disableFastPath(ref, specKey, err.Error())
		return
	}
	if fast, err := spec.Apply(input); err != nil || fast != direct {
		s.metrics.Mismatches.Inc()
		s.disableFastPath(ref, specKey, "derived spec does not reproduce the interpreter result")
		return
	}
	spec.SourceHash = c.hash

	s.mu.Lock()
	s.specs[specKey] = &specEntry{spec: spec}
	s.mu.Unlock()

	log := s.log.WithComponent(logger.ComponentSignature)
	if err := s.store.Store(cache.NamespaceSigFuncs, specKey, specFormatTag, spec); err != nil {
		log.Debug("cannot persist spec", logger.Fields{"key": specKey, "error": err.Error()})
	}
	if s.opts.PrintCode {
		log.Info("extracted signature function", logger.Fields{
			"player": ref.ID,
			"shape":  shape,
			"code":   "if tuple(len(p) for p in s.split('.')) == (" + strings.ReplaceAll(shape, ".", ", ") + "): return " + spec.Code(),
		})
	}
}

func (s *Session) forgetSpec(specKey string) {
	s.mu.Lock()
	delete(s.specs, specKey)
	s.mu.Unlock()
	_ = s.store.Remove(cache.NamespaceSigFuncs, specKey)
}

// disableFastPath makes every later signature of this build go through the
// interpreter and drops the build's specs.
func (s *Session) disableFastPath(ref playerjs.Ref, specKey, reason string) {
	prefix := ref.Key() + "_"
	s.mu.Lock()
	already := s.noFast[ref.Key()]
	s.noFast[ref.Key()] = true
	for k := range s.specs {
		if strings.HasPrefix(k, prefix) {
			delete(s.specs, k)
		}
	}
	s.mu.Unlock()
	_ = s.store.Remove(cache.NamespaceSigFuncs, specKey)
	if !already {
		s.log.WithComponent(logger.ComponentSignature).Info("signature fast path disabled; interpreting every call", logger.Fields{
			"player": ref.ID,
			"reason": reason,
		})
	}
}
