package cipher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/cache"
	"github.com/ytget/descramble/internal/logger"
	"github.com/ytget/descramble/youtube/jsinterp"
	"github.com/ytget/descramble/youtube/playerjs"
)

// Format tags of the persisted entries this package writes. Bump a tag when
// the payload layout or its derivation changes; older entries then read as
// absent and are recomputed.
const (
	specFormatTag      = "spec/2"
	jsFuncFormatTag    = "jsfunc/1"
	timestampFormatTag = "sts/1"
)

// Options tune a Session.
type Options struct {
	// AllowTruncation accepts signature transforms whose output is shorter
	// than the input, or repeats positions, as fast-path candidates.
	AllowTruncation bool
	// VerifyEvery re-runs the interpreter on every Nth fast-path hit of a
	// spec and compares. Zero disables verification.
	VerifyEvery int
	// PrintCode logs each newly derived spec as a slice expression.
	PrintCode bool
	Logger    *logger.Logger
	Metrics   *Metrics
}

// compiled is an extracted function with its parsed program.
type compiled struct {
	fn   *ExtractedFunction
	prog *jsinterp.Program
	hash string
}

type specEntry struct {
	spec PermutationSpec
	hits int
}

// Session holds the in-memory state of one descrambling run: parsed
// functions, permutation specs, fast-path status and warning deduplication.
// It is safe for concurrent use.
type Session struct {
	players *playerjs.Cache
	store   *cache.Cache
	opts    Options
	log     *logger.Logger
	metrics *Metrics
	group   singleflight.Group

	mu     sync.Mutex
	funcs  map[string]*compiled
	specs  map[string]*specEntry
	noFast map[string]bool
	warned map[string]bool
}

// NewSession returns a session reading players through players and
// persisting derived data in store. A nil store disables persistence.
func NewSession(players *playerjs.Cache, store *cache.Cache, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if store == nil {
		store = cache.New(nil, log)
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics()
	}
	return &Session{
		players: players,
		store:   store,
		opts:    opts,
		log:     log,
		metrics: m,
		funcs:   make(map[string]*compiled),
		specs:   make(map[string]*specEntry),
		noFast:  make(map[string]bool),
		warned:  make(map[string]bool),
	}
}

// Metrics returns the session's counters.
func (s *Session) Metrics() *Metrics { return s.metrics }

// Players returns the player script cache.
func (s *Session) Players() *playerjs.Cache { return s.players }

func funcKey(ref playerjs.Ref, kind Kind) string { return ref.Key() + "_" + string(kind) }

// loaded returns the compiled function for (ref, kind) if this session has
// already prepared it.
func (s *Session) loaded(ref playerjs.Ref, kind Kind) *compiled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.funcs[funcKey(ref, kind)]
}

// compiledFor returns the parsed transform function, reading the persisted
// snippet when there is one and otherwise fetching and extracting it.
func (s *Session) compiledFor(ctx context.Context, ref playerjs.Ref, kind Kind) (*compiled, error) {
	if c := s.loaded(ref, kind); c != nil {
		return c, nil
	}
	key := funcKey(ref, kind)
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		if c := s.loaded(ref, kind); c != nil {
			return c, nil
		}
		c, err := s.prepare(shared, ref, kind)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.funcs[key] = c
		s.mu.Unlock()
		return c, nil
	})
	select {
	case <-ctx.Done():
		return nil, classify(StageFetch, kind, ref.ID, fmt.Errorf("%w: %w", errs.ErrPlayerFetch, ctx.Err()))
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*compiled), nil
	}
}

func (s *Session) prepare(ctx context.Context, ref playerjs.Ref, kind Kind) (*compiled, error) {
	log := s.log.WithComponent(logger.ComponentExtract)
	key := funcKey(ref, kind)

	var stored ExtractedFunction
	if s.store.Load(cache.NamespaceJSFuncs, key, jsFuncFormatTag, &stored) && stored.Kind == kind && stored.Name != "" {
		prog, err := jsinterp.Parse(stored.Source())
		if err == nil {
			log.Debug("using persisted function", logger.Fields{"player": ref.ID, "kind": string(kind), "name": stored.Name})
			return &compiled{fn: &stored, prog: prog, hash: stored.Hash()}, nil
		}
		log.Debug("persisted function does not parse", logger.Fields{"player": ref.ID, "kind": string(kind), "error": err.Error()})
	}

	player, err := s.players.Get(ctx, ref)
	if err != nil {
		return nil, classify(StageFetch, kind, ref.ID, err)
	}
	s.rememberTimestamp(ref, player.Source)

	fn, err := Extract(player.Source, kind)
	if err != nil {
		return nil, classify(StageExtract, kind, ref.ID, err)
	}
	s.metrics.Extractions.WithLabelValues(string(kind), fn.Pattern).Inc()
	log.Debug("extracted function", logger.Fields{
		"player":    ref.ID,
		"kind":      string(kind),
		"name":      fn.Name,
		"pattern":   fn.Pattern,
		"auxiliary": len(fn.Auxiliary),
	})

	prog, err := jsinterp.Parse(fn.Source())
	if err != nil {
		return nil, classify(StageParse, kind, ref.ID, err)
	}
	if err := s.store.Store(cache.NamespaceJSFuncs, key, jsFuncFormatTag, fn); err != nil {
		log.Debug("cannot persist function", logger.Fields{"key": key, "error": err.Error()})
	}
	return &compiled{fn: fn, prog: prog, hash: fn.Hash()}, nil
}

// run calls the transform on input and requires a string result.
func (s *Session) run(c *compiled, kind Kind, input string) (string, error) {
	s.metrics.InterpreterRuns.WithLabelValues(string(kind)).Inc()
	v, err := c.prog.Call(c.fn.Name, jsinterp.Str(input))
	if err != nil {
		return "", err
	}
	if v.Kind() != jsinterp.KindString {
		return "", NewError(ErrCodeBadResult, StageInterpret, kind, "function returned "+v.Kind().String(), nil)
	}
	return v.String(), nil
}

// report counts a failure and warns once per (player, transform, stage).
func (s *Session) report(e *Error) error {
	s.metrics.Failures.WithLabelValues(string(e.Kind), e.Op).Inc()

	component, degraded := logger.ComponentSignature, "formats with a scrambled signature are unavailable"
	if e.Kind == KindNParam {
		component, degraded = logger.ComponentNParam, "expect throttled delivery"
	}
	dedup := strings.Join([]string{e.Version, string(e.Kind), e.Op}, "/")
	s.mu.Lock()
	first := !s.warned[dedup]
	s.warned[dedup] = true
	s.mu.Unlock()

	fields := logger.Fields{"player": e.Version, "stage": e.Op, "error": e.Error()}
	log := s.log.WithComponent(component)
	if first {
		log.Warn(string(e.Kind)+" "+e.Op+" failed; "+degraded, fields)
	} else {
		log.Debug(string(e.Kind)+" "+e.Op+" failed", fields)
	}
	return e
}

func (s *Session) rememberTimestamp(ref playerjs.Ref, source string) (int, bool) {
	sts, ok := playerjs.SignatureTimestamp(source)
	if !ok {
		return 0, false
	}
	if err := s.store.Store(cache.NamespaceTimestamp, ref.Key(), timestampFormatTag, sts); err != nil {
		s.log.WithComponent(logger.ComponentCache).Debug("cannot persist timestamp", logger.Fields{"player": ref.ID, "error": err.Error()})
	}
	return sts, true
}

// SignatureTimestamp returns the numeric protocol timestamp embedded in the
// player build, from the persistent cache when available.
func (s *Session) SignatureTimestamp(ctx context.Context, playerRef string) (int, error) {
	ref, err := playerjs.ParseRef(playerRef)
	if err != nil {
		return 0, classify(StageResolve, "", "", err)
	}
	var sts int
	if s.store.Load(cache.NamespaceTimestamp, ref.Key(), timestampFormatTag, &sts) && sts > 0 {
		return sts, nil
	}
	player, err := s.players.Get(ctx, ref)
	if err != nil {
		return 0, classify(StageFetch, "", ref.ID, err)
	}
	sts, ok := s.rememberTimestamp(ref, player.Source)
	if !ok {
		e := NewError(ErrCodeExtraction, StageExtract, "", "signature timestamp not found", nil)
		e.Version = ref.ID
		return 0, e
	}
	return sts, nil
}
