package cipher

import (
	"context"
	"fmt"
	"strings"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/logger"
	"github.com/ytget/descramble/youtube/playerjs"
)

// DecryptNParam transforms the throttling parameter. Every value is
// interpreted; only the parsed function is cached. A result equal to the
// input, or carrying the transform's exception sentinel, is a failure.
func (s *Session) DecryptNParam(ctx context.Context, value, contentID, playerRef string) (string, error) {
	ref, err := playerjs.ParseRef(playerRef)
	if err != nil {
		return "", s.report(classify(StageResolve, KindNParam, "", err))
	}
	c, err := s.compiledFor(ctx, ref, KindNParam)
	if err != nil {
		return "", s.report(classify(StageExtract, KindNParam, ref.ID, err))
	}
	out, err := s.run(c, KindNParam, value)
	if err != nil {
		return "", s.report(classify(StageInterpret, KindNParam, ref.ID, err))
	}
	if err := checkNResult(value, out); err != nil {
		e := NewError(ErrCodeBadResult, StageResult, KindNParam, "", err)
		e.Version = ref.ID
		return "", s.report(e)
	}
	s.log.WithComponent(logger.ComponentNParam).Trace("decrypted n", logger.Fields{"player": ref.ID, "content": contentID})
	return out, nil
}

func checkNResult(in, out string) error {
	switch {
	case out == in:
		return fmt.Errorf("%w: output equals input %q", errs.ErrBadResult, in)
	case strings.HasPrefix(out, nExceptPrefix):
		return fmt.Errorf("%w: exception sentinel %q", errs.ErrBadResult, out)
	case strings.HasSuffix(out, nExceptInfix+in):
		return fmt.Errorf("%w: exception sentinel %q", errs.ErrBadResult, out)
	}
	return nil
}
