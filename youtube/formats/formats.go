package formats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/logger"
	"github.com/ytget/descramble/types"
	"github.com/ytget/descramble/youtube/cipher"
)

var heightRe = regexp.MustCompile(`([0-9]{3,4})p`)

func getSubtype(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func parseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// Decrypter applies the player's URL transforms. *cipher.Session satisfies it.
type Decrypter interface {
	DecryptSignature(ctx context.Context, cipherText, contentID, playerRef string) (string, error)
	DecryptNParam(ctx context.Context, value, contentID, playerRef string) (string, error)
}

// Rejection records a format dropped during resolution.
type Rejection struct {
	Itag      int
	Transform string // "signature", "nparam" or "" for a malformed format
	Stage     string
	Err       error
}

// ParseFormats reads the progressive and adaptive formats from a player
// response's streamingData object.
func ParseFormats(playerResponse []byte) ([]types.Format, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(playerResponse)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFormat, err)
	}
	sd := v.Get("streamingData")
	if sd == nil {
		return nil, fmt.Errorf("%w: no streamingData", errs.ErrFormat)
	}
	var formats []types.Format
	for _, list := range []string{"formats", "adaptiveFormats"} {
		for _, f := range sd.GetArray(list) {
			format := types.Format{
				Itag:     f.GetInt("itag"),
				MimeType: string(f.GetStringBytes("mimeType")),
				Quality:  string(f.GetStringBytes("qualityLabel")),
				Bitrate:  f.GetInt("bitrate"),
				URL:      string(f.GetStringBytes("url")),
			}
			if size, err := strconv.ParseInt(string(f.GetStringBytes("contentLength")), 10, 64); err == nil {
				format.Size = size
			}
			if format.URL == "" {
				format.SignatureCipher = string(f.GetStringBytes("signatureCipher"))
				if format.SignatureCipher == "" {
					format.SignatureCipher = string(f.GetStringBytes("cipher"))
				}
			}
			formats = append(formats, format)
		}
	}
	return formats, nil
}

// ResolveFormatURL builds the final URL for f: the signature is descrambled
// when the format carries a cipher, and the "n" parameter whenever present.
// Either failure fails the format.
func ResolveFormatURL(ctx context.Context, d Decrypter, f types.Format, contentID, playerRef string) (string, error) {
	raw := strings.TrimSpace(f.URL)
	var sig, sp string
	if raw == "" {
		if strings.TrimSpace(f.SignatureCipher) == "" {
			return "", fmt.Errorf("%w: itag %d has no url or signatureCipher", errs.ErrFormat, f.Itag)
		}
		c, err := types.ParseCipher(f.SignatureCipher)
		if err != nil {
			return "", fmt.Errorf("%w: itag %d: %v", errs.ErrFormat, f.Itag, err)
		}
		if c.URL == "" || c.S == "" {
			return "", fmt.Errorf("%w: itag %d: signatureCipher missing signature or url", errs.ErrFormat, f.Itag)
		}
		raw, sig, sp = c.URL, c.S, c.SP
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: itag %d: %v", errs.ErrFormat, f.Itag, err)
	}
	q := u.Query()
	if sig != "" {
		plain, err := d.DecryptSignature(ctx, sig, contentID, playerRef)
		if err != nil {
			return "", err
		}
		q.Set(sp, plain)
	}
	if n := q.Get("n"); n != "" {
		out, err := d.DecryptNParam(ctx, n, contentID, playerRef)
		if err != nil {
			return "", err
		}
		q.Set("n", out)
	}
	// Ensure ratebypass for ranged requests
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Resolve descrambles every format and returns the ones that now carry a
// usable URL, in input order. Formats that fail are dropped and reported;
// one format failing never affects the others.
func Resolve(ctx context.Context, d Decrypter, list []types.Format, contentID, playerRef string, log *logger.Logger) ([]types.Format, []Rejection) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	flog := log.WithComponent(logger.ComponentFormat)

	out := make([]types.Format, 0, len(list))
	var rejected []Rejection
	for _, f := range list {
		resolved, err := ResolveFormatURL(ctx, d, f, contentID, playerRef)
		if err != nil {
			r := rejection(f.Itag, err)
			rejected = append(rejected, r)
			flog.Warn("format dropped", logger.Fields{
				"content":   contentID,
				"itag":      f.Itag,
				"transform": r.Transform,
				"stage":     r.Stage,
				"error":     err.Error(),
			})
			continue
		}
		f.URL = resolved
		f.SignatureCipher = ""
		out = append(out, f)
	}
	flog.Debug("formats resolved", logger.Fields{
		"content": contentID,
		"usable":  len(out),
		"dropped": len(rejected),
	})
	return out, rejected
}

func rejection(itag int, err error) Rejection {
	r := Rejection{Itag: itag, Err: err, Stage: "format"}
	var ce *cipher.Error
	if errors.As(err, &ce) {
		r.Transform = string(ce.Kind)
		r.Stage = ce.Op
	}
	return r
}

// SelectFormat chooses a format according to criteria.
// Supported selectors:
//   - itag=NN: specific format by itag
//   - best: highest quality (height, then bitrate)
//   - worst: lowest quality
//   - height<=NNN / height>=NNN: height bounds
//
// ext filters by file extension ("mp4", "m4a", "webm"). Without a selector,
// or when nothing matches it, itag 22 then itag 18 are preferred, then a
// progressive mp4 with avc1, else the first format. It returns nil for an
// empty list.
func SelectFormat(formats []types.Format, quality, ext string) *types.Format {
	if len(formats) == 0 {
		return nil
	}
	filtered := make([]types.Format, 0, len(formats))
	for i := range formats {
		if extEquals(formats[i], ext) {
			filtered = append(filtered, formats[i])
		}
	}
	if len(filtered) == 0 {
		filtered = append(filtered, formats...)
	}

	q := strings.TrimSpace(strings.ToLower(quality))
	if strings.HasPrefix(q, "itag=") {
		if it, err := strconv.Atoi(strings.TrimPrefix(q, "itag=")); err == nil {
			for i := range filtered {
				if itagEquals(filtered[i], it) {
					return &filtered[i]
				}
			}
		}
	}

	var minH, maxH int
	if v, ok := strings.CutPrefix(q, "height<="); ok {
		maxH, _ = strconv.Atoi(v)
	}
	if v, ok := strings.CutPrefix(q, "height>="); ok {
		minH, _ = strconv.Atoi(v)
	}
	if minH > 0 || maxH > 0 {
		tmp := make([]types.Format, 0, len(filtered))
		for i := range filtered {
			if withinHeight(filtered[i], minH, maxH) {
				tmp = append(tmp, filtered[i])
			}
		}
		if len(tmp) > 0 {
			filtered = tmp
		}
	}

	switch q {
	case "best":
		best := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(f, best) {
				best = f
			}
		}
		return &best
	case "worst":
		worst := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(worst, f) {
				worst = f
			}
		}
		return &worst
	}

	for _, itag := range []int{22, 18} {
		for i := range filtered {
			if filtered[i].Itag == itag {
				return &filtered[i]
			}
		}
	}
	for i := range filtered {
		if strings.Contains(filtered[i].MimeType, "video/mp4") && strings.Contains(filtered[i].MimeType, "avc1") {
			return &filtered[i]
		}
	}
	for i := range filtered {
		if hasDirectURL(filtered[i]) {
			return &filtered[i]
		}
	}
	return &filtered[0]
}
