package playerjs

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ytget/descramble/errs"
)

// BaseURL is the origin relative player references are resolved against.
const BaseURL = "https://www.youtube.com"

// Ref identifies one player script build.
type Ref struct {
	URL     string // absolute script URL
	ID      string // version id, e.g. "3b5d5649"
	Variant string // build flavour, e.g. "player_ias" or "tv-player-ias"
}

// Key is a file-name-safe identifier for the build, used in cache keys.
func (r Ref) Key() string {
	return r.Variant + "_" + r.ID
}

// Ranked most specific first.
var playerInfoRes = []*regexp.Regexp{
	regexp.MustCompile(`/s/player/(?P<id>[a-zA-Z0-9_-]{8,})/(?P<variant>[a-zA-Z0-9_-]+)\.vflset(?:/[a-zA-Z]{2,3}_[a-zA-Z]{2,3})?/[a-zA-Z0-9_-]+\.js$`),
	regexp.MustCompile(`/(?P<id>[a-zA-Z0-9_-]{8,})/(?P<variant>player[a-zA-Z0-9_-]*)\.vflset(?:/[a-zA-Z]{2,3}_[a-zA-Z]{2,3})?/base\.js$`),
	regexp.MustCompile(`\b(?P<id>vfl[a-zA-Z0-9_-]+)\b.*?\.(?P<variant>[a-z]+)$`),
}

// ResolveURL turns a protocol-relative or site-relative player reference into
// an absolute URL.
func ResolveURL(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, `\/`, `/`))
	switch {
	case ref == "":
		return "", fmt.Errorf("%w: empty reference", errs.ErrPlayerURL)
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, nil
	}
	base, _ := url.Parse(BaseURL)
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrPlayerURL, err)
	}
	return base.ResolveReference(rel).String(), nil
}

// ParseRef resolves ref and derives the version id and variant from its path.
func ParseRef(ref string) (Ref, error) {
	abs, err := ResolveURL(ref)
	if err != nil {
		return Ref{}, err
	}
	u, err := url.Parse(abs)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", errs.ErrPlayerURL, err)
	}
	path := u.Path
	for _, re := range playerInfoRes {
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		r := Ref{URL: abs}
		for i, name := range re.SubexpNames() {
			switch name {
			case "id":
				r.ID = m[i]
			case "variant":
				r.Variant = m[i]
			}
		}
		return r, nil
	}
	return Ref{}, fmt.Errorf("%w: cannot identify player %q", errs.ErrPlayerURL, ref)
}

// URLForID builds the canonical desktop player URL for a version id.
func URLForID(id string) string {
	return fmt.Sprintf("%s/s/player/%s/player_ias.vflset/en_US/base.js", BaseURL, id)
}
