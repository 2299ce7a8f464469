package playerjs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/valyala/fastjson"

	"github.com/ytget/descramble/errs"
)

var (
	jsURLRe        = regexp.MustCompile(`"(?:jsUrl|PLAYER_JS_URL)"\s*:\s*"([^"]+)"`)
	ytcfgSetRe     = regexp.MustCompile(`ytcfg\.set\s*\(\s*\{`)
	iframeAPIRe    = regexp.MustCompile(`player\\?/([a-zA-Z0-9_-]{8,})\\?/`)
	sigTimestampRe = regexp.MustCompile(`(?:signatureTimestamp|sts)\s*:\s*(\d{5})`)
)

// FindPlayerURL locates the player script reference embedded in page text and
// returns it as an absolute URL. It tries the ytcfg JSON blob, then raw
// "jsUrl" fields, then <script src> tags, then the iframe API player path.
func FindPlayerURL(page string) (string, error) {
	if ref := playerURLFromYtcfg(page); ref != "" {
		return ResolveURL(ref)
	}
	if m := jsURLRe.FindStringSubmatch(page); m != nil {
		return ResolveURL(m[1])
	}
	if ref := playerURLFromScripts(page); ref != "" {
		return ResolveURL(ref)
	}
	if m := iframeAPIRe.FindStringSubmatch(page); m != nil {
		return URLForID(m[1]), nil
	}
	return "", fmt.Errorf("%w: no player reference in page", errs.ErrPlayerURL)
}

func playerURLFromYtcfg(page string) string {
	for _, loc := range ytcfgSetRe.FindAllStringIndex(page, -1) {
		start := loc[1] - 1
		end := jsonObjectEnd(page, start)
		if end < 0 {
			continue
		}
		var p fastjson.Parser
		v, err := p.Parse(page[start : end+1])
		if err != nil {
			continue
		}
		if s := v.GetStringBytes("PLAYER_JS_URL"); len(s) > 0 {
			return string(s)
		}
		if ctxs := v.GetObject("WEB_PLAYER_CONTEXT_CONFIGS"); ctxs != nil {
			var found string
			ctxs.Visit(func(_ []byte, cfg *fastjson.Value) {
				if found == "" {
					found = string(cfg.GetStringBytes("jsUrl"))
				}
			})
			if found != "" {
				return found
			}
		}
	}
	return ""
}

// jsonObjectEnd returns the index of the brace closing the object opened at
// start, or -1.
func jsonObjectEnd(s string, start int) int {
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func playerURLFromScripts(page string) string {
	if !strings.Contains(page, "<script") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.Contains(src, "/player") && strings.HasSuffix(src, ".js") {
			if _, err := ParseRef(src); err == nil {
				found = src
				return false
			}
		}
		return true
	})
	return found
}

// SignatureTimestamp extracts the numeric signature timestamp the request
// protocol needs alongside deciphered URLs.
func SignatureTimestamp(source string) (int, bool) {
	m := sigTimestampRe.FindStringSubmatch(source)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
