package types

import (
	"net/url"
	"strings"
)

// Format describes one media format offered for a content item.
type Format struct {
	Itag     int    `json:"itag"`
	URL      string `json:"url,omitempty"`
	Quality  string `json:"qualityLabel,omitempty"`
	MimeType string `json:"mimeType"`
	Bitrate  int    `json:"bitrate,omitempty"`
	Size     int64  `json:"contentLength,omitempty"`
	// SignatureCipher is the raw "s=...&sp=...&url=..." query of a format
	// whose URL still needs signature descrambling.
	SignatureCipher string `json:"signatureCipher,omitempty"`
}

// NeedsSignature reports whether the format has no usable URL yet.
func (f Format) NeedsSignature() bool {
	return strings.TrimSpace(f.URL) == "" && strings.TrimSpace(f.SignatureCipher) != ""
}

// Cipher is the parsed form of Format.SignatureCipher.
type Cipher struct {
	S   string // scrambled signature
	SP  string // query parameter the descrambled signature goes into
	URL string // stream URL without the signature
}

// ParseCipher splits a signatureCipher query. SP defaults to "signature".
func ParseCipher(raw string) (Cipher, error) {
	q, err := url.ParseQuery(raw)
	if err != nil {
		return Cipher{}, err
	}
	c := Cipher{S: q.Get("s"), SP: q.Get("sp"), URL: q.Get("url")}
	if c.SP == "" {
		c.SP = "signature"
	}
	return c, nil
}
