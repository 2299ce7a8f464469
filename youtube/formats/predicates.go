// Package formats turns a content item's raw media formats into usable
// stream URLs and picks among them.
package formats

import (
	"strings"

	"github.com/ytget/descramble/types"
)

// Extensions for the container types the player offers.
const (
	ExtMP4  = "mp4"
	ExtM4A  = "m4a"
	ExtWebM = "webm"
)

// Ext returns the file extension (without dot) for the format's MIME type,
// falling back to the subtype or mp4.
func Ext(format types.Format) string {
	mime := strings.ToLower(strings.TrimSpace(format.MimeType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "video/mp4":
		return ExtMP4
	case "audio/mp4":
		return ExtM4A
	case "video/webm", "audio/webm":
		return ExtWebM
	}
	if sub := getSubtype(mime); sub != "" {
		return sub
	}
	return ExtMP4
}

// hasDirectURL returns true when the format already contains a resolvable URL.
func hasDirectURL(format types.Format) bool {
	return strings.TrimSpace(format.URL) != ""
}

// extEquals checks the format's extension against desiredExt, which is
// case-insensitive and may start with a dot. An empty desiredExt matches all.
func extEquals(format types.Format, desiredExt string) bool {
	desired := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(desiredExt)), ".")
	if desired == "" {
		return true
	}
	return Ext(format) == desired
}

// itagEquals checks that format's itag matches the specified itag value.
// Returns false if itag is 0 or negative.
func itagEquals(format types.Format, itag int) bool {
	return itag > 0 && format.Itag == itag
}

// withinHeight checks whether the format's Quality label height is within [minHeight, maxHeight].
// A bound of 0 is ignored.
func withinHeight(format types.Format, minHeight int, maxHeight int) bool {
	if minHeight <= 0 && maxHeight <= 0 {
		return true
	}
	h := parseHeight(format.Quality)
	if minHeight > 0 && h < minHeight {
		return false
	}
	if maxHeight > 0 && h > maxHeight {
		return false
	}
	return true
}

// betterByHeightThenBitrate reports whether candidate beats current on
// height, with bitrate as the tiebreaker.
func betterByHeightThenBitrate(candidate types.Format, current types.Format) bool {
	candidateHeight := parseHeight(candidate.Quality)
	currentHeight := parseHeight(current.Quality)
	if candidateHeight != currentHeight {
		return candidateHeight > currentHeight
	}
	return candidate.Bitrate > current.Bitrate
}
