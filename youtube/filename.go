package youtube

import (
	"regexp"
	"strings"
)

const maxFilenameLength = 200

var underscoreRuns = regexp.MustCompile(`_+`)

// SanitizeFilename cleans a video title for use as a filename: invalid and
// non-ASCII characters become underscores, underscore runs collapse, leading
// and trailing dots/spaces are trimmed, and the result is capped at 200
// characters.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		case r > 127:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := underscoreRuns.ReplaceAllString(b.String(), "_")
	out = strings.Trim(out, ". ")

	if len(out) > maxFilenameLength {
		out = out[:maxFilenameLength-4] + "..."
	}
	return out
}

// VideoFilename builds the final filename for a downloaded video.
func VideoFilename(title, videoID string) string {
	return SanitizeFilename(title) + "_" + videoID + ".mp4"
}
