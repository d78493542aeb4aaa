// Package youtube provides YouTube URL resolution, metadata extraction, and
// video downloading.
package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Sentinel errors for YouTube operations.
var (
	ErrInvalidURL        = errors.New("youtube: invalid URL")
	ErrVideoUnavailable  = errors.New("youtube: video unavailable")
	ErrPrivateVideo      = errors.New("youtube: private video")
	ErrAgeRestricted     = errors.New("youtube: age-restricted video")
	ErrLiveStream        = errors.New("youtube: live streams are not supported")
	ErrPlaylistURL       = errors.New("youtube: URL is a playlist, not a single video")
	ErrRateLimited       = errors.New("youtube: rate limited")
	ErrNetworkTimeout    = errors.New("youtube: network timeout")
	ErrYtdlpNotInstalled = errors.New("youtube: yt-dlp not installed")
)

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
}

// ParseVideoID validates a YouTube URL and extracts the 11-character video ID.
//
// Supported forms:
//
//	https://www.youtube.com/watch?v=VIDEO_ID
//	https://youtu.be/VIDEO_ID
//	https://youtube.com/shorts/VIDEO_ID
//	https://www.youtube.com/embed/VIDEO_ID
//	https://www.youtube.com/v/VIDEO_ID
//	VIDEO_ID
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	// Bare video ID
	if videoIDRegex.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}

	var id string
	switch {
	case u.Host == "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")

	case youtubeHosts[u.Host]:
		switch {
		case strings.HasPrefix(u.Path, "/watch"):
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/v/"):
			id = strings.TrimPrefix(u.Path, "/v/")
		case strings.HasPrefix(u.Path, "/playlist"):
			return "", ErrPlaylistURL
		}
	}

	id = strings.SplitN(id, "/", 2)[0]

	if !videoIDRegex.MatchString(id) {
		return "", fmt.Errorf("%w: cannot extract video ID from %q", ErrInvalidURL, input)
	}
	return id, nil
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
