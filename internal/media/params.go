package media

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrValidation marks malformed client input.
var ErrValidation = errors.New("validation failed")

// MsgBadURL is returned for links that do not point at a supported video.
const MsgBadURL = "Bad youtube video link provided."

var sourceURLPattern = regexp.MustCompile(
	`^((https?)?:(//))?((?:www|m)\.)?((?:youtube\.com|youtu\.be))(/(?:[\w\-]+\?v=|embed/|v/)?)([\w\-]+)(\S+)?$`,
)

// ValidationError describes which field of a request was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NormalizeURL checks raw against the supported source pattern and strips
// playlist context so only the single video is fetched.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !sourceURLPattern.MatchString(raw) {
		return "", &ValidationError{Field: "url", Message: MsgBadURL}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw, nil //nolint:nilerr // pattern matched; keep as given
	}
	q := u.Query()
	if q.Has("list") && q.Get("v") != "" {
		return "https://www.youtube.com/watch?v=" + q.Get("v"), nil
	}
	return raw, nil
}

// DownloadParams is a client's request to fetch a media item.
type DownloadParams struct {
	URL           string      `json:"url"`
	VideoStreamID *string     `json:"videoStreamId"`
	AudioStreamID *string     `json:"audioStreamId"`
	MediaFormat   MediaFormat `json:"mediaFormat"`
}

// Validate normalizes the URL in place and checks stream selection and format.
func (p *DownloadParams) Validate() error {
	normalized, err := NormalizeURL(p.URL)
	if err != nil {
		return err
	}
	p.URL = normalized

	p.VideoStreamID = blankToNil(p.VideoStreamID)
	p.AudioStreamID = blankToNil(p.AudioStreamID)
	if p.VideoStreamID == nil && p.AudioStreamID == nil {
		return &ValidationError{
			Field:   "streams",
			Message: "Video or/and audio stream id should be specified for download.",
		}
	}

	if !p.MediaFormat.IsValid() {
		return &ValidationError{
			Field:   "mediaFormat",
			Message: fmt.Sprintf("Unsupported media format %q.", p.MediaFormat),
		}
	}
	return nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
