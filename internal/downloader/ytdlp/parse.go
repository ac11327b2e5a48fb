package ytdlp

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

// progressPrefix tags lines written by our --progress-template.
const progressPrefix = "[progress]"

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// infoJSON is the subset of `yt-dlp -J` output we use.
type infoJSON struct {
	WebpageURL string       `json:"webpage_url"`
	Title      string       `json:"title"`
	Duration   float64      `json:"duration"`
	Thumbnail  string       `json:"thumbnail"`
	Formats    []formatJSON `json:"formats"`
}

type formatJSON struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	ACodec     string   `json:"acodec"`
	VCodec     string   `json:"vcodec"`
	ABR        *float64 `json:"abr"`
	FormatNote *string  `json:"format_note"`
}

// parseVideoInfo converts yt-dlp's JSON dump into VideoInfo. Audio streams are
// audio-only formats with a known bitrate; video streams are video-only
// formats with a format note.
func parseVideoInfo(data []byte) (*types.VideoInfo, error) {
	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse video info: %v", types.ErrUpstream, err)
	}

	result := &types.VideoInfo{
		URL:          info.WebpageURL,
		Title:        info.Title,
		Duration:     int(math.Round(info.Duration)),
		ThumbnailURL: info.Thumbnail,
		AudioStreams: []media.AudioStream{},
		VideoStreams: []media.VideoStream{},
		MediaFormats: media.AllFormats,
	}

	for _, f := range info.Formats {
		audioOnly := f.ACodec != "none" && f.ACodec != "" && f.VCodec == "none"
		videoOnly := f.ACodec == "none" && f.VCodec != "none" && f.VCodec != ""

		switch {
		case audioOnly && f.ABR != nil:
			result.AudioStreams = append(result.AudioStreams, media.AudioStream{
				ID:       f.FormatID,
				Mimetype: f.Ext,
				Bitrate:  fmt.Sprintf("%dkbps", int(math.Round(*f.ABR))),
			})
		case videoOnly && f.FormatNote != nil:
			result.VideoStreams = append(result.VideoStreams, media.VideoStream{
				ID:         f.FormatID,
				Mimetype:   f.Ext,
				Resolution: *f.FormatNote,
			})
		}
	}

	return result, nil
}

// parseProgress extracts a percentage from a progress template line.
// ok is false for lines that are not progress lines.
func parseProgress(line string) (media.Progress, bool) {
	if !strings.HasPrefix(line, progressPrefix) {
		return media.Progress{}, false
	}
	match := percentPattern.FindStringSubmatch(line)
	if match == nil {
		return media.Indeterminate(), true
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return media.Indeterminate(), true
	}
	return media.Percent(int(v)), true
}

// isPostprocessLine reports whether yt-dlp has moved on to merging or
// converting the fetched streams.
func isPostprocessLine(line string) bool {
	return strings.HasPrefix(line, "[Merger]") ||
		strings.HasPrefix(line, "[ExtractAudio]") ||
		strings.HasPrefix(line, "[VideoConvertor]") ||
		strings.HasPrefix(line, "[FixupM3u8]")
}

// classifyError maps yt-dlp's stderr to a domain error.
func classifyError(stderr string) error {
	msg := lastErrorLine(stderr)
	lower := strings.ToLower(stderr)

	var kind error
	switch {
	case strings.Contains(stderr, "Private video"):
		kind = types.ErrPrivateVideo
	case strings.Contains(lower, "not a bot"):
		kind = types.ErrBotVerification
	case strings.Contains(lower, "confirm your age") || strings.Contains(lower, "age-restricted") || strings.Contains(lower, "inappropriate for some users"):
		kind = types.ErrAgeRestricted
	case strings.Contains(stderr, "Unsupported URL") || strings.Contains(lower, "is not a valid url") || strings.Contains(lower, "incomplete youtube id"):
		kind = types.ErrMalformedURL
	case strings.Contains(stderr, "Video unavailable") || strings.Contains(lower, "has been removed"):
		kind = types.ErrUnavailable
	default:
		kind = types.ErrUpstream
	}

	if msg == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, msg)
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}
