package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apimw "github.com/ytdl/ytdl-api/internal/api/middleware"
	"github.com/ytdl/ytdl-api/internal/media"
)

// getVersion reports API and downloader versions.
// GET /api/version
func (s *Server) getVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, s.lifecycle.Version(c.Request().Context()))
}

// listDownloads returns the caller's downloads, newest first.
// GET /api/downloads
func (s *Server) listDownloads(c echo.Context) error {
	downloads, err := s.lifecycle.List(c.Request().Context(), apimw.ClientIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDownloadsResponse(downloads))
}

// preview fetches video metadata without recording anything.
// GET /api/preview?url=
func (s *Server) preview(c echo.Context) error {
	info, err := s.lifecycle.Preview(c.Request().Context(), c.QueryParam("url"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, normalizeVideoInfo(info))
}

// submitDownload records and schedules a download.
// PUT /api/download
func (s *Server) submitDownload(c echo.Context) error {
	var params media.DownloadParams
	if err := c.Bind(&params); err != nil {
		return &media.ValidationError{Field: "body", Message: "Request body is not valid JSON."}
	}

	downloads, err := s.lifecycle.Submit(c.Request().Context(), apimw.ClientIDFrom(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newDownloadsResponse(downloads))
}

// downloadFile streams the finished artifact and marks it retrieved.
// GET /api/download?mediaId=
func (s *Server) downloadFile(c echo.Context) error {
	mediaID, err := requireMediaID(c)
	if err != nil {
		return err
	}

	d, body, err := s.lifecycle.OpenFile(c.Request().Context(), apimw.ClientIDFrom(c), mediaID)
	if err != nil {
		return err
	}
	defer body.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition("attachment", d.Filename()))
	return c.Stream(http.StatusOK, d.MediaFormat.ContentType(), body)
}

// deleteDownload soft deletes a download and its artifact.
// DELETE /api/delete?mediaId=
func (s *Server) deleteDownload(c echo.Context) error {
	mediaID, err := requireMediaID(c)
	if err != nil {
		return err
	}

	result, err := s.lifecycle.Delete(c.Request().Context(), apimw.ClientIDFrom(c), mediaID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// retryDownload reschedules a failed or stalled download.
// PUT /api/retry?mediaId=
func (s *Server) retryDownload(c echo.Context) error {
	mediaID, err := requireMediaID(c)
	if err != nil {
		return err
	}

	if err := s.lifecycle.Retry(c.Request().Context(), apimw.ClientIDFrom(c), mediaID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RetryResponse{MediaID: mediaID, Status: media.StatusStarted})
}

func requireMediaID(c echo.Context) (string, error) {
	mediaID := strings.TrimSpace(c.QueryParam("mediaId"))
	if mediaID == "" {
		return "", &media.ValidationError{Field: "mediaId", Message: "Query parameter mediaId is required."}
	}
	return mediaID, nil
}

// contentDisposition builds the header value, switching to the RFC 5987
// extended form when filename does not survive percent encoding unchanged.
func contentDisposition(kind, filename string) string {
	escaped := percentEncode(filename)
	if escaped != filename {
		return kind + "; filename*=utf-8''" + escaped
	}
	return kind + `; filename="` + filename + `"`
}

// percentEncode escapes every byte outside the unreserved set and '/'.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	return strings.IndexByte("-._~/", ch) >= 0
}
