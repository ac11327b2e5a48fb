package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	dltypes "github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/identity"
	"github.com/ytdl/ytdl-api/internal/lifecycle"
	"github.com/ytdl/ytdl-api/internal/media"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeNotFound        = "not-found"
	CodeNotReady        = "not-ready"
	CodeArtifactMissing = "artifact-missing"
	CodeNotDownloaded   = "not-downloaded"
	CodeCannotRetry     = "cannot-retry"
	CodeValidation      = "validation-error"
	CodePrivateVideo    = "private-video"
	CodeAgeRestricted   = "age-restricted-content"
	CodeBotVerification = "bot-verification-error"
	CodeDownloader      = "downloader-error"
	CodeNoClientID      = "no-client-id"
	CodeBadRequest      = "bad-request"
	CodeTooManyRequests = "too-many-requests"
	CodeLogUnavailable  = "log-file-unavailable"
	CodeInternal        = "internal-server-error"
)

const (
	msgDownloaderError    = "Downloader encountered error. Please try again later or contact administrator"
	msgInternalError      = "Remote server encountered problem, please try again..."
	msgNoClientID         = "No cookie provided :("
	msgPrivateVideo       = "Video is private. Unable to download"
	msgAgeRestricted      = "Content is age restricted. Unable to download"
	msgBotVerification    = "Bot verification detected. Please try again later or contact administrator"
	msgDownloadNotFound   = "Download not found"
	msgFileNotReady       = "File not downloaded yet"
	msgArtifactMissing    = "Download is finished but file not found"
	msgMediaNotDownloaded = "Media file is not downloaded yet"
	msgCannotRetry        = "Download cannot be retried"
	msgLogFileDisabled    = "Logging to file is disabled"
	msgLogFileMissing     = "Log file has not been written yet"
	msgLogQuery           = "level must be a log level and limit a positive number"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
	detail string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{lifecycle.ErrNotFound, http.StatusNotFound, CodeNotFound, msgDownloadNotFound},
	{lifecycle.ErrArtifactMissing, http.StatusNotFound, CodeArtifactMissing, msgArtifactMissing},
	{lifecycle.ErrNotReady, http.StatusBadRequest, CodeNotReady, msgFileNotReady},
	{lifecycle.ErrNotDownloaded, http.StatusBadRequest, CodeNotDownloaded, msgMediaNotDownloaded},
	{lifecycle.ErrCannotRetry, http.StatusBadRequest, CodeCannotRetry, msgCannotRetry},
	{identity.ErrNoClientID, http.StatusForbidden, CodeNoClientID, msgNoClientID},
	{identity.ErrInvalidToken, http.StatusForbidden, CodeNoClientID, msgNoClientID},
	{dltypes.ErrMalformedURL, http.StatusUnprocessableEntity, CodeValidation, media.MsgBadURL},
	{dltypes.ErrPrivateVideo, http.StatusForbidden, CodePrivateVideo, msgPrivateVideo},
	{dltypes.ErrAgeRestricted, http.StatusUnauthorized, CodeAgeRestricted, msgAgeRestricted},
	{dltypes.ErrBotVerification, http.StatusForbidden, CodeBotVerification, msgBotVerification},
	{dltypes.ErrUnavailable, http.StatusInternalServerError, CodeDownloader, msgDownloaderError},
	{dltypes.ErrUpstream, http.StatusInternalServerError, CodeDownloader, msgDownloaderError},
	{dltypes.ErrNotInstalled, http.StatusInternalServerError, CodeDownloader, msgDownloaderError},
	{errLogFileDisabled, http.StatusNotFound, CodeLogUnavailable, msgLogFileDisabled},
	{errLogFileMissing, http.StatusNotFound, CodeLogUnavailable, msgLogFileMissing},
	{errLogQuery, http.StatusUnprocessableEntity, CodeValidation, msgLogQuery},
}

// classify maps err to a status and body. The boolean is false for errors
// nothing recognizes, which are reported as internal errors.
func classify(err error) (int, ErrorResponse, bool) {
	var verr *media.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, ErrorResponse{Detail: verr.Message, Code: CodeValidation}, true
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, ErrorResponse{Detail: m.detail, Code: m.code}, true
		}
	}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		detail := http.StatusText(herr.Code)
		if msg, ok := herr.Message.(string); ok && msg != "" {
			detail = msg
		}
		return herr.Code, ErrorResponse{Detail: detail, Code: codeForStatus(herr.Code)}, true
	}

	return http.StatusInternalServerError, ErrorResponse{Detail: msgInternalError, Code: CodeInternal}, false
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	case http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusForbidden:
		return CodeNoClientID
	}
	if status >= http.StatusInternalServerError {
		return CodeInternal
	}
	return CodeBadRequest
}

// errorHandler renders every handler error as an ErrorResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body, known := classify(err)
	if !known {
		s.logger.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Msg("Unhandled request error")
	} else if body.Code == CodeDownloader {
		s.logger.Warn().Err(err).Str("uri", c.Request().RequestURI).Msg("Downloader error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to write error response")
	}
}
