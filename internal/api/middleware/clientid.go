package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/identity"
)

const clientIDKey = "clientID"

// ClientIDFrom returns the client id resolved by RequireClientID or
// IssueClientID.
func ClientIDFrom(c echo.Context) string {
	id, _ := c.Get(clientIDKey).(string)
	return id
}

// RequireClientID rejects requests without a valid client id cookie.
func RequireClientID(svc *identity.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := svc.FromRequest(c.Request())
			if err != nil {
				return err
			}
			c.Set(clientIDKey, id)
			return next(c)
		}
	}
}

// IssueClientID resolves the client id cookie, issuing a new one when it is
// absent or no longer verifies.
func IssueClientID(svc *identity.Service, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := svc.FromRequest(c.Request())
			if err != nil {
				newID, cookie, ierr := svc.Issue()
				if ierr != nil {
					return ierr
				}
				c.SetCookie(cookie)
				logger.Debug().
					Str("clientId", newID).
					Bool("replaced", !errors.Is(err, identity.ErrNoClientID)).
					Msg("Issued client id")
				id = newID
			}
			c.Set(clientIDKey, id)
			return next(c)
		}
	}
}
