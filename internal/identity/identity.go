// Package identity issues and verifies the signed client id cookie that scopes
// every download to the browser that submitted it.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultCookieName = "uid"
	DefaultMaxAge     = 365 * 24 * time.Hour

	issuer = "ytdl-api"
)

var (
	ErrNoClientID   = errors.New("no client id")
	ErrInvalidToken = errors.New("invalid client id token")
)

// Config controls how the cookie is signed and what attributes it carries.
type Config struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	HTTPOnly   bool
	SameSite   string // lax, strict, none
}

// Claims carries the client id in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies client id tokens.
type Service struct {
	cfg    Config
	secret []byte
	now    func() time.Time
}

// NewService creates an identity service. An empty secret is replaced with a
// random one, which invalidates issued cookies on restart.
func NewService(cfg Config) (*Service, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	return &Service{
		cfg:    cfg,
		secret: secret,
		now:    time.Now,
	}, nil
}

// CookieName returns the name of the client id cookie.
func (s *Service) CookieName() string {
	return s.cfg.CookieName
}

// NewClientID returns a random 32 character hex id.
func NewClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Sign returns a token naming clientID.
func (s *Service) Sign(clientID string) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.MaxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the client id carried by tokenString.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromRequest returns the verified client id from the request cookie.
func (s *Service) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoClientID
	}
	return s.Verify(cookie.Value)
}

// Issue creates a new client id and the cookie carrying it.
func (s *Service) Issue() (string, *http.Cookie, error) {
	clientID, err := NewClientID()
	if err != nil {
		return "", nil, err
	}
	token, err := s.Sign(clientID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign client id: %w", err)
	}
	return clientID, s.Cookie(token), nil
}

// Cookie wraps token in a cookie with the configured attributes.
func (s *Service) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.MaxAge.Seconds()),
		Expires:  s.now().Add(s.cfg.MaxAge),
		Secure:   s.cfg.Secure,
		HttpOnly: s.cfg.HTTPOnly,
		SameSite: ParseSameSite(s.cfg.SameSite),
	}
}

// ParseSameSite maps a config value to a cookie SameSite mode. Unknown values
// fall back to lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
