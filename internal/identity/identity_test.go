package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewClientID(t *testing.T) {
	a, err := NewClientID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewClientID()
	if err != nil {
		t.Fatal(err)
	}

	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(a) {
		t.Errorf("NewClientID() = %q, want 32 hex chars", a)
	}
	if a == b {
		t.Errorf("two ids are equal: %q", a)
	}
}

func TestService_SignVerify(t *testing.T) {
	svc := newService(t, Config{Secret: "s3cret"})

	token, err := svc.Sign("abc123")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	id, err := svc.Verify(token)
	if err != nil || id != "abc123" {
		t.Fatalf("Verify() = %q, %v; want abc123", id, err)
	}

	other := newService(t, Config{Secret: "different"})
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() with another secret error = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestService_Expired(t *testing.T) {
	svc := newService(t, Config{Secret: "s3cret", MaxAge: time.Hour})

	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.Sign("abc")
	if err != nil {
		t.Fatal(err)
	}

	svc.now = time.Now
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestService_GeneratedSecret(t *testing.T) {
	a := newService(t, Config{})
	b := newService(t, Config{})

	token, err := a.Sign("abc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("each generated secret must be distinct")
	}
	if a.CookieName() != DefaultCookieName {
		t.Errorf("CookieName() = %q, want %q", a.CookieName(), DefaultCookieName)
	}
}

func TestService_IssueAndFromRequest(t *testing.T) {
	svc := newService(t, Config{Secret: "s3cret", Secure: true, HTTPOnly: true, SameSite: "none"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := svc.FromRequest(req); !errors.Is(err, ErrNoClientID) {
		t.Errorf("FromRequest() without cookie error = %v, want ErrNoClientID", err)
	}

	clientID, cookie, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if cookie.Name != "uid" || cookie.Path != "/" {
		t.Errorf("cookie = %s at %s, want uid at /", cookie.Name, cookie.Path)
	}
	if !cookie.Secure || !cookie.HttpOnly || cookie.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie flags secure=%v httpOnly=%v sameSite=%v", cookie.Secure, cookie.HttpOnly, cookie.SameSite)
	}

	req.AddCookie(cookie)
	got, err := svc.FromRequest(req)
	if err != nil || got != clientID {
		t.Errorf("FromRequest() = %q, %v; want %q", got, err, clientID)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := map[string]http.SameSite{
		"Strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
		"lax":    http.SameSiteLaxMode,
		"bogus":  http.SameSiteLaxMode,
	}
	for in, want := range tests {
		if got := ParseSameSite(in); got != want {
			t.Errorf("ParseSameSite(%q) = %v, want %v", in, got, want)
		}
	}
}
