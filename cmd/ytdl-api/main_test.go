package main

import (
	"net/http"
	"testing"

	"github.com/ytdl/ytdl-api/internal/config"
	"github.com/ytdl/ytdl-api/internal/identity"
)

func TestIdentityConfig_CookieSettings(t *testing.T) {
	tests := []struct {
		sameSite string
		want     http.SameSite
	}{
		{"none", http.SameSiteNoneMode},
		{"strict", http.SameSiteStrictMode},
		{"lax", http.SameSiteLaxMode},
	}

	for _, tt := range tests {
		t.Run(tt.sameSite, func(t *testing.T) {
			cfg := config.Default()
			cfg.Auth.ClientSecret = "s3cret"
			cfg.Server.CookieSecure = true
			cfg.Server.CookieHTTPOnly = true
			cfg.Server.CookieSameSite = tt.sameSite

			ids, err := identity.NewService(identityConfig(cfg))
			if err != nil {
				t.Fatalf("NewService() error = %v", err)
			}
			_, cookie, err := ids.Issue()
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			if cookie.SameSite != tt.want {
				t.Errorf("SameSite = %v, want %v", cookie.SameSite, tt.want)
			}
			if !cookie.Secure || !cookie.HttpOnly {
				t.Errorf("Secure = %v, HttpOnly = %v, want both set", cookie.Secure, cookie.HttpOnly)
			}
		})
	}
}
