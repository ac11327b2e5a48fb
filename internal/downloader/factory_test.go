package downloader

import (
	"errors"
	"testing"

	"github.com/ytdl/ytdl-api/internal/testutil"
)

func TestNew_Mock(t *testing.T) {
	d, err := New(Config{Type: DownloaderTypeMock, TempDir: t.TempDir()}, testutil.NopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.Type() != DownloaderTypeMock {
		t.Errorf("Type() = %q, want %q", d.Type(), DownloaderTypeMock)
	}
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New(Config{Type: "aria2"}, testutil.NopLogger())
	if !errors.Is(err, ErrUnsupportedDownloader) {
		t.Errorf("New() error = %v, want ErrUnsupportedDownloader", err)
	}
}

func TestNew_MissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := New(Config{Type: DownloaderTypeYTDLP, Binary: "/nonexistent/yt-dlp"}, testutil.NopLogger())
	if err == nil {
		t.Skip("yt-dlp found in a common location")
	}
	if !errors.Is(err, ErrNotInstalled) {
		t.Errorf("New() error = %v, want ErrNotInstalled", err)
	}
}

func TestIsTypeSupported(t *testing.T) {
	tests := map[string]bool{
		"yt-dlp":      true,
		"mock":        true,
		"qbittorrent": false,
	}
	for typ, want := range tests {
		if got := IsTypeSupported(typ); got != want {
			t.Errorf("IsTypeSupported(%q) = %v, want %v", typ, got, want)
		}
	}
}
