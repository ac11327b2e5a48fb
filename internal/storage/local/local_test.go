package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ytdl/ytdl-api/internal/media"
	"github.com/ytdl/ytdl-api/internal/storage/types"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.tmp")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newStorage(t *testing.T, root string) *Storage {
	t.Helper()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStorage_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, filepath.Join(t.TempDir(), "media"))

	d := &media.Download{MediaID: "m1", MediaFormat: media.FormatMP4}
	key, err := s.Save(ctx, d, writeArtifact(t, "video bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if key != "m1.mp4" {
		t.Errorf("key = %q, want m1.mp4", key)
	}

	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}
	if string(data) != "video bytes" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Open(ctx, key); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Open() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStorage_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, t.TempDir())

	d := &media.Download{MediaID: "m1", MediaFormat: media.FormatMP3}
	if _, err := s.Save(ctx, d, writeArtifact(t, "first")); err != nil {
		t.Fatal(err)
	}
	key, err := s.Save(ctx, d, writeArtifact(t, "second"))
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(s.Root(), key))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
}

func TestStorage_SaveMissingArtifact(t *testing.T) {
	s := newStorage(t, t.TempDir())

	d := &media.Download{MediaID: "m1", MediaFormat: media.FormatMP3}
	if _, err := s.Save(context.Background(), d, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Save() accepted a missing artifact")
	}
}

func TestStorage_RejectsTraversal(t *testing.T) {
	s := newStorage(t, t.TempDir())

	for _, key := range []string{"", "..", "../etc/passwd", "a/b"} {
		if _, err := s.Open(context.Background(), key); !errors.Is(err, types.ErrInvalidKey) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestStorage_DeleteBatch(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, t.TempDir())

	d := &media.Download{MediaID: "m1", MediaFormat: media.FormatWAV}
	key, err := s.Save(ctx, d, writeArtifact(t, "x"))
	if err != nil {
		t.Fatal(err)
	}

	keys := []string{key, "missing.mp4"}

	t.Run("strict reports missing", func(t *testing.T) {
		if _, err := s.Save(ctx, d, writeArtifact(t, "x")); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteBatch(ctx, keys, false); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("DeleteBatch() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("tolerant ignores missing", func(t *testing.T) {
		if _, err := s.Save(ctx, d, writeArtifact(t, "x")); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteBatch(ctx, keys, true); err != nil {
			t.Errorf("DeleteBatch() error = %v", err)
		}
		if _, err := s.Open(ctx, key); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Open() after batch delete error = %v, want ErrNotFound", err)
		}
	})
}
