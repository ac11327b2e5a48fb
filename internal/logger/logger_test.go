package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if got := rb.GetAll(); len(got) != 0 {
		t.Errorf("GetAll() on empty buffer = %v", got)
	}

	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}
	if rb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rb.Len())
	}
	if got := rb.GetAll(); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("GetAll() = %v, want [3 4 5]", got)
	}

	rb.Clear()
	if rb.Len() != 0 {
		t.Errorf("Len() after Clear = %d", rb.Len())
	}
	rb.Push(9)
	if got := rb.GetAll(); !slices.Equal(got, []int{9}) {
		t.Errorf("GetAll() = %v, want [9]", got)
	}
}

func TestLogger_CapturesEntries(t *testing.T) {
	var out bytes.Buffer
	log := newLogger(Config{Level: "debug", Format: "json", BufferSize: 2}, &out)

	log.WithComponent("lifecycle").Info().Str("mediaId", "abc").Msg("first")
	log.Info().Msg("second")
	log.Warn().Msg("third")
	log.Trace().Msg("filtered")

	entries := log.GetRecentLogs()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Errorf("messages = %q, %q", entries[0].Message, entries[1].Message)
	}
	if entries[1].Level != "warn" || entries[1].Timestamp == "" {
		t.Errorf("entry = %+v, want warn with a timestamp", entries[1])
	}
	if !strings.Contains(out.String(), `"message":"first"`) {
		t.Errorf("output missing first entry: %s", out.String())
	}
}

func TestLogger_ComponentAndFields(t *testing.T) {
	log := newLogger(Config{Format: "json", BufferSize: 10}, &bytes.Buffer{})
	log.WithComponent("expiration").Info().Int("count", 2).Msg("swept")

	entries := log.WithComponent("other").GetRecentLogs()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Component != "expiration" {
		t.Errorf("Component = %q", entries[0].Component)
	}
	if n, ok := entries[0].Fields["count"].(float64); !ok || n != 2 {
		t.Errorf("Fields[count] = %v", entries[0].Fields["count"])
	}
}

func TestLogger_NoBuffer(t *testing.T) {
	log := newLogger(Config{Format: "json"}, &bytes.Buffer{})
	log.Info().Msg("x")
	if got := log.GetRecentLogs(); got != nil {
		t.Errorf("GetRecentLogs() = %v, want nil", got)
	}
	if got := log.GetLogFilePath(); got != "" {
		t.Errorf("GetLogFilePath() = %q, want empty", got)
	}
	if err := log.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	log := newLogger(Config{Format: "json", Path: dir}, &bytes.Buffer{})
	log.Info().Msg("to disk")
	if got := log.GetLogFilePath(); got != filepath.Join(dir, logFileName) {
		t.Errorf("GetLogFilePath() = %q", got)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to disk") {
		t.Errorf("log file = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !IsValidLevel("error") || IsValidLevel("loud") {
		t.Error("IsValidLevel accepts the wrong levels")
	}
}

func TestCapture_IgnoresMalformed(t *testing.T) {
	c := NewCapture(0)
	n, err := c.Write([]byte("not json"))
	if err != nil || n != 8 {
		t.Errorf("Write() = %d, %v; want 8, nil", n, err)
	}
	if got := c.GetRecentLogs(); len(got) != 0 {
		t.Errorf("GetRecentLogs() = %v, want none", got)
	}
}
