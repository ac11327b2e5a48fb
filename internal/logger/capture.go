package logger

import (
	"encoding/json"
)

const defaultBufferSize = 1000

// LogEntry is a parsed log line kept for the logs endpoint.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Capture implements io.Writer and keeps the most recent zerolog JSON entries.
type Capture struct {
	buffer *RingBuffer[LogEntry]
}

// NewCapture creates a capture holding up to size entries.
func NewCapture(size int) *Capture {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Capture{buffer: NewRingBuffer[LogEntry](size)}
}

// Write implements io.Writer. It receives JSON log entries from zerolog.
func (c *Capture) Write(p []byte) (n int, err error) {
	n = len(p)

	entry, parseErr := parseLogEntry(p)
	if parseErr != nil {
		return n, nil //nolint:nilerr // Silently ignore malformed log entries
	}

	c.buffer.Push(entry)
	return n, nil
}

// GetRecentLogs returns buffered entries, oldest first.
func (c *Capture) GetRecentLogs() []LogEntry {
	return c.buffer.GetAll()
}

// Clear drops every buffered entry.
func (c *Capture) Clear() {
	c.buffer.Clear()
}

// parseLogEntry parses a zerolog JSON entry into a LogEntry.
func parseLogEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{}

	if ts, ok := raw[zerologTimeField].(string); ok {
		entry.Timestamp = ts
		delete(raw, zerologTimeField)
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}

	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, nil
}
