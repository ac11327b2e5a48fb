package media

import (
	"encoding/json"
	"fmt"
)

// ProgressState distinguishes the three kinds of progress a download can report.
type ProgressState int

const (
	ProgressNotStarted ProgressState = iota
	ProgressKnown
	ProgressIndeterminate
)

// indeterminateWire is the integer clients receive for indeterminate progress.
const indeterminateWire = -1

// Progress is a download's completion as a tri-state value.
type Progress struct {
	state   ProgressState
	percent int
}

// NotStarted returns progress for a download no worker has touched.
func NotStarted() Progress {
	return Progress{state: ProgressNotStarted}
}

// Percent returns a known progress value clamped to 0..100. Zero shares its
// encoding with NotStarted, so it is returned as NotStarted and every value
// survives a Wire/FromWire round trip.
func Percent(p int) Progress {
	if p <= 0 {
		return NotStarted()
	}
	if p > 100 {
		p = 100
	}
	return Progress{state: ProgressKnown, percent: p}
}

// Indeterminate returns progress for work whose completion cannot be measured.
func Indeterminate() Progress {
	return Progress{state: ProgressIndeterminate}
}

// Complete returns 100%.
func Complete() Progress {
	return Percent(100)
}

// FromWire decodes the integer representation used on the wire and in storage.
func FromWire(v int) Progress {
	if v < 0 {
		return Indeterminate()
	}
	if v == 0 {
		return NotStarted()
	}
	return Percent(v)
}

// State returns the progress kind.
func (p Progress) State() ProgressState {
	return p.state
}

// Value returns the percentage; zero unless the state is known.
func (p Progress) Value() int {
	if p.state != ProgressKnown {
		return 0
	}
	return p.percent
}

// IsIndeterminate reports whether completion is unmeasurable.
func (p Progress) IsIndeterminate() bool {
	return p.state == ProgressIndeterminate
}

// Wire encodes the progress as an integer: -1 indeterminate, 0 not started.
func (p Progress) Wire() int {
	switch p.state {
	case ProgressKnown:
		return p.percent
	case ProgressIndeterminate:
		return indeterminateWire
	default:
		return 0
	}
}

func (p Progress) String() string {
	switch p.state {
	case ProgressKnown:
		return fmt.Sprintf("%d%%", p.percent)
	case ProgressIndeterminate:
		return "indeterminate"
	default:
		return "not started"
	}
}

// MarshalJSON implements json.Marshaler.
func (p Progress) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Progress) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = NotStarted()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid progress %s: %w", data, err)
	}
	*p = FromWire(int(v))
	return nil
}
