// Package mode implements the recording lifecycle: off, error (a sliding
// window of recent activity kept in case something goes wrong) and full
// (continuous capture).
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a recording mode.
type Mode int

const (
	Off Mode = iota
	Error
	Full
)

// ErrUnknownMode is returned by Parse.
var ErrUnknownMode = errors.New("mode: unknown mode")

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case Error:
		return "error"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Parse converts "off", "error" or "full" (any case) to a Mode.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return Off, nil
	case "error":
		return Error, nil
	case "full":
		return Full, nil
	default:
		return Off, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so modes can be
// read straight from configuration files.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
