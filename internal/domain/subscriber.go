package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode is a subscriber's alerting state. The set is closed: ModeAlerting and
// ModeSuspended are the only valid values.
type Mode int

const (
	ModeSuspended Mode = iota
	ModeAlerting
)

// Modes lists every valid mode.
var Modes = []Mode{ModeAlerting, ModeSuspended}

// ParseMode accepts the mode name or its chat command.
func ParseMode(s string) (Mode, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, m := range Modes {
		if v == m.String() || v == m.Command() {
			return m, nil
		}
	}
	return ModeSuspended, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAlerting:
		return "alerting"
	case ModeSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Command is the chat command that selects the mode.
func (m Mode) Command() string {
	switch m {
	case ModeAlerting:
		return "/start_alerting"
	case ModeSuspended:
		return "/stop"
	default:
		return ""
	}
}

// Interval is the minimum spacing between deliveries in this mode. Zero means
// the mode never delivers.
func (m Mode) Interval() time.Duration {
	switch m {
	case ModeAlerting:
		return time.Second
	default:
		return 0
	}
}

// Alerting reports whether subscribers in this mode receive notifications.
func (m Mode) Alerting() bool { return m.Interval() > 0 }

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Subscriber is a chat that can receive opportunity notifications.
type Subscriber struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username,omitempty"`
	Mode          Mode      `json:"mode"`
	ModeChangedAt time.Time `json:"mode_changed_at"`
}

func (s Subscriber) String() string {
	name := s.Username
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%d %s %s since %s", s.ID, name, s.Mode, s.ModeChangedAt.UTC().Format(time.RFC3339))
}
