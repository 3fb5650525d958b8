package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultActiveWindow is how long a slot counts as "currently running"
	// after its nominal time when the channel does not override it.
	DefaultActiveWindow = 11

	minActiveWindow = 1
	maxActiveWindow = 60

	// MinutesPerDay is the number of slot minutes in one calendar day.
	MinutesPerDay = 24 * 60
)

// Slot is one configured firing point of a channel.
type Slot struct {
	ID            string     `json:"id"`
	Enabled       bool       `json:"enabled"`
	Days          []int      `json:"days"` // weekday indices, 0 = Sunday
	Time          string     `json:"time"` // "HH:MM", channel-local
	PromptsPerRun int        `json:"prompts_per_run"`
	LastFiredAt   *time.Time `json:"last_fired_at,omitempty"`

	// minute is the parsed Time, -1 when Time is malformed. Filled by
	// Channel.Normalize, never serialized.
	minute int
}

// Minute returns the slot's time as minutes since local midnight,
// or -1 when the configured time string is malformed.
func (s *Slot) Minute() int {
	return s.minute
}

// OnDay reports whether the slot is eligible on the given weekday.
func (s *Slot) OnDay(weekday int) bool {
	for _, d := range s.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// Channel owns a set of independent slots plus the generation settings
// used when one of them fires.
type Channel struct {
	ID                  string `json:"id"`
	OwnerID             int64  `json:"owner_id"`
	Name                string `json:"name"`
	Platform            string `json:"platform"`
	Tone                string `json:"tone"`
	Language            string `json:"language"`
	Topic               string `json:"topic"`
	AutomationEnabled   bool   `json:"automation_enabled"`
	DispatchEnabled     bool   `json:"dispatch_enabled"`
	ActiveWindowMinutes int    `json:"active_window_minutes"`
	Timezone            string `json:"timezone,omitempty"`
	Slots               []Slot `json:"slots"`
}

// ParseClockTime converts "HH:MM" into minutes since midnight.
func ParseClockTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// ClampWindow forces an active-window value into [1,60], substituting the
// default for zero or out-of-range input.
func ClampWindow(n int) int {
	if n == 0 {
		return DefaultActiveWindow
	}
	if n < minActiveWindow {
		return minActiveWindow
	}
	if n > maxActiveWindow {
		return maxActiveWindow
	}
	return n
}

// Normalize validates a channel in place after it crosses a boundary
// (store load, wizard input). Slot times are parsed once; a malformed
// time leaves the slot with Minute() == -1 so it never contributes to
// classification or firing. Missing ids and counts are filled in.
func (c *Channel) Normalize() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.ActiveWindowMinutes = ClampWindow(c.ActiveWindowMinutes)
	for i := range c.Slots {
		s := &c.Slots[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.PromptsPerRun < 1 {
			s.PromptsPerRun = 1
		}
		if m, err := ParseClockTime(s.Time); err == nil {
			s.minute = m
		} else {
			s.minute = -1
		}
	}
}

// Location resolves the channel's timezone, falling back to the process
// zone when the name is empty or unknown.
func (c *Channel) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Slot returns the slot with the given id, or nil.
func (c *Channel) Slot(id string) *Slot {
	for i := range c.Slots {
		if c.Slots[i].ID == id {
			return &c.Slots[i]
		}
	}
	return nil
}
