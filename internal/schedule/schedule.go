// Package schedule evaluates recurring time-of-day windows against
// wall-clock time and emits pump intents. It never touches the actuator
// directly. Weekdays are numbered 0=Monday .. 6=Sunday.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBadStartTime is returned for a start time that is not "HH:MM".
	ErrBadStartTime = errors.New("malformed start time")
	// ErrBadDuration is returned for a non-positive duration.
	ErrBadDuration = errors.New("duration must be positive")
	// ErrBadDay is returned for a weekday outside 0..6.
	ErrBadDay = errors.New("weekday must be 0..6")
	// ErrUnknownID is returned when no entry has the given id.
	ErrUnknownID = errors.New("unknown schedule id")
	// ErrEmptyID is returned for an entry with no id.
	ErrEmptyID = errors.New("schedule id must not be empty")
)

// Entry is one recurring activation window. The active interval is
// [start, start+Duration) computed in absolute time, so a window may
// legally extend past midnight into the next calendar day.
type Entry struct {
	ID          string
	StartHour   int
	StartMinute int
	Duration    time.Duration
	Days        []int // 0=Monday .. 6=Sunday; empty means every day
	Enabled     bool
	CreatedAt   time.Time
}

// StartString renders the start time as "HH:MM".
func (e Entry) StartString() string {
	return fmt.Sprintf("%02d:%02d", e.StartHour, e.StartMinute)
}

// runsOn reports whether the entry may start on the given weekday.
func (e Entry) runsOn(weekday int) bool {
	if len(e.Days) == 0 {
		return true
	}
	for _, d := range e.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadStartTime, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadStartTime, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadStartTime, s)
	}
	return hour, minute, nil
}

// Weekday converts Go's Sunday-based weekday to the 0=Monday numbering
// used by schedule entries.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// validate checks an entry before it enters the collection.
func validate(e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if e.StartHour < 0 || e.StartHour > 23 || e.StartMinute < 0 || e.StartMinute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrBadStartTime, e.StartHour, e.StartMinute)
	}
	if e.Duration <= 0 {
		return fmt.Errorf("%w: %v", ErrBadDuration, e.Duration)
	}
	for _, d := range e.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: %d", ErrBadDay, d)
		}
	}
	return nil
}

// normalizeDays sorts and deduplicates; an all-days set collapses to nil.
func normalizeDays(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	if len(out) == 7 {
		return nil
	}
	return out
}

// DaysToMask packs a weekday set into a bitmask (bit 0 = Monday).
// An empty set means every day and packs to 0x7F.
func DaysToMask(days []int) uint8 {
	if len(days) == 0 {
		return 0x7F
	}
	var mask uint8
	for _, d := range days {
		mask |= 1 << uint(d)
	}
	return mask
}

// MaskToDays unpacks a weekday bitmask; the full mask unpacks to nil.
func MaskToDays(mask uint8) []int {
	if mask == 0x7F {
		return nil
	}
	var days []int
	for d := 0; d < 7; d++ {
		if mask&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}
