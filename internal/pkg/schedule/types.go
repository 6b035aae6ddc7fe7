package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SlotCount is the fixed number of schedule rules on the appliance.
	SlotCount = 2
	// DayCount covers Sunday through Saturday.
	DayCount = 7

	timeLayout = "15:04"
)

var dayNames = [DayCount]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

var ErrNoWeekday = errors.New("at least one weekday must be selected")

// TimeOfDay is a slot start time. It holds whichever shape it was built
// from: the "HH:MM" text the appliance sends, or a parsed value coming
// from a time picker.
type TimeOfDay struct {
	text   string
	parsed time.Time
	isTime bool
}

func TimeString(s string) TimeOfDay {
	return TimeOfDay{text: s}
}

func TimeValue(t time.Time) TimeOfDay {
	return TimeOfDay{parsed: t, isTime: true}
}

// IsParsed reports whether t was built from a parsed value.
func (t TimeOfDay) IsParsed() bool {
	return t.isTime
}

// Valid reports whether t can be rendered as HH:MM.
func (t TimeOfDay) Valid() bool {
	if t.isTime {
		return true
	}
	_, err := time.Parse(timeLayout, strings.TrimSpace(t.text))
	return err == nil
}

// String renders t in canonical HH:MM form. Text that does not parse is
// returned unchanged.
func (t TimeOfDay) String() string {
	if t.isTime {
		return t.parsed.Format(timeLayout)
	}
	p, err := time.Parse(timeLayout, strings.TrimSpace(t.text))
	if err != nil {
		return t.text
	}
	return p.Format(timeLayout)
}

// CanonicalizeTime formats a parsed value as HH:MM, or parses and
// re-formats text. Applying it twice is the same as applying it once.
func CanonicalizeTime(t TimeOfDay) TimeOfDay {
	return TimeString(t.String())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decoding time of day: %w", err)
	}
	*t = TimeString(s)
	return nil
}

// Slot is one irrigation rule.
type Slot struct {
	IsActive bool           `json:"is_active"`
	Time     TimeOfDay      `json:"time"`
	Period   int            `json:"period"`
	Weekdays [DayCount]bool `json:"wday"`
}

// HasWeekday reports whether at least one day is selected.
func (s Slot) HasWeekday() bool {
	for _, d := range s.Weekdays {
		if d {
			return true
		}
	}
	return false
}

// Describe renders the slot the way the appliance log does,
// e.g. "06:00 start 10 min SUN,SAT".
func (s Slot) Describe() string {
	var days []string
	for i, d := range s.Weekdays {
		if d {
			days = append(days, dayNames[i])
		}
	}
	return fmt.Sprintf("%s start %d min %s", s.Time, s.Period, strings.Join(days, ","))
}

// State is the full schedule. Arrays give it value semantics, so
// assignment copies every slot and weekday set.
type State [SlotCount]Slot

// Clone returns an independent copy of s.
func (s State) Clone() State {
	return s
}

// Canonical returns a copy with every time in HH:MM form.
func (s State) Canonical() State {
	c := s.Clone()
	for i := range c {
		c[i].Time = CanonicalizeTime(c[i].Time)
	}
	return c
}

// Differ reports whether a and b differ in any field of either slot.
// Times compare after canonicalization so representation alone never
// counts as a change.
func Differ(a, b State) bool {
	for i := 0; i < SlotCount; i++ {
		x, y := a[i], b[i]
		if x.IsActive != y.IsActive {
			return true
		}
		if x.Time.String() != y.Time.String() {
			return true
		}
		if x.Period != y.Period {
			return true
		}
		if x.Weekdays != y.Weekdays {
			return true
		}
	}
	return false
}

// Describe joins the active slots, as logged after a save.
func (s State) Describe() string {
	var parts []string
	for _, slot := range s {
		if slot.IsActive {
			parts = append(parts, slot.Describe())
		}
	}
	return strings.Join(parts, ", ")
}
