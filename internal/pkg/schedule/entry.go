package schedule

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
)

// Entry edits one slot and keeps its weekday set non-empty. It reads the
// slot through load and hands every accepted edit to update.
type Entry struct {
	ID       string
	index    int
	load     func() Slot
	update   func(Slot)
	notifier notice.Notifier
}

var newID = uuid.NewV4

// entryID falls back to the slot index when no random id can be drawn.
func entryID(index int) string {
	u, err := newID()
	if err != nil {
		return fmt.Sprintf("slot-%d", index)
	}
	return u.String()
}

func NewEntry(index int, load func() Slot, update func(Slot), notifier notice.Notifier) *Entry {
	return &Entry{
		ID:       entryID(index),
		index:    index,
		load:     load,
		update:   update,
		notifier: notifier,
	}
}

func (e *Entry) Index() int {
	return e.index
}

// ToggleWeekday flips one day. A toggle that would leave no day selected is
// refused with ErrNoWeekday and the slot is left untouched.
func (e *Entry) ToggleWeekday(day int) error {
	if day < 0 || day >= DayCount {
		return nil
	}
	s := e.load()
	s.Weekdays[day] = !s.Weekdays[day]
	if !s.HasWeekday() {
		if e.notifier != nil {
			e.notifier.Info("notice", "select at least one weekday")
		}
		return ErrNoWeekday
	}
	e.update(s)
	return nil
}

// CommitEdit re-checks the weekday guard on the current slot and emits it.
func (e *Entry) CommitEdit() error {
	return e.Edit(func(*Slot) {})
}

// Edit applies fn to a copy of the slot and commits it. An empty weekday
// set is repaired to all days and reported with ErrNoWeekday; the repaired
// slot is still committed.
func (e *Entry) Edit(fn func(*Slot)) error {
	s := e.load()
	fn(&s)

	var err error
	if !s.HasWeekday() {
		for i := range s.Weekdays {
			s.Weekdays[i] = true
		}
		if e.notifier != nil {
			e.notifier.Info("notice", "select at least one weekday")
		}
		err = ErrNoWeekday
	}
	e.update(s)
	return err
}

func (e *Entry) SetActive(active bool) error {
	return e.Edit(func(s *Slot) { s.IsActive = active })
}

func (e *Entry) SetPeriod(minutes int) error {
	if minutes < 0 {
		minutes = 0
	}
	return e.Edit(func(s *Slot) { s.Period = minutes })
}

func (e *Entry) SetTime(t time.Time) error {
	return e.Edit(func(s *Slot) { s.Time = TimeValue(t) })
}

func (e *Entry) SetTimeString(hhmm string) error {
	return e.Edit(func(s *Slot) { s.Time = TimeString(hhmm) })
}
