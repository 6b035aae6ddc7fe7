// Package schedule keeps the locally edited irrigation schedule in step with
// the appliance and tracks whether it differs from what was last saved.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
)

// API fetches the schedule. A nil set is a read-only fetch; otherwise the
// appliance stores set and echoes what it stored.
type API interface {
	Schedule(ctx context.Context, set *State) (State, error)
}

// Mirror receives every schedule successfully fetched from the appliance.
type Mirror interface {
	WriteSchedule(ctx context.Context, s State) error
}

type Synchronizer struct {
	mu       sync.Mutex
	api      API
	notifier notice.Notifier
	mirror   Mirror
	logger   *zap.SugaredLogger

	current State
	saved   *State
	dirty   bool
	err     bool

	entries [SlotCount]*Entry
	onDirty func(bool)
}

type Option func(*Synchronizer)

func WithMirror(m Mirror) Option {
	return func(s *Synchronizer) { s.mirror = m }
}

// WithDirtyHook registers fn to see the dirty flag after each recompute.
func WithDirtyHook(fn func(bool)) Option {
	return func(s *Synchronizer) { s.onDirty = fn }
}

func NewSynchronizer(api API, notifier notice.Notifier, logger *zap.SugaredLogger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Synchronizer{
		api:      api,
		notifier: notifier,
		logger:   logger,
	}
	for i := range s.current {
		s.current[i] = Slot{IsActive: true, Time: TimeString("00:00")}
	}
	for _, o := range opts {
		o(s)
	}
	for i := range s.entries {
		i := i
		s.entries[i] = NewEntry(i,
			func() Slot { return s.Slot(i) },
			func(slot Slot) { s.UpdateSlot(i, slot) },
			notifier,
		)
	}
	return s
}

// Refresh fetches the schedule and replaces the local copy with it. Unsaved
// edits are discarded.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.fetch(ctx, nil)
}

// Save sends the local schedule and, once the appliance echoes it back,
// records the echo as the saved schedule.
func (s *Synchronizer) Save(ctx context.Context) error {
	s.mu.Lock()
	send := s.current.Canonical()
	s.mu.Unlock()

	return s.fetch(ctx, &send)
}

func (s *Synchronizer) fetch(ctx context.Context, set *State) error {
	res, err := s.api.Schedule(ctx, set)

	s.mu.Lock()
	if err != nil {
		if !s.err {
			s.logger.Warnf("fetching schedule: %s", err)
		}
		s.err = true
		s.mu.Unlock()
		return fmt.Errorf("fetching schedule: %w", err)
	}

	if s.saved == nil {
		seed := res.Canonical()
		s.saved = &seed
	}
	s.current = res
	s.err = false

	if set != nil {
		saved := s.current.Clone()
		s.saved = &saved
	}
	dirty := s.recomputeDirtyLocked()
	hook := s.onDirty
	s.mu.Unlock()

	if hook != nil {
		hook(dirty)
	}

	if set != nil {
		s.logger.Infof("schedule saved: %s", res.Describe())
		if s.notifier != nil {
			s.notifier.Success("saved", "schedule saved")
		}
	}

	if s.mirror != nil {
		if err := s.mirror.WriteSchedule(ctx, res); err != nil {
			s.logger.Errorf("mirroring schedule: %s", err)
		}
	}
	return nil
}

// HandleNotification refreshes when the appliance reports a schedule change.
func (s *Synchronizer) HandleNotification(topic string) {
	if topic != config.TopicSchedule {
		return
	}
	if err := s.Refresh(context.Background()); err != nil {
		s.logger.Debugf("refresh on notification: %s", err)
	}
}

// UpdateSlot replaces one slot of the local schedule and recomputes the
// dirty flag. Nothing is sent to the appliance.
func (s *Synchronizer) UpdateSlot(i int, slot Slot) {
	if i < 0 || i >= SlotCount {
		return
	}
	s.mu.Lock()
	s.current[i] = slot
	dirty := s.recomputeDirtyLocked()
	hook := s.onDirty
	s.mu.Unlock()

	if hook != nil {
		hook(dirty)
	}
}

// RecomputeDirty compares the local schedule with the saved one. Before the
// first successful fetch there is nothing to compare and the flag is left
// as it was.
func (s *Synchronizer) RecomputeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeDirtyLocked()
}

func (s *Synchronizer) recomputeDirtyLocked() bool {
	if s.saved != nil {
		s.dirty = Differ(s.current, *s.saved)
	}
	return s.dirty
}

func (s *Synchronizer) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Saved returns the last schedule confirmed by the appliance. ok is false
// until the first successful fetch.
func (s *Synchronizer) Saved() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return State{}, false
	}
	return s.saved.Clone(), true
}

func (s *Synchronizer) Slot(i int) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= SlotCount {
		return Slot{}
	}
	return s.current[i]
}

func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Synchronizer) Error() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Entry returns the editor for slot i, or nil when i is out of range.
func (s *Synchronizer) Entry(i int) *Entry {
	if i < 0 || i >= SlotCount {
		return nil
	}
	return s.entries[i]
}
