package schedule

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
)

func newEntry(slot Slot, rec *notice.Recorder) (*Entry, *[]Slot, *Slot) {
	cur := slot
	var emitted []Slot
	e := NewEntry(0,
		func() Slot { return cur },
		func(s Slot) {
			cur = s
			emitted = append(emitted, s)
		},
		rec,
	)
	return e, &emitted, &cur
}

func TestToggleWeekdayCommits(t *testing.T) {
	rec := notice.NewRecorder()
	e, emitted, cur := newEntry(Slot{Weekdays: week(0)}, rec)

	require.NoError(t, e.ToggleWeekday(3))
	assert.Equal(t, week(0, 3), cur.Weekdays)
	assert.Len(t, *emitted, 1)

	require.NoError(t, e.ToggleWeekday(0))
	assert.Equal(t, week(3), cur.Weekdays)
	assert.Len(t, *emitted, 2)
	assert.Empty(t, rec.Notices)
}

func TestToggleLastWeekdayIsVetoed(t *testing.T) {
	rec := notice.NewRecorder()
	e, emitted, cur := newEntry(Slot{Weekdays: week(2)}, rec)

	err := e.ToggleWeekday(2)
	assert.ErrorIs(t, err, ErrNoWeekday)
	assert.Equal(t, week(2), cur.Weekdays)
	assert.Empty(t, *emitted)
	assert.Equal(t, 1, rec.Count(notice.LevelInfo))
}

func TestToggleWeekdayOutOfRange(t *testing.T) {
	e, emitted, _ := newEntry(Slot{Weekdays: week(2)}, notice.NewRecorder())
	assert.NoError(t, e.ToggleWeekday(7))
	assert.NoError(t, e.ToggleWeekday(-1))
	assert.Empty(t, *emitted)
}

func TestCommitEditRepairsEmptyWeekdays(t *testing.T) {
	rec := notice.NewRecorder()
	e, emitted, cur := newEntry(Slot{Period: 3}, rec)

	err := e.CommitEdit()
	assert.ErrorIs(t, err, ErrNoWeekday)
	assert.Equal(t, [DayCount]bool{true, true, true, true, true, true, true}, cur.Weekdays)
	assert.Len(t, *emitted, 1)
	assert.Equal(t, 1, rec.Count(notice.LevelInfo))
}

func TestFieldEditsEmit(t *testing.T) {
	e, emitted, cur := newEntry(Slot{Time: TimeString("06:00"), Weekdays: week(1)}, notice.NewRecorder())

	require.NoError(t, e.SetActive(true))
	require.NoError(t, e.SetPeriod(-4))
	require.NoError(t, e.SetTimeString("7:15"))

	assert.True(t, cur.IsActive)
	assert.Equal(t, 0, cur.Period)
	assert.Equal(t, "07:15", cur.Time.String())
	assert.Len(t, *emitted, 3)
}

func TestWeekdayInvariantHolds(t *testing.T) {
	api := &fakeAPI{state: scenarioState()}
	s := NewSynchronizer(api, notice.NewRecorder(), nil)
	require.NoError(t, s.Refresh(context.Background()))

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		e := s.Entry(r.Intn(SlotCount))
		switch r.Intn(4) {
		case 0, 1:
			_ = e.ToggleWeekday(r.Intn(DayCount))
		case 2:
			_ = e.SetPeriod(r.Intn(60))
		default:
			_ = e.Edit(func(sl *Slot) { sl.Weekdays = [DayCount]bool{} })
		}

		for _, slot := range s.Current() {
			require.True(t, slot.HasWeekday(), "step %d", i)
		}
	}
}

func TestEntriesHaveDistinctIDs(t *testing.T) {
	s := NewSynchronizer(&fakeAPI{}, nil, nil)
	assert.NotEmpty(t, s.Entry(0).ID)
	assert.NotEqual(t, s.Entry(0).ID, s.Entry(1).ID)
	assert.Equal(t, 1, s.Entry(1).Index())
}

func TestEntryIDFallsBackToIndex(t *testing.T) {
	orig := newID
	newID = func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy unavailable") }
	t.Cleanup(func() { newID = orig })

	s := NewSynchronizer(&fakeAPI{}, nil, nil)
	assert.Equal(t, "slot-0", s.Entry(0).ID)
	assert.Equal(t, "slot-1", s.Entry(1).ID)
}
