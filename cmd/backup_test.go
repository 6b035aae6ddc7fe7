package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
)

type fakeArchive struct {
	rows     []applog.Entry
	deleted  []applog.Entry
	short    int64
	maxAsked int
	err      error
}

func (f *fakeArchive) GetAllRows() ([]applog.Entry, error) {
	return f.rows, f.err
}

// GetRowsAboveMax returns the oldest rows past the newest max.
func (f *fakeArchive) GetRowsAboveMax(max int) ([]applog.Entry, error) {
	f.maxAsked = max
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) <= max {
		return nil, nil
	}
	return f.rows[:len(f.rows)-max], nil
}

func (f *fakeArchive) DeleteRows(entries []applog.Entry) (int64, error) {
	f.deleted = append(f.deleted, entries...)
	return int64(len(entries)) - f.short, nil
}

type fakeStore struct {
	full     []applog.Entry
	retained []applog.Entry
	err      error
}

func (f *fakeStore) BackupFull(_ context.Context, entries []applog.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.full = entries
	return nil
}

func (f *fakeStore) BackupRetained(_ context.Context, entries []applog.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.retained = append(f.retained, entries...)
	return nil
}

func useNopLogger(t *testing.T) {
	t.Helper()
	prev := logger
	logger = zap.NewNop().Sugar()
	t.Cleanup(func() { logger = prev })
}

func archiveRows() []applog.Entry {
	return []applog.Entry{
		{Date: "2024-05-01 06:00:00", Message: "watering started"},
		{Date: "2024-05-01 06:10:00", Message: "watering stopped"},
		{Date: "2024-05-02 06:00:00", Message: "watering started"},
	}
}

func TestRunFullBackup(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{rows: archiveRows()}
	store := &fakeStore{}

	require.NoError(t, runFullBackup(context.Background(), archive, store))
	assert.Equal(t, archiveRows(), store.full)
}

func TestRunFullBackupArchiveError(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{err: errors.New("db down")}
	store := &fakeStore{}

	err := runFullBackup(context.Background(), archive, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Nil(t, store.full)
}

func TestRunDataRetentionMovesOldRows(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{rows: archiveRows()}
	store := &fakeStore{}

	require.NoError(t, runDataRetention(context.Background(), archive, store, 1))
	assert.Equal(t, 1, archive.maxAsked)
	assert.Equal(t, archiveRows()[:2], store.retained)
	assert.Equal(t, archiveRows()[:2], archive.deleted)
}

func TestRunDataRetentionUnderMax(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{rows: archiveRows()}
	store := &fakeStore{}

	require.NoError(t, runDataRetention(context.Background(), archive, store, 3))
	assert.Empty(t, store.retained)
	assert.Empty(t, archive.deleted)
}

func TestRunDataRetentionUploadFailureKeepsRows(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{rows: archiveRows()}
	store := &fakeStore{err: errors.New("bucket unreachable")}

	require.Error(t, runDataRetention(context.Background(), archive, store, 1))
	assert.Empty(t, archive.deleted)
}

func TestRunDataRetentionShortDeleteIsNotAnError(t *testing.T) {
	useNopLogger(t)
	archive := &fakeArchive{rows: archiveRows(), short: 1}
	store := &fakeStore{}

	require.NoError(t, runDataRetention(context.Background(), archive, store, 1))
	assert.Len(t, archive.deleted, 2)
}

func TestScheduleBackupsDisabled(t *testing.T) {
	useNopLogger(t)
	c, err := scheduleBackups(context.Background(), config.S3Config{}, &fakeArchive{}, &fakeStore{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestScheduleBackupsEnabled(t *testing.T) {
	useNopLogger(t)
	c, err := scheduleBackups(context.Background(), config.S3Config{FullBackupEnabled: true}, &fakeArchive{}, &fakeStore{})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}

func TestParseRetentionRowsConfig(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", config.DefaultRetentionRows},
		{"abc", config.DefaultRetentionRows},
		{"0", config.DefaultRetentionRows},
		{"-5", config.DefaultRetentionRows},
		{"250", 250},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRetentionRowsConfig(tt.in), tt.in)
	}
}
