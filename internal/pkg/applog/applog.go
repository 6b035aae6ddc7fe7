// Package applog shows the appliance's own operation log.
package applog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
)

// Entry is one appliance log line. Date is kept as sent; Time is its parsed
// form, zero when the date could not be parsed.
type Entry struct {
	Date    string    `json:"date"`
	Message string    `json:"message"`
	Time    time.Time `json:"-"`
}

type API interface {
	LogView(ctx context.Context) ([]Entry, error)
	LogClear(ctx context.Context) error
}

// Archive keeps log entries beyond the appliance's own retention.
type Archive interface {
	WriteEntries(entries []Entry) error
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate accepts the appliance's date formats. Dates without a zone are
// read in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Since renders how long ago t was, e.g. "5 minutes ago".
func Since(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < 45*time.Second:
		return "a few seconds ago"
	case d < 90*time.Second:
		return "a minute ago"
	case d < 45*time.Minute:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()+0.5))
	case d < 90*time.Minute:
		return "an hour ago"
	case d < 22*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()+0.5))
	case d < 36*time.Hour:
		return "a day ago"
	}
	return fmt.Sprintf("%d days ago", int(d.Hours()/24+0.5))
}

type View struct {
	mu       sync.Mutex
	api      API
	notifier notice.Notifier
	archive  Archive
	logger   *zap.SugaredLogger
	loc      *time.Location

	entries []Entry
	err     bool
}

func NewView(api API, notifier notice.Notifier, archive Archive, logger *zap.SugaredLogger) *View {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &View{
		api:      api,
		notifier: notifier,
		archive:  archive,
		logger:   logger,
		loc:      time.Local,
	}
}

func (v *View) Refresh(ctx context.Context) error {
	entries, err := v.api.LogView(ctx)

	v.mu.Lock()
	if err != nil {
		if !v.err {
			v.logger.Warnf("fetching log: %s", err)
		}
		v.err = true
		v.mu.Unlock()
		return fmt.Errorf("fetching log: %w", err)
	}
	for i := range entries {
		entries[i].Time, _ = ParseDate(entries[i].Date, v.loc)
	}
	v.entries = entries
	v.err = false
	v.mu.Unlock()

	if v.archive != nil && len(entries) > 0 {
		if err := v.archive.WriteEntries(entries); err != nil {
			v.logger.Errorf("archiving log entries: %s", err)
		}
	}
	return nil
}

// Clear empties the appliance log. It is not retried on failure.
func (v *View) Clear(ctx context.Context) error {
	if err := v.api.LogClear(ctx); err != nil {
		v.mu.Lock()
		v.err = true
		v.mu.Unlock()
		return fmt.Errorf("clearing log: %w", err)
	}
	if v.notifier != nil {
		v.notifier.Success("cleared", "log cleared")
	}
	return nil
}

// HandleNotification refreshes when the appliance reports new log lines.
func (v *View) HandleNotification(topic string) {
	if topic != config.TopicLog {
		return
	}
	if err := v.Refresh(context.Background()); err != nil {
		v.logger.Debugf("refresh on notification: %s", err)
	}
}

func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

func (v *View) Error() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}
