package postgres

import (
	"database/sql"
	"fmt"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	_ "github.com/lib/pq"
)

const (
	createTableStmt = `CREATE TABLE IF NOT EXISTS log(date text, message text, UNIQUE(date, message));`
	insertStmt      = `INSERT INTO log(date, message) VALUES($1, $2) ON CONFLICT DO NOTHING`
	selectStmt      = `SELECT date, message FROM log ORDER BY date DESC LIMIT $1`
	selectAllStmt   = `SELECT date, message FROM log ORDER BY date ASC`
	aboveMaxStmt    = `SELECT date, message FROM log ORDER BY date DESC OFFSET $1`
	countStmt       = `SELECT COUNT(*) FROM log`
	deleteStmt      = `DELETE FROM log WHERE date = $1 AND message = $2`
	limit           = 100
)

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Client archives appliance log entries. The appliance clears its own log,
// the archive keeps everything it has ever seen once.
type Client struct {
	sqlDB *sql.DB
	db    execer
}

func NewPostgresClient(databaseURL string) (*Client, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		return nil, fmt.Errorf("creating log table: %w", err)
	}
	return &Client{sqlDB: db, db: db}, nil
}

func (c *Client) WriteEntries(entries []applog.Entry) error {
	for _, e := range entries {
		if _, err := c.db.Exec(insertStmt, e.Date, e.Message); err != nil {
			return fmt.Errorf("archiving log entry %q: %w", e.Message, err)
		}
	}
	return nil
}

// Recent returns up to 100 archived entries, newest first.
func (c *Client) Recent() ([]applog.Entry, error) {
	return c.query(selectStmt, limit)
}

func (c *Client) GetAllRows() ([]applog.Entry, error) {
	return c.query(selectAllStmt)
}

// GetRowsAboveMax returns every entry older than the newest max entries.
func (c *Client) GetRowsAboveMax(max int) ([]applog.Entry, error) {
	return c.query(aboveMaxStmt, max)
}

func (c *Client) GetRowCount() (int, error) {
	var count int
	if err := c.sqlDB.QueryRow(countStmt).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteRows removes entries and returns how many rows went away. An entry
// is keyed by its date and message.
func (c *Client) DeleteRows(entries []applog.Entry) (int64, error) {
	var total int64
	for _, e := range entries {
		res, err := c.db.Exec(deleteStmt, e.Date, e.Message)
		if err != nil {
			return total, fmt.Errorf("deleting log entry %q: %w", e.Message, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Client) query(stmt string, args ...interface{}) ([]applog.Entry, error) {
	rows, err := c.sqlDB.Query(stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []applog.Entry
	for rows.Next() {
		var e applog.Entry
		if err := rows.Scan(&e.Date, &e.Message); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *Client) Close() error {
	return c.sqlDB.Close()
}
