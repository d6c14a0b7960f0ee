package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Archive is the local append-only delivery log. It exists alongside the
// synced state document so per-source history survives the 200-entry
// state bound. Writes are best effort: callers log failures and move on.
type Archive struct {
	conn *sql.DB
	path string
}

// Open creates or opens the archive database at the given path.
func Open(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Archive{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

// RecordDelivery logs an article delivery.
func (a *Archive) RecordDelivery(link, title, source string) error {
	_, err := a.conn.Exec(
		`INSERT INTO deliveries (link, title, source) VALUES (?, ?, ?)`,
		link, title, source,
	)
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

// MarkRead stamps the most recent unread delivery of link as read.
func (a *Archive) MarkRead(link string) error {
	_, err := a.conn.Exec(
		`UPDATE deliveries SET read_at = datetime('now')
		 WHERE id = (
		     SELECT id FROM deliveries
		     WHERE link = ? AND read_at IS NULL
		     ORDER BY id DESC LIMIT 1
		 )`,
		link,
	)
	if err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}

// Stats summarizes the delivery log.
type Stats struct {
	Delivered int
	Read      int
	BySource  map[string]int
}

// GetStats returns delivery totals and per-source counts.
func (a *Archive) GetStats() (*Stats, error) {
	s := &Stats{BySource: make(map[string]int)}

	row := a.conn.QueryRow(
		`SELECT COUNT(*), COUNT(read_at) FROM deliveries`,
	)
	if err := row.Scan(&s.Delivered, &s.Read); err != nil {
		return nil, fmt.Errorf("reading totals: %w", err)
	}

	rows, err := a.conn.Query(
		`SELECT COALESCE(source, ''), COUNT(*) FROM deliveries GROUP BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading source counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		if source != "" {
			s.BySource[source] = count
		}
	}
	return s, rows.Err()
}
