package directory

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

// SQLiteMirror is a restart-resilient write-behind store for the device
// directory. TASMOTA devices only ever announce once, at boot, so losing
// the in-memory directory on restart would strand them until their next
// power cycle — this mirror lets a fresh process reload the last-known
// device set immediately.
type SQLiteMirror struct {
	db *sql.DB
}

// OpenSQLiteMirror opens (creating if absent) the SQLite database at path
// and ensures the devices table exists.
func OpenSQLiteMirror(path string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("directory: opening sqlite mirror: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS devices (
	name     TEXT PRIMARY KEY,
	protocol TEXT NOT NULL,
	address  TEXT,
	model    TEXT
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: creating devices table: %w", err)
	}
	return &SQLiteMirror{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteMirror) Close() error {
	return s.db.Close()
}

// Save upserts a single device row.
func (s *SQLiteMirror) Save(d dev.Device) error {
	const stmt = `
INSERT INTO devices (name, protocol, address, model)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET protocol=excluded.protocol, address=excluded.address, model=excluded.model
`
	_, err := s.db.Exec(stmt, d.Name, string(d.Protocol), d.Address, string(d.Model))
	return err
}

// LoadAll returns every persisted device.
func (s *SQLiteMirror) LoadAll() ([]dev.Device, error) {
	rows, err := s.db.Query(`SELECT name, protocol, address, model FROM devices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dev.Device
	for rows.Next() {
		var d dev.Device
		var protocol, model string
		if err := rows.Scan(&d.Name, &protocol, &d.Address, &model); err != nil {
			return nil, err
		}
		d.Protocol = dev.Protocol(protocol)
		d.Model = dev.Model(model)
		out = append(out, d)
	}
	return out, rows.Err()
}
