// Package storage persists agent settings, the printer list and the print
// history in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Printer is one configured printer device. An entry with a device_id and
// token maps to exactly one live connection to the SaaS.
type Printer struct {
	DeviceID         string `json:"device_id"`
	Token            string `json:"token"`
	PrinterIP        string `json:"printer_ip"`
	PrinterPort      int    `json:"printer_port"`
	PrinterType      string `json:"printer_type"` // raw | ipp
	PaperWidth       int    `json:"paper_width"`
	PrinterEncoding  string `json:"printer_encoding"`
	Name             string `json:"name"`
	ConnectionType   string `json:"connection_type"` // network | local
	PrinterNameLocal string `json:"printer_name_local"`
}

// PrintLog is one recorded job outcome.
type PrintLog struct {
	ID        int64     `json:"id"`
	JobID     int       `json:"job_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// defaultConfig seeds the settings table on first run.
var defaultConfig = map[string]string{
	"ws_url": "",
}

// Store is the SQLite-backed settings and history store. Methods are safe
// under concurrent callers: SQLite serializes writes behind busy_timeout.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
// An empty path opens an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS printers (
			position           INTEGER PRIMARY KEY,
			device_id          TEXT NOT NULL,
			token              TEXT NOT NULL,
			printer_ip         TEXT NOT NULL DEFAULT '',
			printer_port       INTEGER NOT NULL DEFAULT 9100,
			printer_type       TEXT NOT NULL DEFAULT 'raw',
			paper_width        INTEGER NOT NULL DEFAULT 32,
			printer_encoding   TEXT NOT NULL DEFAULT 'cp850',
			name               TEXT NOT NULL DEFAULT '',
			connection_type    TEXT NOT NULL DEFAULT 'network',
			printer_name_local TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS print_logs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id     INTEGER NOT NULL,
			status     TEXT NOT NULL,
			message    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	for key, value := range defaultConfig {
		if _, err := s.db.Exec(
			"INSERT OR IGNORE INTO config (key, value) VALUES (?, ?)", key, value,
		); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetConfig returns the value stored under key, or the seeded default.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultConfig[key], nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %q: %w", key, err)
	}
	return value, nil
}

// SetConfig stores value under key, replacing any previous value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// GetPrinters returns the configured printers in saved order. When the list
// is empty, a single printer is synthesized from legacy per-key settings if
// a device_id and token are present.
func (s *Store) GetPrinters(ctx context.Context) ([]Printer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, token, printer_ip, printer_port, printer_type,
		       paper_width, printer_encoding, name, connection_type, printer_name_local
		FROM printers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	defer rows.Close()

	var printers []Printer
	for rows.Next() {
		var p Printer
		if err := rows.Scan(&p.DeviceID, &p.Token, &p.PrinterIP, &p.PrinterPort,
			&p.PrinterType, &p.PaperWidth, &p.PrinterEncoding, &p.Name,
			&p.ConnectionType, &p.PrinterNameLocal); err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		printers = append(printers, normalizePrinter(p))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(printers) > 0 {
		return printers, nil
	}
	return s.legacyPrinter(ctx)
}

// legacyPrinter rebuilds a single printer from flat config keys written by
// older agent versions.
func (s *Store) legacyPrinter(ctx context.Context) ([]Printer, error) {
	deviceID, err := s.GetConfig(ctx, "device_id")
	if err != nil {
		return nil, err
	}
	token, err := s.GetConfig(ctx, "token")
	if err != nil {
		return nil, err
	}
	if deviceID == "" || token == "" {
		return nil, nil
	}

	p := Printer{DeviceID: deviceID, Token: token}
	p.PrinterIP, _ = s.GetConfig(ctx, "printer_ip")
	if v, _ := s.GetConfig(ctx, "printer_port"); v != "" {
		p.PrinterPort, _ = strconv.Atoi(v)
	}
	p.PrinterType, _ = s.GetConfig(ctx, "printer_type")
	if v, _ := s.GetConfig(ctx, "paper_width"); v != "" {
		p.PaperWidth, _ = strconv.Atoi(v)
	}
	p.PrinterEncoding, _ = s.GetConfig(ctx, "printer_encoding")
	return []Printer{normalizePrinter(p)}, nil
}

// SetPrinters replaces the printer list atomically, preserving slice order.
func (s *Store) SetPrinters(ctx context.Context, printers []Printer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save printers: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM printers"); err != nil {
		return fmt.Errorf("save printers: %w", err)
	}
	for i, p := range printers {
		p = normalizePrinter(p)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO printers (position, device_id, token, printer_ip, printer_port,
				printer_type, paper_width, printer_encoding, name, connection_type, printer_name_local)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, p.DeviceID, p.Token, p.PrinterIP, p.PrinterPort, p.PrinterType,
			p.PaperWidth, p.PrinterEncoding, p.Name, p.ConnectionType, p.PrinterNameLocal,
		); err != nil {
			return fmt.Errorf("save printer %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// normalizePrinter fills the defaults the SaaS and transports expect.
func normalizePrinter(p Printer) Printer {
	if p.PrinterIP == "" {
		p.PrinterIP = "192.168.1.100"
	}
	if p.PrinterPort == 0 {
		p.PrinterPort = 9100
	}
	if p.PrinterType == "" {
		p.PrinterType = "raw"
	}
	if p.PaperWidth == 0 {
		p.PaperWidth = 32
	}
	if p.PrinterEncoding == "" {
		p.PrinterEncoding = "cp850"
	}
	if p.ConnectionType == "" {
		p.ConnectionType = "network"
	}
	return p
}

// AddPrintLog appends one job outcome to the history.
func (s *Store) AddPrintLog(ctx context.Context, jobID int, status, message string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO print_logs (job_id, status, message, created_at) VALUES (?, ?, ?, ?)",
		jobID, status, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record print log: %w", err)
	}
	return nil
}

// GetPrintLogs returns the most recent outcomes, newest first.
func (s *Store) GetPrintLogs(ctx context.Context, limit int) ([]PrintLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, status, message, created_at
		FROM print_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list print logs: %w", err)
	}
	defer rows.Close()

	var logs []PrintLog
	for rows.Next() {
		var l PrintLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan print log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
