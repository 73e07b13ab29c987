// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store persists alerts to SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/enrich"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/event"
)

// Store is an alert log backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the alert database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to open alert database"), "path", path)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to initialize alert database"), "path", path)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL, -- Unix nanoseconds
		kernel_time INTEGER NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		local_addr TEXT,
		remote_addr TEXT,
		local_port INTEGER,
		remote_port INTEGER,
		pid INTEGER,
		process TEXT, -- JSON
		geo TEXT      -- JSON
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
	`
	_, err := s.db.Exec(schema)
	return err
}

const insertAlert = `
	INSERT INTO alerts (id, timestamp, kernel_time, type, severity, message,
		local_addr, remote_addr, local_port, remote_port, pid, process, geo)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save persists one alert.
func (s *Store) Save(a alerting.Alert) error {
	return s.SaveBatch([]alerting.Alert{a})
}

// SaveBatch persists alerts in a single transaction. Either all are written or none.
func (s *Store) SaveBatch(alerts []alerting.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to begin alert transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertAlert)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to prepare alert insert")
	}
	defer stmt.Close()

	for _, a := range alerts {
		process, err := jsonColumn(a.Process)
		if err != nil {
			return err
		}
		geo, err := jsonColumn(a.Geo)
		if err != nil {
			return err
		}

		_, err = stmt.Exec(
			a.ID,
			a.Timestamp.UnixNano(),
			int64(a.KernelTime),
			a.Type.String(),
			a.Severity.String(),
			a.Message,
			a.LocalAddr,
			a.RemoteAddr,
			a.LocalPort,
			a.RemotePort,
			a.PID,
			process,
			geo,
		)
		if err != nil {
			return errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to insert alert"), "id", a.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to commit alerts")
	}
	return nil
}

// Recent returns up to limit alerts, newest first. Type filters when non-empty.
func (s *Store) Recent(limit int, typ string) ([]alerting.Alert, error) {
	query := `
		SELECT id, timestamp, kernel_time, type, severity, message,
			local_addr, remote_addr, local_port, remote_port, pid, process, geo
		FROM alerts`
	var args []any
	if typ != "" {
		query += " WHERE type = ?"
		args = append(args, typ)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to query alerts")
	}
	defer rows.Close()

	var out []alerting.Alert
	for rows.Next() {
		var (
			a                alerting.Alert
			ts, kernel       int64
			typName, sevName string
			process, geo     sql.NullString
		)
		err := rows.Scan(&a.ID, &ts, &kernel, &typName, &sevName, &a.Message,
			&a.LocalAddr, &a.RemoteAddr, &a.LocalPort, &a.RemotePort, &a.PID, &process, &geo)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to scan alert")
		}

		a.Timestamp = time.Unix(0, ts)
		a.KernelTime = uint64(kernel)
		if a.Type, err = event.ParseType(typName); err != nil {
			return nil, errors.Attr(errors.Wrap(err, errors.KindMalformed, "bad stored alert"), "id", a.ID)
		}
		if a.Severity, err = event.ParseSeverity(sevName); err != nil {
			return nil, errors.Attr(errors.Wrap(err, errors.KindMalformed, "bad stored alert"), "id", a.ID)
		}
		if process.Valid {
			a.Process = &enrich.ProcessInfo{}
			if err := json.Unmarshal([]byte(process.String), a.Process); err != nil {
				return nil, errors.Attr(errors.Wrap(err, errors.KindMalformed, "bad stored process"), "id", a.ID)
			}
		}
		if geo.Valid {
			a.Geo = &enrich.GeoInfo{}
			if err := json.Unmarshal([]byte(geo.String), a.Geo); err != nil {
				return nil, errors.Attr(errors.Wrap(err, errors.KindMalformed, "bad stored geo"), "id", a.ID)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the number of stored alerts.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "failed to count alerts")
	}
	return n, nil
}

// Prune deletes alerts older than before and returns how many were removed.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE timestamp < ?`, before.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "failed to prune alerts")
	}
	return res.RowsAffected()
}

func jsonColumn(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *enrich.ProcessInfo:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *enrich.GeoInfo:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, errors.KindInternal, "failed to encode alert column")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
