package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	kind          TEXT NOT NULL,
	subject_id    TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	latency_ns    INTEGER NOT NULL,
	input_quality REAL NOT NULL,
	archive_key   TEXT NOT NULL DEFAULT '',
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_kind ON audit_records(kind);
CREATE INDEX IF NOT EXISTS idx_audit_records_subject ON audit_records(subject_id);
`

// payload holds the decision snapshot stored as JSON
type payload struct {
	Match      json.RawMessage `json:"match,omitempty"`
	Affect     json.RawMessage `json:"affect,omitempty"`
	Enrollment json.RawMessage `json:"enrollment,omitempty"`
}

// SQLite stores records in a single insert-only table
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates the audit database at path. ":memory:" keeps
// it in process.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: sqlite path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Append(ctx context.Context, r Record) error {
	data, err := encodePayload(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, kind, subject_id, created_at, latency_ns, input_quality, archive_key, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.SubjectID, r.Timestamp.UTC().Format(time.RFC3339Nano),
		int64(r.Latency), r.InputQuality, r.ArchiveKey, data,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, f.SubjectID)
	}

	query := "SELECT id, kind, subject_id, created_at, latency_ns, input_quality, archive_key, payload FROM audit_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	return out, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func encodePayload(r Record) (string, error) {
	var p payload
	var err error
	if r.Match != nil {
		if p.Match, err = json.Marshal(r.Match); err != nil {
			return "", fmt.Errorf("marshalling match: %w", err)
		}
	}
	if r.Affect != nil {
		if p.Affect, err = json.Marshal(r.Affect); err != nil {
			return "", fmt.Errorf("marshalling affect: %w", err)
		}
	}
	if r.Enrollment != nil {
		if p.Enrollment, err = json.Marshal(r.Enrollment); err != nil {
			return "", fmt.Errorf("marshalling enrollment: %w", err)
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshalling payload: %w", err)
	}
	return string(data), nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var kind, createdAt, data string
	var latency int64

	if err := rows.Scan(&r.ID, &kind, &r.SubjectID, &createdAt, &latency,
		&r.InputQuality, &r.ArchiveKey, &data); err != nil {
		return Record{}, fmt.Errorf("scanning audit record: %w", err)
	}

	r.Kind = Kind(kind)
	r.Latency = time.Duration(latency)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.Timestamp = t
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Record{}, fmt.Errorf("unmarshalling payload of %s: %w", r.ID, err)
	}
	if len(p.Match) > 0 {
		if err := json.Unmarshal(p.Match, &r.Match); err != nil {
			return Record{}, fmt.Errorf("unmarshalling match of %s: %w", r.ID, err)
		}
	}
	if len(p.Affect) > 0 {
		if err := json.Unmarshal(p.Affect, &r.Affect); err != nil {
			return Record{}, fmt.Errorf("unmarshalling affect of %s: %w", r.ID, err)
		}
	}
	if len(p.Enrollment) > 0 {
		if err := json.Unmarshal(p.Enrollment, &r.Enrollment); err != nil {
			return Record{}, fmt.Errorf("unmarshalling enrollment of %s: %w", r.ID, err)
		}
	}
	return r, nil
}
