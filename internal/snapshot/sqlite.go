package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "snapshots.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	records    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_source_created ON snapshots(source, created_at);
`

// sqliteBackend stores one row per snapshot. created_at holds Unix
// milliseconds and doubles as the modification time.
type sqliteBackend struct {
	db   *sql.DB
	path string
}

func newSQLiteBackend(dir string) (*sqliteBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create history directory: %w", err)
	}
	path := filepath.Join(dir, sqliteFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("snapshot: init sqlite: %w", err)
		}
	}
	return &sqliteBackend{db: db, path: path}, nil
}

func (s *sqliteBackend) put(ctx context.Context, source, id string, createdAt time.Time, payload []byte) (Info, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, source, created_at, records) VALUES (?, ?, ?, ?)`,
		id, source, createdAt.UnixMilli(), payload)
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:        id,
		Source:    source,
		CreatedAt: createdAt,
		ModTime:   createdAt,
		Size:      int64(len(payload)),
		Location:  s.location(id),
	}, nil
}

func (s *sqliteBackend) list(ctx context.Context, source string) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, length(records) FROM snapshots
		 WHERE source = ? ORDER BY created_at DESC, id DESC`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			id      string
			created int64
			size    int64
		)
		if err := rows.Scan(&id, &created, &size); err != nil {
			return nil, err
		}
		t := time.UnixMilli(created).UTC()
		infos = append(infos, Info{
			ID:        id,
			Source:    source,
			CreatedAt: t,
			ModTime:   t,
			Size:      size,
			Location:  s.location(id),
		})
	}
	return infos, rows.Err()
}

func (s *sqliteBackend) read(ctx context.Context, info Info) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM snapshots WHERE id = ? AND source = ?`, info.ID, info.Source).Scan(&payload)
	return payload, err
}

func (s *sqliteBackend) remove(ctx context.Context, info Info) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id = ? AND source = ?`, info.ID, info.Source)
	return err
}

func (s *sqliteBackend) close() error {
	return s.db.Close()
}

func (s *sqliteBackend) location(id string) string {
	return s.path + "#" + id
}
