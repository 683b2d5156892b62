package entity

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aptlens/aptlens/internal/model"
)

// sqliteBatchSize keeps IN clauses under the SQLite bound-parameter limit.
const sqliteBatchSize = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "entity: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "entity: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS apt_master (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	road_address TEXT NOT NULL DEFAULT '',
	lot_address  TEXT NOT NULL DEFAULT '',
	build_year   TEXT NOT NULL DEFAULT '',
	latitude     REAL,
	longitude    REAL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_apt_master_identity
	ON apt_master(name, road_address, lot_address, build_year);
CREATE INDEX IF NOT EXISTS idx_apt_master_name ON apt_master(name);
CREATE INDEX IF NOT EXISTS idx_apt_master_road ON apt_master(road_address);
CREATE INDEX IF NOT EXISTS idx_apt_master_lot ON apt_master(lot_address);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "entity: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByNames(ctx context.Context, names []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "name", names)
}

func (s *SQLiteStore) FindByRoadAddresses(ctx context.Context, addrs []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "road_address", addrs)
}

func (s *SQLiteStore) FindByLotAddresses(ctx context.Context, addrs []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "lot_address", addrs)
}

// findByColumn runs chunked IN lookups against one key column, returning
// located entities only.
func (s *SQLiteStore) findByColumn(ctx context.Context, column string, keys []string) ([]model.Entity, error) {
	var out []model.Entity
	for start := 0; start < len(keys); start += sqliteBatchSize {
		end := start + sqliteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `SELECT id, name, road_address, lot_address, build_year, latitude, longitude, created_at
			FROM apt_master
			WHERE latitude IS NOT NULL AND longitude IS NOT NULL
			AND ` + column + ` IN (` + placeholders + `)`

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrapf(err, "entity: sqlite find by %s", column)
		}
		batch, err := scanEntities(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *SQLiteStore) ListLocated(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, road_address, lot_address, build_year, latitude, longitude, created_at
		FROM apt_master
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "entity: sqlite list located")
	}
	return scanEntities(rows)
}

func (s *SQLiteStore) ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, road_address, lot_address, build_year, latitude, longitude, created_at
		FROM apt_master
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "entity: sqlite list missing coordinates")
	}
	return scanEntities(rows)
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, e model.Entity) (bool, error) {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO apt_master (id, name, road_address, lot_address, build_year, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Name, e.RoadAddress, e.LotAddress, e.BuildYear, e.Latitude, e.Longitude, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "entity: sqlite insert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "entity: sqlite rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) BackfillCoordinates(ctx context.Context, id string, lat, lon float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE apt_master SET latitude = ?, longitude = ?
		WHERE id = ? AND latitude IS NULL`,
		lat, lon, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "entity: sqlite backfill %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "entity: sqlite rows affected")
	}
	return n > 0, nil
}

// scanEntities drains a result set into entities, closing the rows.
func scanEntities(rows *sql.Rows) ([]model.Entity, error) {
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &e.RoadAddress, &e.LotAddress, &e.BuildYear, &lat, &lon, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "entity: scan row")
		}
		if lat.Valid {
			e.Latitude = &lat.Float64
		}
		if lon.Valid {
			e.Longitude = &lon.Float64
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "entity: iterate rows")
	}
	return out, nil
}
