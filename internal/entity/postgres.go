package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aptlens/aptlens/internal/db"
	"github.com/aptlens/aptlens/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "entity: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "entity: postgres connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS apt_master (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	road_address TEXT NOT NULL DEFAULT '',
	lot_address  TEXT NOT NULL DEFAULT '',
	build_year   TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_apt_master_identity
	ON apt_master(name, road_address, lot_address, build_year);
CREATE INDEX IF NOT EXISTS idx_apt_master_name ON apt_master(name);
CREATE INDEX IF NOT EXISTS idx_apt_master_road ON apt_master(road_address);
CREATE INDEX IF NOT EXISTS idx_apt_master_lot ON apt_master(lot_address);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "entity: postgres migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const entityColumns = "id, name, road_address, lot_address, build_year, latitude, longitude, created_at"

func (s *PostgresStore) FindByNames(ctx context.Context, names []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "name", names)
}

func (s *PostgresStore) FindByRoadAddresses(ctx context.Context, addrs []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "road_address", addrs)
}

func (s *PostgresStore) FindByLotAddresses(ctx context.Context, addrs []string) ([]model.Entity, error) {
	return s.findByColumn(ctx, "lot_address", addrs)
}

func (s *PostgresStore) findByColumn(ctx context.Context, column string, keys []string) ([]model.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := `SELECT ` + entityColumns + ` FROM apt_master
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		AND ` + column + ` = ANY($1)`
	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: postgres find by %s", column)
	}
	return collectEntities(rows)
}

func (s *PostgresStore) ListLocated(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entityColumns+` FROM apt_master
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "entity: postgres list located")
	}
	return collectEntities(rows)
}

func (s *PostgresStore) ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `SELECT `+entityColumns+` FROM apt_master
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "entity: postgres list missing coordinates")
	}
	return collectEntities(rows)
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, e model.Entity) (bool, error) {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO apt_master (id, name, road_address, lot_address, build_year, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name, road_address, lot_address, build_year) DO NOTHING`,
		id, e.Name, e.RoadAddress, e.LotAddress, e.BuildYear, e.Latitude, e.Longitude,
	)
	if err != nil {
		return false, eris.Wrap(err, "entity: postgres insert")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) BackfillCoordinates(ctx context.Context, id string, lat, lon float64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE apt_master SET latitude = $1, longitude = $2
		WHERE id = $3 AND latitude IS NULL`,
		lat, lon, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "entity: postgres backfill %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// collectEntities drains pgx rows into entities.
func collectEntities(rows pgx.Rows) ([]model.Entity, error) {
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.RoadAddress, &e.LotAddress, &e.BuildYear, &e.Latitude, &e.Longitude, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "entity: scan row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "entity: iterate rows")
	}
	return out, nil
}
