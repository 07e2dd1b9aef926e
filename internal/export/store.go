package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wsi-tiler/internal/tiling"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	slide            TEXT NOT NULL,
	mask             TEXT,
	created_at       DATETIME NOT NULL,
	tiling           TEXT NOT NULL,
	filter           TEXT NOT NULL,
	tile_level       INTEGER NOT NULL,
	resize_factor    REAL NOT NULL,
	tile_size_level0 INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tiles (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	x             INTEGER NOT NULL,
	y             INTEGER NOT NULL,
	tissue_ratio  REAL NOT NULL,
	level         INTEGER NOT NULL,
	resize_factor REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Run is one stored tiling result.
type Run struct {
	ID        string
	Slide     string
	Mask      string
	CreatedAt time.Time
	Tiling    tiling.Config
	Filter    tiling.FilterConfig
	Result    tiling.Result
}

// Store is a SQLite tile database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveRun stores a tiling result with its tiles in one transaction and
// returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, slide, mask string, cfg tiling.Config, filter tiling.FilterConfig, res *tiling.Result) (string, error) {
	tilingJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling tiling config: %w", err)
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("marshaling filter config: %w", err)
	}

	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, slide, mask, created_at, tiling, filter, tile_level, resize_factor, tile_size_level0)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, slide, nullString(mask), time.Now().UTC(), string(tilingJSON), string(filterJSON),
		res.TileLevel, res.ResizeFactor, res.TileSizeLevel0,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tiles (run_id, seq, x, y, tissue_ratio, level, resize_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing tile insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range res.Coordinates {
		if _, err := stmt.ExecContext(ctx, id, i, c.X, c.Y, c.TissueRatio, c.Level, c.ResizeFactor); err != nil {
			return "", fmt.Errorf("inserting tile %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

// GetRun loads a run and its tiles in stored order.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run        Run
		mask       sql.NullString
		tilingJSON string
		filterJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slide, mask, created_at, tiling, filter, tile_level, resize_factor, tile_size_level0
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Slide, &mask, &run.CreatedAt, &tilingJSON, &filterJSON,
		&run.Result.TileLevel, &run.Result.ResizeFactor, &run.Result.TileSizeLevel0)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	run.Mask = mask.String

	if err := json.Unmarshal([]byte(tilingJSON), &run.Tiling); err != nil {
		return nil, fmt.Errorf("parsing tiling config: %w", err)
	}
	if err := json.Unmarshal([]byte(filterJSON), &run.Filter); err != nil {
		return nil, fmt.Errorf("parsing filter config: %w", err)
	}

	run.Result.Coordinates, err = s.tiles(ctx, id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the IDs of all runs for slide, newest first. An empty
// slide lists every run.
func (s *Store) ListRuns(ctx context.Context, slide string) ([]string, error) {
	query := "SELECT id FROM runs ORDER BY created_at DESC"
	args := []any{}
	if slide != "" {
		query = "SELECT id FROM runs WHERE slide = ? ORDER BY created_at DESC"
		args = append(args, slide)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRun removes a run and its tiles.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (s *Store) tiles(ctx context.Context, id string) ([]tiling.TileCoordinate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y, tissue_ratio, level, resize_factor
		FROM tiles WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying tiles: %w", err)
	}
	defer rows.Close()

	var out []tiling.TileCoordinate
	for rows.Next() {
		var c tiling.TileCoordinate
		if err := rows.Scan(&c.X, &c.Y, &c.TissueRatio, &c.Level, &c.ResizeFactor); err != nil {
			return nil, fmt.Errorf("scanning tile: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
