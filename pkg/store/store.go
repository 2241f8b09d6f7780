// Package store persists records in a single SQLite file.
//
// Writes are single-row transactions that either commit or roll back, and the
// database runs in WAL mode so API reads observe committed state while an
// ingest run is writing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/metrics"
	"github.com/Sternrassler/dexmirror/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("record not found")

var storeErrorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Name: "dexmirror_store_errors_total",
	Help: "Total store operation errors by operation",
}, []string{"operation"})

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id              INTEGER PRIMARY KEY,
	name            TEXT    NOT NULL UNIQUE,
	height          REAL    NOT NULL,
	weight          REAL    NOT NULL,
	categories      TEXT    NOT NULL,
	base_experience INTEGER NOT NULL DEFAULT 0,
	sprite_url      TEXT
)`

const columns = `id, name, height, weight, categories, base_experience, sprite_url`

// Store is the SQLite-backed record store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database file at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// busy_timeout lets a reader wait out the ingester's write lock;
	// synchronous(NORMAL) is the recommended pairing with WAL.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", filepath.Clean(path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Store opened")
	return s, nil
}

// InitSchema creates the records table if it does not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		storeErrorsTotal.WithLabelValues("init_schema").Inc()
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Upsert inserts rec or fully replaces the row with the same id.
//
// A name already owned by a different id violates the unique constraint and
// is returned as an error; nothing is written in that case.
func (s *Store) Upsert(ctx context.Context, rec record.Record) (err error) {
	categories, err := record.EncodeCategories(rec.Categories)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		storeErrorsTotal.WithLabelValues("upsert").Inc()
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		storeErrorsTotal.WithLabelValues("upsert").Inc()
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error().Err(rbErr).Int64("id", rec.ID).Msg("Rollback failed")
		}
		s.logger.Error().Err(err).Int64("id", rec.ID).Str("name", rec.Name).Msg("Upsert failed")
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name            = excluded.name,
			height          = excluded.height,
			weight          = excluded.weight,
			categories      = excluded.categories,
			base_experience = excluded.base_experience,
			sprite_url      = excluded.sprite_url
	`,
		rec.ID,
		rec.Name,
		rec.Height,
		rec.Weight,
		categories,
		rec.BaseExperience,
		rec.SpriteURL,
	)
	if err != nil {
		return fmt.Errorf("upsert record %d: %w", rec.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert %d: %w", rec.ID, err)
	}

	s.logger.Debug().Int64("id", rec.ID).Str("name", rec.Name).Msg("Record upserted")
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (record.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		storeErrorsTotal.WithLabelValues("get").Inc()
		return record.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// Exists reports whether a record with the given id is stored.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		storeErrorsTotal.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("check record %d: %w", id, err)
	}
	return true, nil
}

// List returns up to limit records ordered by id, skipping the first offset.
//
// A non-empty category restricts the result to records whose serialized
// categories column contains it as a substring, ignoring ASCII case, so "fir"
// and "Fire" both match ["fire"]. LIKE wildcards in category are matched
// literally. Bounds are the caller's responsibility.
func (s *Store) List(ctx context.Context, offset, limit int, category string) ([]record.Record, error) {
	query := `SELECT ` + columns + ` FROM records`
	var args []any

	if category != "" {
		query += ` WHERE ` + categoryFilter
		args = append(args, likePattern(category))
	}

	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		storeErrorsTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]record.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			storeErrorsTotal.WithLabelValues("list").Inc()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		storeErrorsTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Count returns the number of records matching category, using the same
// substring semantics as List.
func (s *Store) Count(ctx context.Context, category string) (int, error) {
	query := `SELECT COUNT(*) FROM records`
	var args []any
	if category != "" {
		query += ` WHERE ` + categoryFilter
		args = append(args, likePattern(category))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		storeErrorsTotal.WithLabelValues("count").Inc()
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// MaxID returns the highest stored id, or 0 for an empty store.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM records`).Scan(&id); err != nil {
		storeErrorsTotal.WithLabelValues("max_id").Inc()
		return 0, fmt.Errorf("max record id: %w", err)
	}
	return id.Int64, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord maps one row, selected with columns, onto a Record.
func scanRecord(row rowScanner) (record.Record, error) {
	var (
		rec        record.Record
		categories string
		sprite     sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Height,
		&rec.Weight,
		&categories,
		&rec.BaseExperience,
		&sprite,
	); err != nil {
		return record.Record{}, err
	}

	decoded, err := record.DecodeCategories(categories)
	if err != nil {
		return record.Record{}, err
	}
	rec.Categories = decoded

	if sprite.Valid {
		url := sprite.String
		rec.SpriteURL = &url
	}
	return rec, nil
}

// categoryFilter matches the categories column against a likePattern.
const categoryFilter = `categories LIKE ? ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns category into a LIKE pattern matching it anywhere.
func likePattern(category string) string {
	return "%" + likeEscaper.Replace(category) + "%"
}
