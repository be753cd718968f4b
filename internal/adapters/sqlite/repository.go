package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rsiScanner/internal/domain"
	"rsiScanner/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultDBPath is used when Config.DBPath is empty.
const DefaultDBPath = "./data/rsi_scanner.db"

// Bucket names stored in scan_results.
const (
	bucketOverbought = "overbought"
	bucketOversold   = "oversold"
)

// Archive implements ports.SnapshotArchive using SQLite.
// It only records history; nothing is read back on startup.
type Archive struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite archive.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewArchive creates a new SQLite archive instance.
func NewArchive(cfg Config) (*Archive, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite archive")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite archive initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite archive initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite archive initialization failed")
		return nil, err
	}

	// A single connection serializes writers; the archive is written once per cycle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	archive := &Archive{db: db, logger: cfg.Logger}
	if err := archive.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite archive initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return archive, nil
}

// initializeSchema creates tables if they don't exist.
func (a *Archive) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS scan_cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP NULL,
		universe INTEGER NOT NULL,
		scanned INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		overbought INTEGER NOT NULL,
		oversold INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL REFERENCES scan_cycles(id) ON DELETE CASCADE,
		bucket TEXT NOT NULL,
		position INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		price REAL NOT NULL,
		rsi REAL NOT NULL,
		rsi_secondary REAL NOT NULL,
		rsi_tertiary REAL NOT NULL,
		trend TEXT NOT NULL DEFAULT '',
		trend_secondary TEXT NOT NULL DEFAULT '',
		trend_tertiary TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_scan_results_cycle_bucket ON scan_results (cycle_id, bucket, position);
	CREATE INDEX IF NOT EXISTS idx_scan_results_symbol ON scan_results (symbol);
	`
	_, err := a.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		a.logger.Info(context.Background(), "Closing SQLite database connection")
		return a.db.Close()
	}
	return nil
}

// SaveCycle stores the cycle summary and both buckets of its final snapshot in one transaction.
func (a *Archive) SaveCycle(ctx context.Context, summary domain.CycleSummary, snap domain.Snapshot) (int64, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() // No-op after Commit

	var publishedAt sql.NullTime
	if snap.LastUpdate != nil {
		publishedAt = sql.NullTime{Time: *snap.LastUpdate, Valid: true}
	}

	const cycleQuery = `
	INSERT INTO scan_cycles (version, started_at, finished_at, published_at, universe, scanned, skipped, overbought, oversold)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, cycleQuery,
		int64(summary.Version), summary.StartedAt, summary.FinishedAt, publishedAt,
		summary.Universe, summary.Scanned, summary.Skipped, len(snap.Overbought), len(snap.Oversold))
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan cycle version %d: %w: %w", summary.Version, ports.ErrQueryFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for scan cycle: %w: %w", ports.ErrQueryFailed, err)
	}

	const rowQuery = `
	INSERT INTO scan_results (cycle_id, bucket, position, symbol, price, rsi, rsi_secondary, rsi_tertiary, trend, trend_secondary, trend_tertiary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, rowQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare scan result insert: %w: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for bucket, rows := range map[string][]domain.ResultRow{bucketOverbought: snap.Overbought, bucketOversold: snap.Oversold} {
		for pos, row := range rows {
			_, err := stmt.ExecContext(ctx, id, bucket, pos, row.Symbol, row.Price, row.RSI, row.RSISecondary, row.RSITertiary,
				string(row.Trend), string(row.TrendSecondary), string(row.TrendTertiary))
			if err != nil {
				return 0, fmt.Errorf("failed to insert scan result %s: %w: %w", row.Symbol, ports.ErrQueryFailed, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan cycle: %w: %w", ports.ErrQueryFailed, err)
	}
	a.logger.Debug(ctx, "Scan cycle stored", map[string]interface{}{"cycleID": id, "version": summary.Version})
	return id, nil
}

// ListCycles returns up to limit cycles, newest first.
func (a *Archive) ListCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
	SELECT id, version, started_at, finished_at, universe, scanned, skipped, overbought, oversold
	FROM scan_cycles
	ORDER BY id DESC
	LIMIT ?`

	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan cycles: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var cycles []domain.CycleSummary
	for rows.Next() {
		var c domain.CycleSummary
		var version int64
		if err := rows.Scan(&c.ID, &version, &c.StartedAt, &c.FinishedAt, &c.Universe, &c.Scanned, &c.Skipped, &c.Overbought, &c.Oversold); err != nil {
			return nil, fmt.Errorf("failed to scan cycle row: %w: %w", ports.ErrQueryFailed, err)
		}
		c.Version = uint64(version)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan cycles: %w: %w", ports.ErrQueryFailed, err)
	}
	return cycles, nil
}

// CycleSnapshot rebuilds the buckets stored for cycle id in their published order.
func (a *Archive) CycleSnapshot(ctx context.Context, id int64) (domain.Snapshot, error) {
	var version int64
	var publishedAt sql.NullTime
	err := a.db.QueryRowContext(ctx, `SELECT version, published_at FROM scan_cycles WHERE id = ?`, id).Scan(&version, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("scan cycle %d: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to query scan cycle %d: %w: %w", id, ports.ErrQueryFailed, err)
	}

	snap := domain.Snapshot{
		Overbought: []domain.ResultRow{},
		Oversold:   []domain.ResultRow{},
		Version:    uint64(version),
	}
	if publishedAt.Valid {
		ts := publishedAt.Time
		snap.LastUpdate = &ts
	}

	const query = `
	SELECT bucket, symbol, price, rsi, rsi_secondary, rsi_tertiary, trend, trend_secondary, trend_tertiary
	FROM scan_results
	WHERE cycle_id = ?
	ORDER BY bucket, position`
	rows, err := a.db.QueryContext(ctx, query, id)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to query scan results for cycle %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var r domain.ResultRow
		var trend, trendSecondary, trendTertiary string
		if err := rows.Scan(&bucket, &r.Symbol, &r.Price, &r.RSI, &r.RSISecondary, &r.RSITertiary, &trend, &trendSecondary, &trendTertiary); err != nil {
			return domain.Snapshot{}, fmt.Errorf("failed to scan result row: %w: %w", ports.ErrQueryFailed, err)
		}
		r.Trend, r.TrendSecondary, r.TrendTertiary = domain.Trend(trend), domain.Trend(trendSecondary), domain.Trend(trendTertiary)
		switch bucket {
		case bucketOverbought:
			snap.Overbought = append(snap.Overbought, r)
		case bucketOversold:
			snap.Oversold = append(snap.Oversold, r)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("error iterating scan results: %w: %w", ports.ErrQueryFailed, err)
	}
	return snap, nil
}
