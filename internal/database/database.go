package database

import (
	"database/sql"
	"fmt"
	"time"

	"framecut/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing higher-level helper methods for the
// project store: the library, the sequence timeline and the composite
// tracks survive restarts through it. It is safe for concurrent use because
// the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for better performance
	insertSourceStmt  *sql.Stmt
	getSourceByIDStmt *sql.Stmt
	sourceExistsStmt  *sql.Stmt
	removeSourceStmt  *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string) (*Database, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	sourceClipsTable := `
	CREATE TABLE IF NOT EXISTS source_clips (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		duration REAL,
		width INTEGER,
		height INTEGER,
		file_size INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Sequence order is stored as an explicit position; derived start times
	// are recomputed by the engine on load and never persisted.
	sequenceClipsTable := `
	CREATE TABLE IF NOT EXISTS sequence_clips (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		name TEXT NOT NULL,
		duration REAL DEFAULT 0,
		width INTEGER,
		height INTEGER,
		trim_start REAL DEFAULT 0,
		trim_end REAL DEFAULT 0,
		position INTEGER NOT NULL,
		FOREIGN KEY (source_id) REFERENCES source_clips(id) ON DELETE CASCADE
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		pos_x REAL DEFAULT 0,
		pos_y REAL DEFAULT 0,
		volume REAL DEFAULT 1,
		opacity REAL DEFAULT 1,
		z_index INTEGER NOT NULL,
		visible BOOLEAN DEFAULT TRUE,
		offset_ms INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (source_id) REFERENCES source_clips(id) ON DELETE CASCADE
	);`

	settingsTable := `
	CREATE TABLE IF NOT EXISTS project_settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_source_clips_path ON source_clips(path);",
		"CREATE INDEX IF NOT EXISTS idx_sequence_clips_position ON sequence_clips(position);",
		"CREATE INDEX IF NOT EXISTS idx_sequence_clips_source ON sequence_clips(source_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_z_index ON tracks(z_index);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_source ON tracks(source_id);",
	}

	tables := []string{sourceClipsTable, sequenceClipsTable, tracksTable, settingsTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	if err := db.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: Add media_handle column to source_clips if it doesn't exist
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('source_clips')
		WHERE name = 'media_handle'`).Scan(&columnExists)
	if err != nil {
		return err
	}

	if !columnExists {
		if _, err := db.conn.Exec("ALTER TABLE source_clips ADD COLUMN media_handle TEXT"); err != nil {
			return err
		}
		db.logger.Info("Added media_handle column to source_clips table")
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.insertSourceStmt, err = db.conn.Prepare(`
		INSERT INTO source_clips (id, path, name, duration, width, height, file_size, media_handle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			duration=excluded.duration,
			width=excluded.width,
			height=excluded.height,
			file_size=excluded.file_size,
			media_handle=excluded.media_handle`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert source statement: %w", err)
	}

	db.getSourceByIDStmt, err = db.conn.Prepare(`
		SELECT id, path, name, duration, width, height, file_size, media_handle, created_at
		FROM source_clips WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get source by ID statement: %w", err)
	}

	db.sourceExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM source_clips WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare source exists statement: %w", err)
	}

	db.removeSourceStmt, err = db.conn.Prepare(`
		DELETE FROM source_clips WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove source statement: %w", err)
	}

	return nil
}

// UpsertSourceClip inserts or updates a library source clip by id
func (db *Database) UpsertSourceClip(clip models.SourceClip) error {
	var duration sql.NullFloat64
	if clip.Duration != nil {
		duration = sql.NullFloat64{Float64: *clip.Duration, Valid: true}
	}
	var width, height sql.NullInt64
	if clip.Resolution != nil {
		width = sql.NullInt64{Int64: int64(clip.Resolution.Width), Valid: true}
		height = sql.NullInt64{Int64: int64(clip.Resolution.Height), Valid: true}
	}

	_, err := db.insertSourceStmt.Exec(
		clip.ID, clip.Path, clip.Name, duration, width, height,
		clip.FileSize, clip.MediaHandle, clip.CreatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("source_id", clip.ID).Error("Failed to upsert source clip")
	}
	return err
}

// GetAllSourceClips returns all library sources in import order
func (db *Database) GetAllSourceClips() ([]models.SourceClip, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, name, duration, width, height, file_size, media_handle, created_at
		FROM source_clips
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSourceClipRows(rows)
}

// GetSourceClipByID returns a single library source by its id
func (db *Database) GetSourceClipByID(id string) (*models.SourceClip, error) {
	row := db.getSourceByIDStmt.QueryRow(id)
	clip, err := scanSourceClip(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("source clip %s not found", id)
		}
		db.logger.WithError(err).WithField("source_id", id).Error("Failed to get source clip by ID")
		return nil, err
	}
	return clip, nil
}

// SourceClipExists returns true if a source exists with the given file path
func (db *Database) SourceClipExists(path string) (bool, error) {
	var count int
	err := db.sourceExistsStmt.QueryRow(path).Scan(&count)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", path).Error("Failed to check if source clip exists")
		return false, err
	}
	return count > 0, nil
}

// RemoveSourceClip deletes a source row; sequence clips and tracks
// referencing it go with it via foreign key cascade.
func (db *Database) RemoveSourceClip(id string) error {
	_, err := db.removeSourceStmt.Exec(id)
	if err != nil {
		db.logger.WithError(err).WithField("source_id", id).Error("Failed to remove source clip")
	}
	return err
}

// SaveSequence persists the full timeline in order, replacing any previous
// contents in a single transaction.
func (db *Database) SaveSequence(clips []models.SequenceClip) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sequence_clips"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sequence_clips (id, source_id, source_path, name, duration, width, height, trim_start, trim_end, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, clip := range clips {
		var width, height sql.NullInt64
		if clip.Resolution != nil {
			width = sql.NullInt64{Int64: int64(clip.Resolution.Width), Valid: true}
			height = sql.NullInt64{Int64: int64(clip.Resolution.Height), Valid: true}
		}
		if _, err := stmt.Exec(clip.ID, clip.SourceID, clip.SourcePath, clip.Name,
			clip.Duration, width, height, clip.TrimStart, clip.TrimEnd, i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSequence returns the persisted timeline ordered by stored position
func (db *Database) LoadSequence() ([]models.SequenceClip, error) {
	rows, err := db.conn.Query(`
		SELECT id, source_id, source_path, name, duration, width, height, trim_start, trim_end
		FROM sequence_clips
		ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []models.SequenceClip
	for rows.Next() {
		var clip models.SequenceClip
		var width, height sql.NullInt64
		if err := rows.Scan(&clip.ID, &clip.SourceID, &clip.SourcePath, &clip.Name,
			&clip.Duration, &width, &height, &clip.TrimStart, &clip.TrimEnd); err != nil {
			return nil, err
		}
		if width.Valid {
			clip.Resolution = &models.Resolution{Width: int(width.Int64), Height: int(height.Int64)}
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// SaveComposite persists the track stack and composite selection state,
// replacing any previous contents in a single transaction.
func (db *Database) SaveComposite(state models.CompositeState) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tracks"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tracks (id, source_id, name, path, duration_ms, width, height, pos_x, pos_y, volume, opacity, z_index, visible, offset_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range state.Tracks {
		if _, err := stmt.Exec(t.ID, t.SourceID, t.Clip.Name, t.Clip.Path, t.Clip.DurationMs,
			t.Clip.Width, t.Clip.Height, t.Position.X, t.Position.Y, t.Volume, t.Opacity,
			t.ZIndex, t.Visible, t.OffsetMs, t.CreatedAt); err != nil {
			return err
		}
	}

	settings := map[string]string{
		"selected_track_id": state.SelectedTrackID,
		"solo_track_id":     state.SoloTrackID,
	}
	for key, value := range settings {
		if _, err := tx.Exec(`
			INSERT INTO project_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadComposite returns the persisted track stack ordered by depth along
// with the saved selection and solo ids.
func (db *Database) LoadComposite() ([]models.Track, string, string, error) {
	rows, err := db.conn.Query(`
		SELECT id, source_id, name, path, duration_ms, width, height, pos_x, pos_y, volume, opacity, z_index, visible, offset_ms, created_at
		FROM tracks
		ORDER BY z_index`)
	if err != nil {
		return nil, "", "", err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.SourceID, &t.Clip.Name, &t.Clip.Path, &t.Clip.DurationMs,
			&t.Clip.Width, &t.Clip.Height, &t.Position.X, &t.Position.Y, &t.Volume, &t.Opacity,
			&t.ZIndex, &t.Visible, &t.OffsetMs, &t.CreatedAt); err != nil {
			return nil, "", "", err
		}
		t.Clip.Duration = float64(t.Clip.DurationMs) / 1000.0
		t.Duration = t.Clip.DurationMs
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", "", err
	}

	selected, _ := db.getSetting("selected_track_id")
	solo, _ := db.getSetting("solo_track_id")
	return tracks, selected, solo, nil
}

func (db *Database) getSetting(key string) (string, error) {
	var value sql.NullString
	err := db.conn.QueryRow("SELECT value FROM project_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value.String, nil
}

// Close closes the underlying database connection and prepared statements
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.insertSourceStmt,
		db.getSourceByIDStmt,
		db.sourceExistsStmt,
		db.removeSourceStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSourceClip(row rowScanner) (*models.SourceClip, error) {
	var clip models.SourceClip
	var duration sql.NullFloat64
	var width, height sql.NullInt64
	var handle sql.NullString

	if err := row.Scan(&clip.ID, &clip.Path, &clip.Name, &duration, &width, &height,
		&clip.FileSize, &handle, &clip.CreatedAt); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := duration.Float64
		clip.Duration = &d
	}
	if width.Valid {
		clip.Resolution = &models.Resolution{Width: int(width.Int64), Height: int(height.Int64)}
	}
	if handle.Valid {
		clip.MediaHandle = handle.String
	}
	return &clip, nil
}

// scanSourceClipRows scans standard source clip result sets. Callers must
// have already deferred rows.Close().
func scanSourceClipRows(rows *sql.Rows) ([]models.SourceClip, error) {
	var clips []models.SourceClip
	for rows.Next() {
		clip, err := scanSourceClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, *clip)
	}
	return clips, rows.Err()
}
