package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink archives readings in a local SQLite database.
type SQLiteSink struct {
	conn *sql.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	s := &SQLiteSink{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		plant_id TEXT NOT NULL,
		point_id TEXT NOT NULL,
		code TEXT NOT NULL,
		collected_at INTEGER NOT NULL,
		value REAL,
		text_value TEXT,
		unit TEXT,
		name TEXT,
		UNIQUE(plant_id, point_id, collected_at)
	);

	CREATE INDEX IF NOT EXISTS idx_readings_plant_code ON readings(plant_id, code, collected_at);
	`
	if _, err := s.conn.Exec(query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Publish(ctx context.Context, snapshot Snapshot) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO readings
		(run_id, plant_id, point_id, code, collected_at, value, text_value, unit, name)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	collected := snapshot.CollectedAt.Unix()
	for _, r := range snapshot.Readings {
		var number sql.NullFloat64
		var text sql.NullString
		switch v := r.Value.(type) {
		case float64:
			number = sql.NullFloat64{Float64: v, Valid: true}
		case string:
			text = sql.NullString{String: v, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, snapshot.RunID, snapshot.PlantID, r.PointID, r.Code, collected,
			number, text, nullable(r.Unit), nullable(r.Name)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", snapshot.PlantID, r.Code, err)
		}
	}
	return tx.Commit()
}

// History returns stored readings for one plant and code, newest first.
func (s *SQLiteSink) History(ctx context.Context, plantID, code string, limit int) ([]StoredReading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `
	SELECT run_id, point_id, collected_at, value, text_value, unit
	FROM readings
	WHERE plant_id = ? AND code = ?
	ORDER BY collected_at DESC
	LIMIT ?`, plantID, code, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []StoredReading
	for rows.Next() {
		var (
			rec       StoredReading
			collected int64
			number    sql.NullFloat64
			text      sql.NullString
			unit      sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.PointID, &collected, &number, &text, &unit); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.PlantID = plantID
		rec.Code = code
		rec.CollectedAt = time.Unix(collected, 0).UTC()
		switch {
		case number.Valid:
			rec.Value = number.Float64
		case text.Valid:
			rec.Value = text.String
		}
		if unit.Valid {
			rec.Unit = &unit.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StoredReading is one archived row.
type StoredReading struct {
	RunID       string    `json:"run_id"`
	PlantID     string    `json:"plant_id"`
	PointID     string    `json:"point_id"`
	Code        string    `json:"code"`
	CollectedAt time.Time `json:"collected_at"`
	Value       any       `json:"value"`
	Unit        *string   `json:"unit"`
}

func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}

func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
