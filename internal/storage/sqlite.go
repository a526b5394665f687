package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"facewatch/internal/model"
)

type sqliteSink struct {
	baseSink
}

func NewSQLite(dsn string) (Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:facewatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteSink{baseSink{db: db}}, nil
}

func (s *sqliteSink) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS face_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			camera_id INTEGER NOT NULL,
			camera_name TEXT NOT NULL,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			age INTEGER,
			gender TEXT,
			screenshot_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_face_events_ts ON face_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_face_events_camera_label ON face_events(camera_id, label)`,
		`CREATE TABLE IF NOT EXISTS known_faces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			embedding BLOB NOT NULL,
			image_path TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteSink) LogEvent(ctx context.Context, ev model.AlertEvent) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO face_events (event_id, ts, camera_id, camera_name, label, confidence, age, gender, screenshot_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.CameraID,
		ev.CameraName,
		ev.Label,
		ev.Confidence,
		nullableInt(ev.Age),
		nullableString(string(ev.Gender)),
		nullableString(ev.ScreenshotPath),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteSink) Events(ctx context.Context, filter EventFilter) ([]model.AlertEvent, error) {
	if s.db == nil {
		return nil, nil
	}
	query := `SELECT event_id, ts, camera_id, camera_name, label, confidence, age, gender, screenshot_path FROM face_events`
	var conds []string
	var args []any
	if filter.CameraID != nil {
		conds = append(conds, "camera_id = ?")
		args = append(args, *filter.CameraID)
	}
	if filter.Label != "" {
		conds = append(conds, "label = ?")
		args = append(args, filter.Label)
	}
	if !filter.Start.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, filter.Start.UTC().Format(time.RFC3339Nano))
	}
	if !filter.End.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, filter.End.UTC().Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AlertEvent
	for rows.Next() {
		var ev model.AlertEvent
		var ts string
		var age sql.NullInt64
		var gender, screenshot sql.NullString
		if err := rows.Scan(&ev.ID, &ts, &ev.CameraID, &ev.CameraName, &ev.Label, &ev.Confidence, &age, &gender, &screenshot); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		ev.Timestamp = parsed
		if age.Valid {
			ev.Age = int(age.Int64)
		}
		if gender.Valid {
			ev.Gender = model.Gender(gender.String)
		}
		if screenshot.Valid {
			ev.ScreenshotPath = screenshot.String
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteSink) SaveIdentity(ctx context.Context, id model.KnownIdentity) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO known_faces (name, embedding, image_path, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET embedding = excluded.embedding, image_path = excluded.image_path`,
		id.Name,
		encodeEmbedding(id.Embedding),
		id.ImagePath,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteSink) DeleteIdentity(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM known_faces WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteSink) Identities(ctx context.Context) ([]model.KnownIdentity, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, embedding, image_path FROM known_faces ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KnownIdentity
	for rows.Next() {
		var id model.KnownIdentity
		var blob []byte
		if err := rows.Scan(&id.Name, &blob, &id.ImagePath); err != nil {
			return nil, err
		}
		id.Embedding = decodeEmbedding(blob)
		out = append(out, id)
	}
	return out, rows.Err()
}
