package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"facewatch/internal/model"
)

type postgresSink struct {
	baseSink
}

func NewPostgres(dsn string) (Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/facewatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresSink{baseSink{db: db}}, nil
}

func (s *postgresSink) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS face_events (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			camera_id INTEGER NOT NULL,
			camera_name TEXT NOT NULL,
			label TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			age INTEGER,
			gender TEXT,
			screenshot_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_face_events_ts ON face_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_face_events_camera_label ON face_events(camera_id, label)`,
		`CREATE TABLE IF NOT EXISTS known_faces (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			embedding BYTEA NOT NULL,
			image_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresSink) LogEvent(ctx context.Context, ev model.AlertEvent) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO face_events (event_id, ts, camera_id, camera_name, label, confidence, age, gender, screenshot_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		ev.ID,
		ev.Timestamp.UTC(),
		ev.CameraID,
		ev.CameraName,
		ev.Label,
		ev.Confidence,
		nullableInt(ev.Age),
		nullableString(string(ev.Gender)),
		nullableString(ev.ScreenshotPath),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *postgresSink) Events(ctx context.Context, filter EventFilter) ([]model.AlertEvent, error) {
	if s.db == nil {
		return nil, nil
	}
	query := `SELECT event_id, ts, camera_id, camera_name, label, confidence, age, gender, screenshot_path FROM face_events`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if filter.CameraID != nil {
		conds = append(conds, "camera_id = "+arg(*filter.CameraID))
	}
	if filter.Label != "" {
		conds = append(conds, "label = "+arg(filter.Label))
	}
	if !filter.Start.IsZero() {
		conds = append(conds, "ts >= "+arg(filter.Start.UTC()))
	}
	if !filter.End.IsZero() {
		conds = append(conds, "ts <= "+arg(filter.End.UTC()))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY ts DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AlertEvent
	for rows.Next() {
		var ev model.AlertEvent
		var ts time.Time
		var age sql.NullInt64
		var gender, screenshot sql.NullString
		if err := rows.Scan(&ev.ID, &ts, &ev.CameraID, &ev.CameraName, &ev.Label, &ev.Confidence, &age, &gender, &screenshot); err != nil {
			return nil, err
		}
		ev.Timestamp = ts
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

func (s *postgresSink) SaveIdentity(ctx context.Context, id model.KnownIdentity) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO known_faces (name, embedding, image_path, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET embedding = EXCLUDED.embedding, image_path = EXCLUDED.image_path`,
		id.Name,
		encodeEmbedding(id.Embedding),
		id.ImagePath,
		time.Now().UTC(),
	)
	return err
}

func (s *postgresSink) DeleteIdentity(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM known_faces WHERE name = $1`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *postgresSink) Identities(ctx context.Context) ([]model.KnownIdentity, error) {
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

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
