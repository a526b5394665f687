package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"time"

	"facewatch/internal/config"
	"facewatch/internal/model"
)

// Sink is the durable store behind the pipeline: fired alert events and the
// persisted mirror of the known-face gallery.
type Sink interface {
	Init(ctx context.Context) error
	Close() error
	LogEvent(ctx context.Context, ev model.AlertEvent) (int64, error)
	Events(ctx context.Context, filter EventFilter) ([]model.AlertEvent, error)
	SaveIdentity(ctx context.Context, id model.KnownIdentity) error
	DeleteIdentity(ctx context.Context, name string) (bool, error)
	Identities(ctx context.Context) ([]model.KnownIdentity, error)
}

// EventFilter narrows an Events query. Zero fields are ignored.
type EventFilter struct {
	CameraID *int
	Label    string
	Start    time.Time
	End      time.Time
	Limit    int
}

func NewSink(cfg config.StorageConfig) (Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseSink struct {
	db *sql.DB
}

func (b *baseSink) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Embeddings are stored as little-endian float32 blobs.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
