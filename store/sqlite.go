// Package store provides SQLite-backed persistence for evicted chunks.
package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/substrate/world"
)

// SQLite stores chunk snapshots as zstd-compressed float64 blobs keyed by
// world id and chunk coordinates. It satisfies world.Store.
type SQLite struct {
	conn    *sqlx.DB
	worldID string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at path. An empty worldID gets a fresh
// random id, so separate runs do not read each other's chunks.
func Open(path, worldID string) (*SQLite, error) {
	if worldID == "" {
		worldID = uuid.NewString()
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &SQLite{conn: conn, worldID: worldID, enc: enc, dec: dec}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// WorldID returns the id chunks are stored under.
func (s *SQLite) WorldID() string { return s.worldID }

// Close releases the database and codecs.
func (s *SQLite) Close() error {
	s.dec.Close()
	encErr := s.enc.Close()
	if err := s.conn.Close(); err != nil {
		return err
	}
	return encErr
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		world_id TEXT NOT NULL,
		cx INTEGER NOT NULL,
		cy INTEGER NOT NULL,
		side INTEGER NOT NULL,
		quantities INTEGER NOT NULL,
		data BLOB NOT NULL,
		saved_at INTEGER NOT NULL,
		PRIMARY KEY (world_id, cx, cy)
	);`
	_, err := s.conn.Exec(schema)
	return err
}

type chunkRow struct {
	Side       int    `db:"side"`
	Quantities int    `db:"quantities"`
	Data       []byte `db:"data"`
}

// Save writes a snapshot, replacing any earlier one for the same chunk.
func (s *SQLite) Save(snap world.Snapshot) error {
	raw := encodeFields(snap)
	blob := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	_, err := s.conn.Exec(`INSERT OR REPLACE INTO chunks
		(world_id, cx, cy, side, quantities, data, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.worldID, snap.Key.CX, snap.Key.CY, snap.Side, int(world.NumQuantities), blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", snap.Key, err)
	}

	slog.Debug("chunk saved",
		"chunk", snap.Key.String(),
		"raw", humanize.Bytes(uint64(len(raw))),
		"stored", humanize.Bytes(uint64(len(blob))),
	)
	return nil
}

// Load returns the stored snapshot for key.
func (s *SQLite) Load(key world.Key) (world.Snapshot, bool, error) {
	var row chunkRow
	err := s.conn.Get(&row,
		`SELECT side, quantities, data FROM chunks WHERE world_id = ? AND cx = ? AND cy = ?`,
		s.worldID, key.CX, key.CY)
	if errors.Is(err, sql.ErrNoRows) {
		return world.Snapshot{}, false, nil
	}
	if err != nil {
		return world.Snapshot{}, false, fmt.Errorf("load chunk %s: %w", key, err)
	}

	raw, err := s.dec.DecodeAll(row.Data, nil)
	if err != nil {
		return world.Snapshot{}, false, fmt.Errorf("decompress chunk %s: %w", key, err)
	}
	snap, err := decodeFields(key, row.Side, row.Quantities, raw)
	if err != nil {
		return world.Snapshot{}, false, fmt.Errorf("decode chunk %s: %w", key, err)
	}
	return snap, true, nil
}

// Count returns the number of chunks stored for this world.
func (s *SQLite) Count() (int, error) {
	var n int
	if err := s.conn.Get(&n, `SELECT COUNT(*) FROM chunks WHERE world_id = ?`, s.worldID); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// encodeFields lays the quantities out back to back as little-endian float64.
func encodeFields(snap world.Snapshot) []byte {
	cells := snap.Side * snap.Side
	buf := make([]byte, 0, int(world.NumQuantities)*cells*8)
	for _, q := range world.Quantities {
		vals := snap.Fields[q]
		for i := 0; i < cells; i++ {
			var v float64
			if i < len(vals) {
				v = vals[i]
			}
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf
}

func decodeFields(key world.Key, side, quantities int, raw []byte) (world.Snapshot, error) {
	cells := side * side
	if len(raw) != quantities*cells*8 {
		return world.Snapshot{}, fmt.Errorf("blob is %d bytes, want %d", len(raw), quantities*cells*8)
	}
	snap := world.Snapshot{Key: key, Side: side}
	for qi := 0; qi < quantities && qi < int(world.NumQuantities); qi++ {
		vals := make([]float64, cells)
		off := qi * cells * 8
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off+i*8:]))
		}
		snap.Fields[qi] = vals
	}
	return snap, nil
}
