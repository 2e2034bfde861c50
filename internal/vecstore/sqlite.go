package vecstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// sqliteBackend stores the payload in a SQLite database. It keeps the same
// logical format as the JSON file backend: a meta row carrying the format
// version and dimension, plus one row per record.
type sqliteBackend struct {
	db   *sql.DB
	path string
}

func newSQLiteBackend(path string) (*sqliteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &sqliteBackend{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *sqliteBackend) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS store_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			dimension INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			metadata TEXT
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *sqliteBackend) Load() (*storePayload, error) {
	payload := &storePayload{}
	err := s.db.QueryRow("SELECT version, dimension FROM store_meta WHERE id = 1").
		Scan(&payload.Version, &payload.Dimension)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store meta: %w", err)
	}

	rows, err := s.db.Query("SELECT id, embedding, content, metadata FROM records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec recordPayload
		var blob []byte
		var metadata sql.NullString
		if err := rows.Scan(&rec.ID, &blob, &rec.Content, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrCorruptStore, rec.ID, err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("%w: record %s metadata: %v", ErrCorruptStore, rec.ID, err)
			}
		}
		payload.Records = append(payload.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return payload, nil
}

func (s *sqliteBackend) Save(payload *storePayload) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO store_meta (id, version, dimension) VALUES (1, ?, ?)",
		payload.Version, payload.Dimension,
	); err != nil {
		return fmt.Errorf("failed to write store meta: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO records (id, embedding, content, metadata) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range payload.Records {
		var metadata any
		if len(rec.Metadata) > 0 {
			data, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
			}
			metadata = string(data)
		}
		if _, err := stmt.Exec(rec.ID, encodeEmbedding(rec.Embedding), rec.Content, metadata); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

func (s *sqliteBackend) Close() error {
	return s.db.Close()
}

// encodeEmbedding serializes a vector as little-endian float64 bytes.
func encodeEmbedding(embedding []float64) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 8", len(data))
	}
	embedding := make([]float64, len(data)/8)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return embedding, nil
}
