// Package store is the compile cache: encoded module payloads indexed by
// the SHA-256 of the source text they were compiled from, persisted in
// SQLite with an in-memory index in front.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound indicates no payload is cached for the requested hash.
var ErrNotFound = errors.New("payload not found")

const schema = `
CREATE TABLE IF NOT EXISTS payloads (
	hash       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a content-addressed cache of encoded payloads. All methods are
// safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	path       string
	generation string
	index      map[[32]byte][]byte
}

// Open opens (or creates) a cache database at the given path and loads its
// index into memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		db:    db,
		path:  path,
		index: make(map[[32]byte][]byte),
	}

	if err := s.loadGeneration(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadGeneration reads the generation stamp, creating one on first open.
// The stamp is rewritten by Purge so readers holding results from an
// earlier generation can detect invalidation.
func (s *Store) loadGeneration() error {
	row := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'generation'`)
	switch err := row.Scan(&s.generation); {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		s.generation = uuid.NewString()
		if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('generation', ?)`, s.generation); err != nil {
			return fmt.Errorf("writing generation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("reading generation: %w", err)
	}
}

func (s *Store) loadIndex() error {
	rows, err := s.db.Query(`SELECT hash, payload FROM payloads`)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hexHash string
		var payload []byte
		if err := rows.Scan(&hexHash, &payload); err != nil {
			return fmt.Errorf("scanning payload row: %w", err)
		}
		raw, err := hex.DecodeString(hexHash)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("malformed hash %q in database", hexHash)
		}
		var key [32]byte
		copy(key[:], raw)
		s.index[key] = payload
	}
	return rows.Err()
}

// SourceHash returns the cache key for a source text.
func SourceHash(source []byte) [32]byte {
	return sha256.Sum256(source)
}

// Put caches the payload for a source text, replacing any prior entry.
// Returns the cache key.
func (s *Store) Put(source, payload []byte) ([32]byte, error) {
	key := SourceHash(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO payloads (hash, payload, created_at) VALUES (?, ?, ?)`,
		hex.EncodeToString(key[:]), payload, time.Now().Unix(),
	)
	if err != nil {
		return key, fmt.Errorf("storing payload: %w", err)
	}
	s.index[key] = append([]byte(nil), payload...)
	return key, nil
}

// Get returns the payload for a cache key. The returned slice is a copy.
func (s *Store) Get(key [32]byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hex.EncodeToString(key[:8]))
	}
	return append([]byte(nil), payload...), nil
}

// Lookup returns the cached payload for a source text, if any.
func (s *Store) Lookup(source []byte) ([]byte, error) {
	return s.Get(SourceHash(source))
}

// Generation returns the current generation stamp.
func (s *Store) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Len returns the number of cached payloads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Purge drops every cached payload and installs a fresh generation stamp.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM payloads`); err != nil {
		return fmt.Errorf("purging payloads: %w", err)
	}
	gen := uuid.NewString()
	if _, err := s.db.Exec(`UPDATE meta SET value = ? WHERE key = 'generation'`, gen); err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	s.generation = gen
	s.index = make(map[[32]byte][]byte)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
