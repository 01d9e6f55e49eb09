package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tatianab/chronicles/internal/models"
)

// SQLiteStore keeps passages in SQLite. Similarity is computed in process,
// which is fine for the few hundred passages a story carries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path, or an in-memory database for
// ":memory:".
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see a different database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS passages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			embedding BLOB
		);

		CREATE TABLE IF NOT EXISTS passage_tags (
			passage_id INTEGER NOT NULL REFERENCES passages(id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			PRIMARY KEY (passage_id, tag)
		);

		CREATE INDEX IF NOT EXISTS idx_passage_tags_tag ON passage_tags(tag);

		CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// AddPassages stores passages and their vectors in one transaction.
func (s *SQLiteStore) AddPassages(ctx context.Context, passages []models.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("got %d passages but %d vectors", len(passages), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, p := range passages {
		tags := normalizeTags(p.Tags)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO passages (title, body, tags, embedding) VALUES (?, ?, ?, ?)`,
			p.Title, p.Text, strings.Join(tags, ","), encodeVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert passage %q: %w", p.Title, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read passage id: %w", err)
		}
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO passage_tags (passage_id, tag) VALUES (?, ?)`, id, tag); err != nil {
				return fmt.Errorf("failed to tag passage %q: %w", p.Title, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit passages: %w", err)
	}
	return nil
}

type scoredPassage struct {
	passage models.Passage
	score   float32
}

// Search ranks passages by cosine similarity to vector.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, limit int, tags []string) ([]models.Passage, error) {
	query := `SELECT p.title, p.body, p.tags, p.embedding FROM passages p WHERE p.embedding IS NOT NULL`
	var args []any
	if len(tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
		query += ` AND EXISTS (SELECT 1 FROM passage_tags t WHERE t.passage_id = p.id AND t.tag IN (` + placeholders + `))`
		for _, tag := range tags {
			args = append(args, tag)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var results []scoredPassage
	for rows.Next() {
		var p models.Passage
		var tagList string
		var blob []byte
		if err := rows.Scan(&p.Title, &p.Text, &tagList, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		stored := decodeVector(blob)
		if len(stored) == 0 || len(stored) != len(vector) {
			continue
		}
		p.Tags = splitTags(tagList)
		results = append(results, scoredPassage{passage: p, score: cosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passages: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	topK := min(limit, len(results))
	passages := make([]models.Passage, 0, max(topK, 0))
	for i := range topK {
		passages = append(passages, results[i].passage)
	}
	return passages, nil
}

// Count returns the number of stored passages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Metadata returns the value stored under key, or "" when unset.
func (s *SQLiteStore) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %q: %w", key, err)
	}
	return nil
}

// Clear removes every passage and all metadata.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM passage_tags`,
		`DELETE FROM passages`,
		`DELETE FROM store_meta`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// encodeVector stores each float32 as 4 little-endian bytes.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity is in [-1, 1]; zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
