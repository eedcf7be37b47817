// Package archive is the durable log of completed analyses: a fixed-capacity
// most-recent-first sequence, oldest entries silently evicted on overflow.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haneul/mindsketch/pkg/models"
)

// Capacity bounds the archive; Save evicts the oldest entries beyond it.
const Capacity = 20

var ErrNotFound = errors.New("archived result not found")

const schema = `
CREATE TABLE IF NOT EXISTS results (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    summary TEXT NOT NULL,
    emotional_state TEXT NOT NULL,
    advice TEXT NOT NULL,
    traits_json TEXT NOT NULL,
    insights_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

type Store struct {
	db *sql.DB
}

func NewStore() (*Store, error) {
	dbPath, err := defaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func defaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mindsketch", "history.db"), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save prepends the result and trims the archive back to Capacity, dropping
// the oldest entries first. Saving an already-present id refreshes it.
func (s *Store) Save(ctx context.Context, res *models.AnalysisResult) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("result with an id is required")
	}

	traitsJSON, err := json.Marshal(res.PersonalityTraits)
	if err != nil {
		return fmt.Errorf("failed to encode traits: %w", err)
	}
	insightsJSON, err := json.Marshal(res.KeyInsights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (id, created_at, summary, emotional_state, advice, traits_json, insights_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Date.UTC().Format(time.RFC3339Nano), res.Summary, res.EmotionalState,
		res.Advice, string(traitsJSON), string(insightsJSON))
	if err != nil {
		return err
	}

	// Insertion order (rowid) is the recency order; evict everything older
	// than the newest Capacity entries.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM results WHERE rowid NOT IN
		 (SELECT rowid FROM results ORDER BY rowid DESC LIMIT ?)`, Capacity)
	return err
}

// ListAll returns archived results, most recent first.
func (s *Store) ListAll(ctx context.Context) ([]*models.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, summary, emotional_state, advice, traits_json, insights_json
		 FROM results ORDER BY rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.AnalysisResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, summary, emotional_state, advice, traits_json, insights_json
		 FROM results WHERE id = ?`, id)

	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res, err
}

// Delete removes an entry by id. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.AnalysisResult, error) {
	res := &models.AnalysisResult{}
	var createdAt string
	var traitsJSON, insightsJSON string

	if err := row.Scan(&res.ID, &createdAt, &res.Summary, &res.EmotionalState,
		&res.Advice, &traitsJSON, &insightsJSON); err != nil {
		return nil, err
	}

	date, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored date: %w", err)
	}
	res.Date = date

	if err := json.Unmarshal([]byte(traitsJSON), &res.PersonalityTraits); err != nil {
		return nil, fmt.Errorf("failed to decode traits: %w", err)
	}
	if err := json.Unmarshal([]byte(insightsJSON), &res.KeyInsights); err != nil {
		return nil, fmt.Errorf("failed to decode insights: %w", err)
	}
	return res, nil
}
