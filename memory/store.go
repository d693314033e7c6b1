// Package memory stores answered questions in SQLite and returns related
// ones as synthesis context. It uses modernc.org/sqlite, so no CGO is needed.
package memory

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema.sql
var schema string

// InMemory opens a database that lives only as long as the Store.
const InMemory = ":memory:"

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit is the number of matches Retrieve returns when limit <= 0.
const DefaultLimit = 2

// Record is one stored question and answer.
type Record struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides access to the memory database.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens or creates the database at path and applies the schema. Parent
// directories are created as needed. Pass InMemory for a throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("memory database path is required")
	}
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	// One connection keeps a single writer and, for InMemory, a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "memory_store"))

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("memory store ready", zap.String("path", path))
	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply memory schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores one answered question. Existing records are never modified.
func (s *Store) Save(ctx context.Context, query, answer, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, query, answer, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), query, answer, source, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// History returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) History(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT id, query, answer, source, created_at FROM memories ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.list(ctx, q, args...)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Search returns up to limit records sharing the most terms with query.
// Records with no shared term are left out and ties go to the newest.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	all, err := s.History(ctx, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   Record
		score int
		order int
	}
	var matches []scored
	for i, rec := range all {
		have := tokenize(rec.Query + " " + rec.Answer)
		score := 0
		for t := range terms {
			if _, ok := have[t]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{rec: rec, score: score, order: i})
		}
	}
	// History is newest first, so order breaks ties toward recent records.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out, nil
}

// Retrieve formats the Search results for a synthesis prompt, one
// "[Memory i]" block per record, or returns "" when nothing matches.
func (s *Store) Retrieve(ctx context.Context, query string, limit int) (string, error) {
	recs, err := s.Search(ctx, query, limit)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, r := range recs {
		fmt.Fprintf(&b, "\n[Memory %d]: Question: %s\nAnswer: %s\n", i+1, r.Query, r.Answer)
	}
	return b.String(), nil
}

// exportEntry is one line of the fine-tuning dataset.
type exportEntry struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Source      string `json:"source"`
}

// Export writes every record, oldest first, to path as JSON lines and
// describes the result. An empty store writes nothing.
func (s *Store) Export(ctx context.Context, path string) (string, error) {
	recs, err := s.list(ctx, `SELECT id, query, answer, source, created_at FROM memories ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "No data to export.", nil
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(exportEntry{Instruction: r.Query, Output: r.Answer, Source: r.Source}); err != nil {
			return "", fmt.Errorf("write export entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	s.logger.Info("memory exported", zap.Int("records", len(recs)), zap.String("path", path))
	return fmt.Sprintf("Exported %d items to %s", len(recs), path), nil
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.Query, &r.Answer, &r.Source, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			s.logger.Warn("unparseable memory timestamp", zap.String("id", r.ID), zap.String("value", created))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}

// tokenize returns the lowercase words of text that are at least two
// characters long.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) >= 2 {
			set[w] = struct{}{}
		}
	}
	return set
}
