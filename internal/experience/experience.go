// Package experience stores and retrieves coding-experience records backed
// by PostgreSQL + pgvector.
//
// Each record captures one reported coding attempt (language, framework,
// design pattern, outcome). Vectors are supplied externally by the embedding
// client, the database does no vectorization of its own, and retrieval is
// pure cosine-distance nearest neighbor, no field filtering.
package experience

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/krz-tech/agent-rag/internal/request"
)

// VectorDimension matches the configured embedding model (nomic-embed-text).
const VectorDimension = 768

// DefaultSearchLimit caps nearest-neighbor results for the tool surface.
const DefaultSearchLimit = 3

// Embedder converts text to a fixed-length vector. Satisfied by
// *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record is one immutable coding experience. Records are never updated or
// deleted once stored.
type Record struct {
	Language       string
	Framework      string
	Pattern        string
	FeatureDetails string
	InputSample    string
	CodeResult     string
	Success        bool
	ExecutionTime  float64
	FullJSON       string
}

// Match is a search hit: the stored record plus the backend-reported cosine
// distance (ascending order, smaller is closer).
type Match struct {
	Record
	Distance float64
}

// RecordFromPayload flattens a parsed request payload into a Record. The
// success flag derives strictly from the canonical result token; everything
// else defaults permissively.
func RecordFromPayload(p request.Payload) Record {
	code, _ := json.Marshal(p.Code())
	full, _ := json.Marshal(map[string]any(p))
	return Record{
		Language:       p.Language(),
		Framework:      p.Framework(),
		Pattern:        p.Pattern(),
		FeatureDetails: p.FeatureDetails(),
		InputSample:    stringify(p.InputSample()),
		CodeResult:     string(code),
		Success:        p.IsSuccess(),
		ExecutionTime:  p.ExecutionTimeMS(),
		FullJSON:       string(full),
	}
}

// EmbedText builds the string whose embedding makes a record findable:
// the fields a later query is phrased in terms of.
func (r Record) EmbedText() string {
	return fmt.Sprintf("Language: %s Framework: %s Pattern: %s Feature: %s",
		r.Language, r.Framework, r.Pattern, r.FeatureDetails)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Store manages the experiences table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// Connect opens a connection pool, verifies connectivity, and ensures the
// schema. If schema setup fails the pool is closed before the error is
// returned; Connect never leaks a handle.
func Connect(ctx context.Context, databaseURL string, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrateSchema(databaseURL, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// Add embeds the record's salient fields and inserts it, returning the
// generated id.
func (s *Store) Add(ctx context.Context, rec Record) (string, error) {
	vec, err := s.embedder.Embed(ctx, rec.EmbedText())
	if err != nil {
		return "", fmt.Errorf("embedding record: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO experiences
			(id, language, framework, pattern, input_sample, code_result,
			 success, execution_time, full_json, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, rec.Language, rec.Framework, rec.Pattern, rec.InputSample,
		rec.CodeResult, rec.Success, rec.ExecutionTime, rec.FullJSON,
		pgvector.NewVector(vec))
	if err != nil {
		return "", fmt.Errorf("inserting experience: %w", err)
	}

	s.logger.Debug("recorded experience",
		"id", id, "language", rec.Language, "pattern", rec.Pattern, "success", rec.Success)
	return id.String(), nil
}

// Search embeds queryText and returns the limit nearest records by cosine
// distance, closest first.
func (s *Store) Search(ctx context.Context, queryText string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT language, framework, pattern, input_sample, code_result,
		       success, execution_time, full_json,
		       embedding <=> $1 AS distance
		FROM experiences
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("searching experiences: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Language, &m.Framework, &m.Pattern, &m.InputSample,
			&m.CodeResult, &m.Success, &m.ExecutionTime, &m.FullJSON, &m.Distance); err != nil {
			return nil, fmt.Errorf("scanning experience row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading experience rows: %w", err)
	}
	return matches, nil
}

// Close releases the connection pool. Call at most once, from the server's
// shutdown path.
func (s *Store) Close() {
	s.pool.Close()
}
