// Package vectorstore provides best-effort semantic storage and retrieval
// of question text, backed by PostgreSQL + pgvector.
//
// The store never returns errors to callers: similarity retrieval is an
// enrichment, not a dependency, so failures degrade to an empty result set
// (search) or a fallback identifier (store). Callers that need to know
// whether indexing succeeded can inspect the returned ID prefix.
package vectorstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorDimension is the embedding dimensionality used by the
// question_embeddings schema. Gemini embeddings are truncated to this size
// via OutputDimensionality.
const VectorDimension int32 = 768

// FallbackIDPrefix marks identifiers returned when storage failed.
const FallbackIDPrefix = "fallback-"

// Embedder generates vector embeddings for text. Implemented by llm.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is a single similarity search hit.
type Result struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Store manages question embeddings.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a vector Store.
func NewStore(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errNilPool
	}
	if embedder == nil {
		return nil, errNilEmbedder
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// StoreEmbedding embeds text and upserts it with its metadata. id is
// optional; non-UUID values are replaced with a fresh UUID so the primary
// key stays uniform.
//
// StoreEmbedding never fails: on any internal error it logs and returns a
// fallback-prefixed identifier, and the caller continues.
func (s *Store) StoreEmbedding(ctx context.Context, text string, metadata map[string]any, id string) string {
	pointID := normalizeID(id)

	vec := s.embedOrZero(ctx, text)

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Error("failed to marshal embedding metadata", "error", err)
		return fallbackID(id)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO question_embeddings (id, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     metadata = EXCLUDED.metadata`,
		pointID, text, vec, metadataJSON)
	if err != nil {
		s.logger.Error("failed to store embedding", "error", err, "id", pointID)
		return fallbackID(id)
	}

	s.logger.Debug("stored embedding", "id", pointID, "content_length", len(text))
	return pointID.String()
}

// SearchSimilar returns up to limit results semantically similar to query,
// restricted to rows whose metadata contains every filter entry. Results
// are ordered by descending cosine similarity.
//
// SearchSimilar never fails: on any internal error it logs and returns an
// empty result set.
func (s *Store) SearchSimilar(ctx context.Context, query string, filter map[string]any, limit int) []Result {
	if limit <= 0 {
		limit = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("failed to embed search query", "error", err)
		return []Result{}
	}
	vec := pgvector.NewVector(embedding)

	if filter == nil {
		filter = map[string]any{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		s.logger.Error("failed to marshal search filter", "error", err)
		return []Result{}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, metadata, 1 - (embedding <=> $1) AS score
		 FROM question_embeddings
		 WHERE metadata @> $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, filterJSON, limit)
	if err != nil {
		s.logger.Error("similarity search failed", "error", err)
		return []Result{}
	}
	defer rows.Close()

	results := make([]Result, 0, limit)
	for rows.Next() {
		var (
			resultID    uuid.UUID
			payloadJSON []byte
			score       float32
		)
		if err := rows.Scan(&resultID, &payloadJSON, &score); err != nil {
			s.logger.Error("failed to scan search result", "error", err)
			return []Result{}
		}

		var payload map[string]any
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &payload); err != nil {
				s.logger.Warn("skipping result with malformed metadata",
					"id", resultID, "error", err)
				continue
			}
		}

		results = append(results, Result{
			ID:      resultID.String(),
			Score:   score,
			Payload: payload,
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("similarity search failed", "error", err)
		return []Result{}
	}

	s.logger.Debug("similarity search", "hits", len(results), "limit", limit)
	return results
}

// embedOrZero embeds text, degrading to a zero vector on failure so that
// storage still succeeds and the row remains retrievable by metadata.
func (s *Store) embedOrZero(ctx context.Context, text string) pgvector.Vector {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil || len(embedding) == 0 {
		s.logger.Error("failed to embed text, storing zero vector", "error", err)
		return pgvector.NewVector(make([]float32, VectorDimension))
	}
	return pgvector.NewVector(embedding)
}

// normalizeID parses id as a UUID, generating a new one when id is empty
// or not UUID-shaped.
func normalizeID(id string) uuid.UUID {
	if id == "" {
		return uuid.New()
	}
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.New()
	}
	return parsed
}

// fallbackID builds the identifier returned when storage failed.
func fallbackID(id string) string {
	if id != "" {
		return id
	}
	return FallbackIDPrefix + uuid.NewString()
}
