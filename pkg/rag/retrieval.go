package rag

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// Example tables searched by default (without the prefix).
var defaultTables = []string{
	"qa_examples",
	"record_examples",
	"query_examples",
	"greeting_examples",
}

// tablePrefix namespaces the example tables in the vector database.
const tablePrefix = "gd2502_"

// Retrieval limits.
const (
	topKPerTable      = 5
	defaultTopK       = 15
	defaultMinResults = 5
)

// fallbackThresholds are tried in order until the merged result set
// reaches the minimum size.
var fallbackThresholds = []float64{0.7, 0.6, 0.5}

// RetrievedExample is one exemplar pulled from the vector store.
// Similarity is cosine similarity (1 − cosine distance), in [0, 1].
type RetrievedExample struct {
	ID            int64    `json:"id"`
	UserInput     string   `json:"user_input"`
	AgentResponse string   `json:"agent_response"`
	Tags          []string `json:"tags"`
	QualityGrade  string   `json:"quality_grade,omitempty"`
	Similarity    float64  `json:"similarity"`
	Source        string   `json:"source"` // table name without prefix
}

// Retriever performs multi-table cosine-similarity search over the
// pgvector example tables.
type Retriever struct {
	db       *sql.DB
	embedder EmbedderProvider
}

// NewRetriever creates a retriever over the vector database connection.
func NewRetriever(db *sql.DB, embedder EmbedderProvider) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// Search embeds the query (optionally enhanced with keywords), runs the
// threshold-fallback multi-table search and returns the merged results,
// sorted by descending similarity and truncated to topK.
func (r *Retriever) Search(ctx context.Context, queryText string, keywords []string, tables []string, topK, minResults int) ([]RetrievedExample, error) {
	if strings.TrimSpace(queryText) == "" {
		slog.Warn("Empty retrieval query")
		return nil, nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if minResults <= 0 {
		minResults = defaultMinResults
	}
	if len(tables) == 0 {
		tables = defaultTables
	}

	enhanced := queryText
	if len(keywords) > 0 {
		enhanced = queryText + " " + strings.Join(keywords, " ")
	}

	vector, err := r.embedder.Embed(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := r.searchWithFallback(ctx, vector, tables, minResults)

	if len(results) > topK {
		results = results[:topK]
	}

	slog.Info("Vector search completed", "query_length", len(queryText), "results", len(results))
	return results, nil
}

// searchWithFallback lowers the similarity threshold step by step until
// the merged result set is large enough; the last threshold's results are
// returned even when underfilled.
func (r *Retriever) searchWithFallback(ctx context.Context, vector []float32, tables []string, minResults int) []RetrievedExample {
	var results []RetrievedExample
	for _, threshold := range fallbackThresholds {
		results = r.multiTableSearch(ctx, vector, tables, threshold)
		if len(results) >= minResults {
			slog.Debug("Retrieval threshold satisfied", "threshold", threshold, "results", len(results))
			return results
		}
	}
	slog.Warn("Retrieval underfilled at lowest threshold", "results", len(results), "min_results", minResults)
	return results
}

// multiTableSearch queries every table, merges and sorts by descending
// similarity. A failing table logs and contributes nothing.
func (r *Retriever) multiTableSearch(ctx context.Context, vector []float32, tables []string, threshold float64) []RetrievedExample {
	var merged []RetrievedExample
	for _, table := range tables {
		results, err := r.searchInTable(ctx, table, vector, topKPerTable, threshold)
		if err != nil {
			slog.Error("Table search failed", "table", table, "error", err)
			continue
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged
}

// searchInTable runs the cosine-similarity query against one table.
func (r *Retriever) searchInTable(ctx context.Context, table string, vector []float32, topK int, threshold float64) ([]RetrievedExample, error) {
	vectorLit := vectorLiteral(vector)

	// The <=> operator is pgvector cosine distance; similarity = 1 − distance.
	query := fmt.Sprintf(`
		SELECT
			id,
			user_input,
			agent_response,
			tags,
			COALESCE(quality_grade, ''),
			1 - (embedding <=> $1::vector) AS similarity
		FROM %s%s
		WHERE 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`, tablePrefix, table)

	rows, err := r.db.QueryContext(ctx, query, vectorLit, threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievedExample
	for rows.Next() {
		example := RetrievedExample{Source: table}
		var tags pq.StringArray
		if err := rows.Scan(&example.ID, &example.UserInput, &example.AgentResponse,
			&tags, &example.QualityGrade, &example.Similarity); err != nil {
			return nil, err
		}
		example.Tags = []string(tags)
		results = append(results, example)
	}
	return results, rows.Err()
}

// vectorLiteral renders a vector in pgvector's input format.
func vectorLiteral(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
