package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
	"github.com/GD25Workhome/gd25-biz-agent/pkg/observability"
)

// Service adapts the retriever to the graph's retrieval nodes. It owns
// the degrade policy: any failure along embed → search → format yields
// the fallback string instead of an error, so retrieval never aborts a
// turn.
type Service struct {
	retriever *Retriever
}

// NewService wraps a retriever for use by retrieval nodes.
func NewService(retriever *Retriever) *Service {
	return &Service{retriever: retriever}
}

// RetrieveFormatted runs the search configured on the node and formats
// the outcome for prompt injection.
func (s *Service) RetrieveFormatted(ctx context.Context, queryText string, keywords []string, cfg *flow.RetrievalNodeConfig) string {
	if s.retriever == nil {
		return NoExamples
	}

	var tables []string
	topK, minResults := 0, 0
	if cfg != nil {
		tables = cfg.Tables
		topK = cfg.TopK
		minResults = cfg.MinResults
	}

	start := time.Now()
	results, err := s.retriever.Search(ctx, queryText, keywords, tables, topK, minResults)
	observability.RetrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("Retrieval failed, degrading to fallback", "error", err)
		return NoExamples
	}

	return FormatRetrievedExamples(results)
}
