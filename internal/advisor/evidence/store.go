// Package evidence retrieves supporting passages for an advisory answer. Semantic search runs
// against a pluggable vector index; an in-process BM25 index over the same corpus serves
// every request the vector path cannot.
package evidence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	commonerrors "krishmitra-advisor/internal/common/errors"
	"krishmitra-advisor/internal/common/metrics"
	"krishmitra-advisor/internal/common/observability"
	"krishmitra-advisor/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	BackendLexical = "bm25"

	defaultTieMargin = 0.02
	overFetch        = 3
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	TopK       int
	RetryDelay time.Duration
	TieMargin  float64
}

// Filters narrow results after the vector lookup. Empty fields match everything.
type Filters struct {
	Geo  string
	Crop string
	From string // YYYY-MM-DD, inclusive
	To   string // YYYY-MM-DD, inclusive
}

type Result struct {
	Evidence []models.Evidence
	Degraded bool
	Backend  string
	Cause    string
}

type Store struct {
	corpus   *Corpus
	lexical  *LexicalIndex
	vectors  VectorIndex
	embedder Embedder
	cfg      Config
	log      Logger
}

func NewStore(corpus *Corpus, vectors VectorIndex, embedder Embedder, cfg Config, log Logger) *Store {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.TieMargin <= 0 {
		cfg.TieMargin = defaultTieMargin
	}
	return &Store{
		corpus:   corpus,
		lexical:  NewLexicalIndex(corpus.Documents()),
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		log:      log,
	}
}

// Seed embeds the whole corpus and writes it to the vector index.
func (s *Store) Seed(ctx context.Context) error {
	if s.vectors == nil || s.embedder == nil {
		return nil
	}
	docs := s.corpus.Documents()
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		v, err := s.embedder.Embed(ctx, d.Text)
		if err != nil {
			return fmt.Errorf("embed %s: %w", d.ID, err)
		}
		vectors[i] = v
	}
	if err := s.vectors.Upsert(ctx, docs, vectors); err != nil {
		return fmt.Errorf("seed %s index: %w", s.vectors.Name(), err)
	}
	s.log.Debug("evidence index seeded", map[string]interface{}{
		"backend":   s.vectors.Name(),
		"documents": len(docs),
	})
	return nil
}

// Retrieve never fails. A vector outage is retried once when transient and otherwise served
// by the lexical index with Degraded set.
func (s *Store) Retrieve(ctx context.Context, text string, f Filters) (res Result) {
	ctx, span := observability.StartSpan(ctx, "evidence.retrieve",
		attribute.String("crop", f.Crop),
		attribute.Int("top_k", s.cfg.TopK),
	)
	defer func() {
		span.SetAttributes(attribute.String("backend", res.Backend), attribute.Bool("degraded", res.Degraded))
		observability.End(span, nil)
		metrics.RetrievalTotal.WithLabelValues(res.Backend, strconv.FormatBool(res.Degraded)).Inc()
	}()

	hits, err := s.semantic(ctx, text, f)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		s.log.Debug("vector search failed, retrying once", map[string]interface{}{"error": err.Error()})
		select {
		case <-time.After(s.cfg.RetryDelay):
			hits, err = s.semantic(ctx, text, f)
		case <-ctx.Done():
		}
	}
	if err != nil || s.vectors == nil {
		cause := "no vector index"
		if err != nil && s.vectors != nil {
			cause = err.Error()
			se := commonerrors.NewVectorUnavailableError(s.vectors.Name(), err)
			s.log.Warn("vector search unavailable, using lexical index", map[string]interface{}{
				"code":      string(se.Code),
				"backend":   se.Metadata["backend"],
				"transient": IsTransient(err),
				"cause":     cause,
			})
		}
		return Result{
			Evidence: s.lexicalSearch(text, f),
			Degraded: true,
			Backend:  BackendLexical,
			Cause:    cause,
		}
	}

	hits = s.applyFilters(hits, f)
	s.rerankTies(text, hits)
	return Result{Evidence: s.finalize(hits), Backend: s.vectors.Name()}
}

func (s *Store) semantic(ctx context.Context, text string, f Filters) ([]Hit, error) {
	if s.vectors == nil || s.embedder == nil {
		return nil, fmt.Errorf("vector search not configured")
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var filter Filter
	if f.Crop != "" {
		filter.Crops = []string{f.Crop}
	}
	return s.vectors.Search(ctx, vec, s.cfg.TopK*overFetch, filter)
}

// LexicalSearch runs the BM25 path directly.
func (s *Store) LexicalSearch(text string, f Filters) []models.Evidence {
	return s.lexicalSearch(text, f)
}

func (s *Store) lexicalSearch(text string, f Filters) []models.Evidence {
	hits := s.lexical.Search(text, 0)
	for i := range hits {
		hits[i].Doc, _ = s.corpus.Get(hits[i].ID)
	}
	return s.finalize(s.applyFilters(hits, f))
}

func (s *Store) applyFilters(hits []Hit, f Filters) []Hit {
	out := hits[:0:0]
	for _, h := range hits {
		if !geoMatches(h.Doc.Geo, f.Geo) {
			continue
		}
		if !cropMatches(h.Doc.Crop, f.Crop) {
			continue
		}
		if !dateInRange(h.Doc.Date, f.From, f.To) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// rerankTies reorders runs of hits whose similarity lies within TieMargin of the run head by
// their BM25 score. hits must already be sorted by similarity.
func (s *Store) rerankTies(text string, hits []Hit) {
	if len(hits) < 2 {
		return
	}
	lex := s.lexical.Scores(text)
	for start := 0; start < len(hits); {
		end := start + 1
		for end < len(hits) && hits[start].Score-hits[end].Score <= s.cfg.TieMargin {
			end++
		}
		if end-start > 1 {
			cluster := hits[start:end]
			sort.SliceStable(cluster, func(i, j int) bool {
				return lex[cluster[i].ID] > lex[cluster[j].ID]
			})
		}
		start = end
	}
}

// finalize drops hits without provenance, removes duplicate passages and caps at TopK.
func (s *Store) finalize(hits []Hit) []models.Evidence {
	out := make([]models.Evidence, 0, s.cfg.TopK)
	seen := make(map[string]bool)
	for _, h := range hits {
		if strings.TrimSpace(h.Doc.Source) == "" {
			continue
		}
		ev := h.Doc.toEvidence(h.Score)
		if seen[ev.Key()] {
			continue
		}
		seen[ev.Key()] = true
		out = append(out, ev)
		if len(out) == s.cfg.TopK {
			break
		}
	}
	return out
}

func geoMatches(docGeo, want string) bool {
	d := strings.ToLower(strings.TrimSpace(docGeo))
	w := strings.ToLower(strings.TrimSpace(want))
	if d == "" || w == "" {
		return true
	}
	return strings.Contains(d, w) || strings.Contains(w, d)
}

func cropMatches(docCrop, want string) bool {
	w := normalizeCrop(want)
	if w == "" {
		return true
	}
	d := normalizeCrop(docCrop)
	return d == "" || d == "all" || d == w
}

func dateInRange(date, from, to string) bool {
	if len(date) < 10 {
		return true
	}
	d := date[:10]
	if from != "" && d < from {
		return false
	}
	if to != "" && d > to {
		return false
	}
	return true
}
