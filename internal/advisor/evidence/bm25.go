package evidence

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var bm25Regex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

// LexicalIndex is an in-process BM25 index. It is built once and read-only afterwards.
type LexicalIndex struct {
	docFreq     map[string]int
	postings    map[string]map[string]int
	docLength   map[string]int
	totalLength int
	docCount    int
	k1          float64
	b           float64
}

func NewLexicalIndex(docs []Document) *LexicalIndex {
	idx := &LexicalIndex{
		docFreq:   make(map[string]int),
		postings:  make(map[string]map[string]int),
		docLength: make(map[string]int),
		k1:        1.6,
		b:         0.75,
	}
	for _, d := range docs {
		idx.add(d.ID, d.Text+" "+d.Crop+" "+d.Geo)
	}
	return idx
}

func (b *LexicalIndex) add(id, content string) {
	terms := tokenize(content)
	if len(terms) == 0 {
		return
	}
	b.docCount++
	b.docLength[id] = len(terms)
	b.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := b.postings[term]; !ok {
			b.postings[term] = make(map[string]int)
		}
		b.postings[term][id]++
		if _, exists := seen[term]; !exists {
			b.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

// Scores returns the BM25 score of every document matching at least one query term.
func (b *LexicalIndex) Scores(query string) map[string]float64 {
	terms := unique(tokenize(query))
	scores := make(map[string]float64)
	if len(terms) == 0 || b.docCount == 0 {
		return scores
	}
	avgLen := float64(b.totalLength) / float64(b.docCount)
	for _, term := range terms {
		postings := b.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := b.docFreq[term]
		idf := math.Log((float64(b.docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for id, tf := range postings {
			docLen := float64(b.docLength[id])
			numerator := float64(tf) * (b.k1 + 1)
			denominator := float64(tf) + b.k1*(1-b.b+b.b*(docLen/avgLen))
			scores[id] += idf * (numerator / denominator)
		}
	}
	return scores
}

// Search ranks documents by BM25. Equal scores are ordered by id so results are stable.
func (b *LexicalIndex) Search(query string, limit int) []Hit {
	scores := b.Scores(query)
	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func tokenize(content string) []string {
	return bm25Regex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
