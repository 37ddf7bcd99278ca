package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticIndex runs approximate kNN search against a dense_vector field.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

func NewElasticIndex(client *elasticsearch.Client, index string, dims int) *ElasticIndex {
	return &ElasticIndex{client: client, index: index, dims: dims}
}

func (e *ElasticIndex) Name() string { return "elasticsearch" }

type esDocument struct {
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Date      string    `json:"date,omitempty"`
	Geo       string    `json:"geo,omitempty"`
	Crop      string    `json:"crop,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// EnsureIndex creates the index with a cosine dense_vector mapping when it does not exist.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	exists := esapi.IndicesExistsRequest{Index: []string{e.index}}
	res, err := exists.Do(ctx, e.client)
	if err != nil {
		return classifyESError(fmt.Errorf("check index: %w", err), 0)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"source":  map[string]interface{}{"type": "keyword"},
				"content": map[string]interface{}{"type": "text"},
				"date":    map[string]interface{}{"type": "keyword"},
				"geo":     map[string]interface{}{"type": "keyword"},
				"crop":    map[string]interface{}{"type": "keyword"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       e.dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	create := esapi.IndicesCreateRequest{Index: e.index, Body: bytes.NewReader(body)}
	res, err = create.Do(ctx, e.client)
	if err != nil {
		return classifyESError(fmt.Errorf("create index: %w", err), 0)
	}
	defer res.Body.Close()
	if res.IsError() {
		return classifyESError(fmt.Errorf("create index failed: %s", res.String()), res.StatusCode)
	}
	return nil
}

func (e *ElasticIndex) Upsert(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return ErrDimensionMismatch
	}
	for i, d := range docs {
		body, err := json.Marshal(esDocument{
			Source: d.Source, Content: d.Text, Date: d.Date, Geo: d.Geo, Crop: normalizeCrop(d.Crop),
			Embedding: vectors[i],
		})
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      e.index,
			DocumentID: d.ID,
			Body:       bytes.NewReader(body),
			Refresh:    "false",
		}
		res, err := req.Do(ctx, e.client)
		if err != nil {
			return classifyESError(fmt.Errorf("index %s: %w", d.ID, err), 0)
		}
		status, isErr, text := res.StatusCode, res.IsError(), res.String()
		res.Body.Close()
		if isErr {
			return classifyESError(fmt.Errorf("index %s failed: %s", d.ID, text), status)
		}
	}

	refresh := esapi.IndicesRefreshRequest{Index: []string{e.index}}
	res, err := refresh.Do(ctx, e.client)
	if err != nil {
		return classifyESError(fmt.Errorf("refresh index: %w", err), 0)
	}
	res.Body.Close()
	return nil
}

func (e *ElasticIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if len(vector) != e.dims {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 10
	}

	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 4,
	}
	if crops := expandCrops(filter.Crops); len(crops) > 0 {
		knn["filter"] = map[string]interface{}{
			"terms": map[string]interface{}{"crop": append(crops, "all", "")},
		}
	}
	query := map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": []string{"source", "content", "date", "geo", "crop"},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, classifyESError(fmt.Errorf("knn search: %w", err), 0)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, classifyESError(fmt.Errorf("knn search failed: %s", res.String()), res.StatusCode)
	}

	var r esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode knn response: %w", err)
	}

	hits := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		hits = append(hits, Hit{
			ID: h.ID,
			// cosine similarity is reported as (1 + cos) / 2
			Score: 2*h.Score - 1,
			Doc: Document{
				ID: h.ID, Source: h.Source.Source, Text: h.Source.Content,
				Date: h.Source.Date, Geo: h.Source.Geo, Crop: h.Source.Crop,
			},
		})
	}
	return hits, nil
}

// classifyESError treats transport failures, throttling and 5xx as transient.
func classifyESError(err error, status int) error {
	if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
		return Transient(err)
	}
	return err
}
