package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"krishmitra-advisor/internal/models"
)

// Document is one retrievable passage of the advisory corpus.
type Document struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
	Date   string `json:"date,omitempty"`
	Geo    string `json:"geo,omitempty"`
	Crop   string `json:"crop,omitempty"`
}

func (d Document) toEvidence(score float64) models.Evidence {
	return models.Evidence{
		Source:  strings.TrimSpace(d.Source),
		Excerpt: d.Text,
		Date:    d.Date,
		Geo:     d.Geo,
		Crop:    d.Crop,
		Score:   score,
	}
}

// Corpus is the immutable document set shared by the vector and lexical paths.
type Corpus struct {
	docs []Document
	byID map[string]int
}

func NewCorpus(docs []Document) (*Corpus, error) {
	c := &Corpus{byID: make(map[string]int, len(docs))}
	for i, d := range docs {
		if d.ID == "" {
			d.ID = fmt.Sprintf("doc-%03d", i+1)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate document id %q", d.ID)
		}
		c.byID[d.ID] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	return c, nil
}

// LoadCorpus reads a JSON array of documents. An empty path yields the built-in seed corpus.
func LoadCorpus(path string) (*Corpus, error) {
	if strings.TrimSpace(path) == "" {
		return NewCorpus(SeedDocuments())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	return NewCorpus(docs)
}

func (c *Corpus) Documents() []Document {
	return append([]Document(nil), c.docs...)
}

func (c *Corpus) Get(id string) (Document, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Document{}, false
	}
	return c.docs[i], true
}

func (c *Corpus) Len() int { return len(c.docs) }

// SeedDocuments is the corpus used when no corpus file is configured.
func SeedDocuments() []Document {
	return []Document{
		{
			ID:     "icar-paddy-tillering",
			Source: "icar_advice_2024.pdf",
			Text:   "For paddy at tillering stage, irrigate lightly every 3-4 days depending on soil moisture.",
			Date:   "2024-09-01",
			Geo:    "Mandya",
			Crop:   "paddy",
		},
		{
			ID:     "state-cotton-npk",
			Source: "state_agri_note.pdf",
			Text:   "Apply balanced NPK for cotton; avoid over-irrigation to reduce boll rot risk.",
			Date:   "2024-08-15",
			Geo:    "Surat",
			Crop:   "cotton",
		},
		{
			ID:     "icar-wheat-crown-root",
			Source: "icar_wheat_guide.pdf",
			Text:   "Irrigate wheat at crown root initiation, about 21 days after sowing. Critical stages are CRI, tillering, jointing, flowering and grain filling.",
			Crop:   "wheat",
		},
		{
			ID:     "icar-wheat-nutrients",
			Source: "icar_wheat_guide.pdf",
			Text:   "For wheat apply nitrogen in two splits, half at sowing and half at first irrigation, based on a soil test.",
			Crop:   "wheat",
		},
		{
			ID:     "icar-rice-awd",
			Source: "icar_rice_guide.pdf",
			Text:   "Alternate wetting and drying in rice saves water; re-flood the field when water falls 15 cm below the surface.",
			Crop:   "rice",
		},
		{
			ID:     "icar-maize-knee-high",
			Source: "icar_maize_guide.pdf",
			Text:   "Maize needs irrigation at knee high, tasseling and silking stages; avoid water stress at flowering.",
			Crop:   "maize",
		},
		{
			ID:     "ipm-general",
			Source: "ipm_handbook.pdf",
			Text:   "Scout fields weekly for pests; use pheromone traps and spray only when pest counts cross the economic threshold.",
			Crop:   "all",
		},
		{
			ID:     "imd-heavy-rain",
			Source: "imd_agromet_bulletin.pdf",
			Text:   "Postpone irrigation and fertilizer application when heavy rainfall is forecast in the next 48 hours.",
			Date:   "2024-07-10",
			Crop:   "all",
		},
		{
			ID:     "agmarknet-msp-wheat",
			Source: "agmarknet_bulletin.pdf",
			Text:   "Wheat arrivals rise after harvest in April; staggered selling and storage can capture better mandi prices.",
			Date:   "2024-04-20",
			Crop:   "wheat",
		},
		{
			ID:     "pmkisan-faq",
			Source: "pmkisan_faq.pdf",
			Text:   "PM-KISAN provides Rs 6000 per year in three instalments to landholding farmer families; register on the PM-KISAN portal with Aadhaar.",
			Crop:   "all",
		},
	}
}
