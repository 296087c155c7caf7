package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
)

// BleveStore keeps notes in a Bleve index. Tenant isolation is
// enforced at query time with a required term filter on the tenant
// field, which is indexed unanalyzed.
type BleveStore struct {
	mu    sync.RWMutex
	index bleve.Index
}

type noteDocument struct {
	Tenant    string    `json:"tenant"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenBleve opens or creates an index at path. An empty path builds an
// in-memory index, used by tests and ephemeral runs.
func OpenBleve(path string) (*BleveStore, error) {
	var index bleve.Index
	var err error

	switch {
	case path == "":
		index, err = bleve.NewMemOnly(buildNoteMapping())
	default:
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			index, err = bleve.New(path, buildNoteMapping())
		} else {
			index, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening memory index: %w", err)
	}
	return &BleveStore{index: index}, nil
}

func buildNoteMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	keywordField := bleve.NewKeywordFieldMapping()
	dateField := bleve.NewDateTimeFieldMapping()

	noteMapping := bleve.NewDocumentMapping()
	noteMapping.AddFieldMappingsAt("content", textField)
	noteMapping.AddFieldMappingsAt("tenant", keywordField)
	noteMapping.AddFieldMappingsAt("source", keywordField)
	noteMapping.AddFieldMappingsAt("tags", keywordField)
	noteMapping.AddFieldMappingsAt("created_at", dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = noteMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Save indexes a note and returns its generated ID.
func (s *BleveStore) Save(ctx context.Context, note Note) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.Tenant == "" {
		return "", fmt.Errorf("note requires a tenant")
	}

	id := note.ID
	if id == "" {
		id = uuid.New().String()
	}
	doc := noteDocument{
		Tenant:    note.Tenant,
		Content:   note.Content,
		Source:    note.Source,
		Tags:      note.Tags,
		CreatedAt: time.Now(),
	}
	if err := s.index.Index(id, doc); err != nil {
		return "", fmt.Errorf("indexing note: %w", err)
	}
	return id, nil
}

// Search runs a BM25 match query restricted to the tenant namespace.
func (s *BleveStore) Search(ctx context.Context, tenant, queryText string, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	tenantQuery := bleve.NewTermQuery(tenant)
	tenantQuery.SetField("tenant")

	var contentQuery query.Query
	if queryText == "" {
		contentQuery = bleve.NewMatchAllQuery()
	} else {
		match := bleve.NewMatchQuery(queryText)
		match.SetField("content")
		contentQuery = match
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(tenantQuery, contentQuery))
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields["content"].(string)
		source, _ := hit.Fields["source"].(string)
		results = append(results, Result{
			Note: Note{
				ID:      hit.ID,
				Tenant:  tenant,
				Content: content,
				Source:  source,
				Tags:    fieldStrings(hit.Fields["tags"]),
			},
			Score: normalizeScore(hit.Score),
		})
	}
	return results, nil
}

// Delete removes a note by ID.
func (s *BleveStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Delete(id)
}

// Close closes the underlying index.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// normalizeScore maps unbounded BM25 scores into (0, 1].
func normalizeScore(score float64) float32 {
	if score <= 1 {
		return float32(score)
	}
	return float32(1 - 1/(1+score))
}

// fieldStrings handles Bleve returning single-element keyword fields
// as a bare string.
func fieldStrings(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
