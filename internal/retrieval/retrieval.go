// Package retrieval provides per-session snippet indices backed by Bleve.
package retrieval

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
)

// snippetDocument is the indexed form of one snippet.
type snippetDocument struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// Index holds searchable text snippets for one session. Queries return the
// best-matching snippet; with no match, the first snippet serves as default.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]string
	first string
}

// New builds an in-memory index over the given snippets.
func New(snippets []string) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create snippet index: %w", err)
	}

	idx := &Index{
		index: index,
		docs:  make(map[string]string, len(snippets)),
	}

	for i, text := range snippets {
		if strings.TrimSpace(text) == "" {
			continue
		}
		id := uuid.New().String()
		doc := snippetDocument{
			ID:       id,
			Text:     text,
			Keywords: extractKeywords(text),
		}
		if err := index.Index(id, doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to index snippet: %w", err)
		}
		idx.docs[id] = text
		if i == 0 {
			idx.first = text
		}
	}

	return idx, nil
}

// buildIndexMapping creates the Bleve index mapping for snippets.
func buildIndexMapping() mapping.IndexMapping {
	snippetMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	snippetMapping.AddFieldMappingsAt("text", textFieldMapping)
	snippetMapping.AddFieldMappingsAt("keywords", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = snippetMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Retrieve returns the snippet that best matches the query. An empty index
// returns "", a query with no hits returns the first snippet.
func (idx *Index) Retrieve(queryText string) (string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return "", nil
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(queryText))
	searchReq.Size = 1

	searchResult, err := idx.index.Search(searchReq)
	if err != nil {
		return "", fmt.Errorf("snippet search failed: %w", err)
	}

	if len(searchResult.Hits) == 0 {
		return idx.first, nil
	}
	return idx.docs[searchResult.Hits[0].ID], nil
}

// Close releases the underlying index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.index.Close()
}

// extractKeywords extracts keywords from text (simple tokenization).
func extractKeywords(text string) []string {
	text = strings.ToLower(text)

	for _, p := range []string{".", ",", "!", "?", ":", ";", "(", ")", "[", "]", "{", "}", "\"", "'", "-", "_", "/", "\\"} {
		text = strings.ReplaceAll(text, p, " ")
	}

	words := strings.Fields(text)
	var keywords []string

	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
		"are": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
		"will": true, "would": true, "could": true, "should": true, "may": true,
		"might": true, "must": true, "can": true, "this": true, "that": true,
		"these": true, "those": true, "it": true, "its": true,
	}

	seen := make(map[string]bool)
	for _, word := range words {
		if len(word) < 3 {
			continue
		}
		if stopWords[word] {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}

	return keywords
}
