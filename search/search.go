// Package search provides full-text search over scratchpad notes.
//
// Notes are indexed as they are written so the `notes <query>` command
// can find them later without scanning every user's scratchpad file.
// Results are always scoped to one user.
package search

import (
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	verrors "github.com/daemonvigil/vigil/errors"
)

// NoteDocument is one indexed note.
type NoteDocument struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	Content   string
	CreatedAt time.Time
	Score     float64
}

// NoteIndex indexes notes per user and serves scoped queries.
type NoteIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewNoteIndex opens or creates a file-backed index at path.
func NewNoteIndex(path string) (*NoteIndex, error) {
	var index bleve.Index
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildIndexMapping())
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, verrors.StorageIO("open note index", verrors.WithCause(err))
	}
	return &NoteIndex{index: index}, nil
}

// NewMemNoteIndex creates an in-memory index. Useful for tests.
func NewMemNoteIndex() (*NoteIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, verrors.StorageIO("create note index", verrors.WithCause(err))
	}
	return &NoteIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	noteMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	noteMapping.AddFieldMappingsAt("content", textFieldMapping)
	noteMapping.AddFieldMappingsAt("user_id", keywordFieldMapping)
	noteMapping.AddFieldMappingsAt("created_at", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = noteMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Index adds one note for a user.
func (n *NoteIndex) Index(userID, content string, createdAt time.Time) error {
	if userID == "" {
		return verrors.InvalidInput("user id is required")
	}
	if content == "" {
		return verrors.InvalidInput("note content is required")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	doc := NoteDocument{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		CreatedAt: createdAt,
	}
	if err := n.index.Index(doc.ID, doc); err != nil {
		return verrors.StorageIO("index note", verrors.WithCause(err), verrors.WithUser(userID))
	}
	return nil
}

// Search returns the best-matching notes for one user.
func (n *NoteIndex) Search(userID, queryText string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	contentQuery := bleve.NewMatchQuery(queryText)
	contentQuery.SetField("content")

	userQuery := bleve.NewTermQuery(userID)
	userQuery.SetField("user_id")

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(contentQuery)
	boolQuery.AddMust(userQuery)

	searchReq := bleve.NewSearchRequest(boolQuery)
	searchReq.Size = limit
	searchReq.Fields = []string{"content", "created_at"}

	searchResult, err := n.index.Search(searchReq)
	if err != nil {
		return nil, verrors.StorageIO("search notes", verrors.WithCause(err), verrors.WithUser(userID))
	}

	var hits []Hit
	for _, hit := range searchResult.Hits {
		h := Hit{Score: hit.Score}
		if content, ok := hit.Fields["content"].(string); ok {
			h.Content = content
		}
		if raw, ok := hit.Fields["created_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				h.CreatedAt = ts
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Close closes the underlying index.
func (n *NoteIndex) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index.Close()
}
