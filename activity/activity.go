// Package activity keeps a searchable feed of orchestration events.
//
// Every event recorded is held in a bounded in-memory ring for fast recency
// queries and indexed in Bleve for full-text search across summaries. The
// index is memory-only; the feed is operational telemetry, not durable state.
package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
)

// DefaultMaxEntries bounds the recency ring.
const DefaultMaxEntries = 1000

// Entry is one recorded orchestration event.
type Entry struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures a Feed.
type Config struct {
	// MaxEntries bounds the recency ring. Default: 1000.
	MaxEntries int
}

// Feed records and searches orchestration events.
type Feed struct {
	mu      sync.RWMutex
	index   bleve.Index
	entries []*Entry
	max     int
	closed  bool
}

// NewFeed creates a feed with a memory-only search index.
func NewFeed(cfg Config) (*Feed, error) {
	max := cfg.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create activity index: %w", err)
	}

	return &Feed{
		index: index,
		max:   max,
	}, nil
}

// buildIndexMapping creates the Bleve index mapping for entries.
func buildIndexMapping() mapping.IndexMapping {
	entryMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	entryMapping.AddFieldMappingsAt("summary", textFieldMapping)
	entryMapping.AddFieldMappingsAt("topic", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("task_id", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("agent_id", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("timestamp", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = entryMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Record stores an event in the ring and the search index. A missing ID or
// timestamp is filled in. The oldest ring entry is evicted at capacity; the
// search index keeps everything recorded during the feed's lifetime.
func (f *Feed) Record(entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return "", fmt.Errorf("activity feed closed")
	}

	if err := f.index.Index(entry.ID, entry); err != nil {
		return "", fmt.Errorf("failed to index activity entry: %w", err)
	}

	f.entries = append(f.entries, &entry)
	if len(f.entries) > f.max {
		f.entries = f.entries[len(f.entries)-f.max:]
	}

	return entry.ID, nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything retained in the ring.
func (f *Feed) Recent(limit int) []*Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		e := *f.entries[i]
		out = append(out, &e)
	}
	return out
}

// Search runs a full-text query over summaries, optionally filtered to a
// topic, and returns matching entries by relevance.
func (f *Feed) Search(queryText, topic string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(queryText)
	matchQuery.SetField("summary")

	var searchReq *bleve.SearchRequest
	if topic != "" {
		topicQuery := bleve.NewTermQuery(topic)
		topicQuery.SetField("topic")

		boolQuery := bleve.NewBooleanQuery()
		boolQuery.AddMust(matchQuery)
		boolQuery.AddMust(topicQuery)
		searchReq = bleve.NewSearchRequest(boolQuery)
	} else {
		searchReq = bleve.NewSearchRequest(matchQuery)
	}
	searchReq.Size = limit
	searchReq.Fields = []string{"summary", "topic", "task_id", "agent_id"}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("activity feed closed")
	}

	result, err := f.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("activity search failed: %w", err)
	}

	entries := make([]*Entry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		entry := &Entry{ID: hit.ID}
		if v, ok := hit.Fields["summary"].(string); ok {
			entry.Summary = v
		}
		if v, ok := hit.Fields["topic"].(string); ok {
			entry.Topic = v
		}
		if v, ok := hit.Fields["task_id"].(string); ok {
			entry.TaskID = v
		}
		if v, ok := hit.Fields["agent_id"].(string); ok {
			entry.AgentID = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Len returns the number of entries retained in the ring.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Close releases the search index.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.index.Close()
}
