package chromemdb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"rag-playground/internal/helper"
	"rag-playground/internal/models"
)

const (
	compress = false
	seqKey   = "seq"
)

// VectorDBManager stores chunks in a chromem-go collection.
//
// chromem ranks by cosine similarity over normalized vectors. Search reports
// the Euclidean distance between those normalized vectors instead, which is
// sqrt(2 - 2*similarity), so results read the same as the Postgres backend
// for unit-length embeddings.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
}

// NewVectorDBManager opens (or creates) the persistent database at dbPath,
// or an in-memory one when inMemory is set, and the named collection in it.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool) (*VectorDBManager, error) {
	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(dbPath); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	// embeddings always come from the LLM client, so no embedding func
	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	log.Debug().Str("path", dbPath).Bool("in_memory", inMemory).Str("collection", collectionName).Int("documents", c.Count()).Msg("Opened vector database")

	return &VectorDBManager{
		db:         db,
		collection: c,
		dbPath:     dbPath,
	}, nil
}

// Insert adds one document. Persistent databases write it to disk before
// returning.
func (m *VectorDBManager) Insert(ctx context.Context, content string, embedding []float32) error {
	id, err := helper.GenerateUUID()
	if err != nil {
		return &models.StoreError{Op: "insert", Err: err}
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  map[string]string{seqKey: strconv.Itoa(m.Count())},
		Embedding: embedding,
	}
	if err := m.collection.AddDocument(ctx, doc); err != nil {
		return &models.StoreError{Op: "insert", Err: err}
	}
	return nil
}

// Search returns the limit documents nearest to embedding. Equal distances
// keep insertion order.
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		return nil, models.ErrInvalidLimit
	}

	// chromem's top-k is arbitrary among equal scores; rank all, then cut
	count := m.Count()
	if count == 0 {
		return []models.SearchResult{}, nil
	}

	res, err := m.collection.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, &models.StoreError{Op: "search", Err: err}
	}

	type ranked struct {
		models.SearchResult
		seq int
	}
	rs := make([]ranked, len(res))
	for i, r := range res {
		seq, _ := strconv.Atoi(r.Metadata[seqKey])
		rs[i] = ranked{
			SearchResult: models.SearchResult{Content: r.Content, Distance: distance(r.Similarity)},
			seq:          seq,
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Distance != rs[j].Distance {
			return rs[i].Distance < rs[j].Distance
		}
		return rs[i].seq < rs[j].seq
	})

	rs = rs[:min(limit, len(rs))]

	results := make([]models.SearchResult, len(rs))
	for i, r := range rs {
		results[i] = r.SearchResult
	}
	return results, nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Close is a no-op; chromem has nothing to release.
func (m *VectorDBManager) Close() error {
	return nil
}

// distance converts cosine similarity of unit vectors to Euclidean distance.
func distance(similarity float32) float64 {
	d := 2 - 2*float64(similarity)
	if d <= 0 {
		return 0
	}
	return math.Sqrt(d)
}
