// Package store persists the document index in a single BoltDB file:
// document records, chunk records, and their embedding vectors. Vectors
// are additionally cached in memory for brute-force cosine search, the
// same layout the index is queried with.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
)

var (
	bucketDocs    = []byte("documents")
	bucketChunks  = []byte("chunks")
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// BoltIndex implements port.Index on BoltDB. Writes are serialized by
// the database; the in-memory vector cache is guarded so searches can
// run concurrently with writes.
type BoltIndex struct {
	db *bbolt.DB

	mu        sync.RWMutex
	dimension int
	vectors   map[string]vectorEntry
	// pending holds documents registered but not yet marked ready;
	// their chunks are invisible to retrieval until MarkReady.
	pending map[string]bool
}

type vectorEntry struct {
	docID  string
	seq    int
	vector []float32
}

type docRecord struct {
	Name       string `json:"name"`
	PageCount  int    `json:"page_count"`
	Ready      bool   `json:"ready"`
	IngestedAt int64  `json:"ingested_at"`
}

type chunkRecord struct {
	DocID       string `json:"doc_id"`
	Seq         int    `json:"seq"`
	Text        string `json:"text"`
	StartPage   int    `json:"start_page"`
	EndPage     int    `json:"end_page"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

type storedVector struct {
	DocID  string    `json:"doc_id"`
	Seq    int       `json:"seq"`
	Vector []float32 `json:"v"`
}

// NewBoltIndex opens (or creates) the index at path. Unreadable state is
// reported as domain.ErrIndexCorrupt; the index never silently starts
// empty over an existing file.
func NewBoltIndex(path string) (*BoltIndex, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		if existed {
			return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
		}
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketChunks, bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &BoltIndex{
		db:      db,
		vectors: make(map[string]vectorEntry),
		pending: make(map[string]bool),
	}
	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// load reads persisted vectors into the cache, validating as it goes.
func (s *BoltIndex) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if dim := tx.Bucket(bucketMeta).Get(keyDimension); dim != nil {
			var d int
			if err := json.Unmarshal(dim, &d); err != nil || d <= 0 {
				return fmt.Errorf("%w: bad dimension record", domain.ErrIndexCorrupt)
			}
			s.dimension = d
		}

		err := tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var rec docRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: unreadable document %s", domain.ErrIndexCorrupt, k)
			}
			if !rec.Ready {
				s.pending[string(k)] = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("%w: unreadable vector for chunk %s", domain.ErrIndexCorrupt, k)
			}
			if s.dimension == 0 || len(stored.Vector) != s.dimension {
				return fmt.Errorf("%w: vector for chunk %s has dimension %d, index has %d",
					domain.ErrIndexCorrupt, k, len(stored.Vector), s.dimension)
			}
			s.vectors[string(k)] = vectorEntry{
				docID:  stored.DocID,
				seq:    stored.Seq,
				vector: stored.Vector,
			}
			return nil
		})
	})
}

func (s *BoltIndex) PutDocument(id, name string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec := docRecord{
			Name:       name,
			PageCount:  pageCount,
			Ready:      false,
			IngestedAt: time.Now().Unix(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(id), data)
	})
	if err != nil {
		return err
	}

	s.pending[id] = true
	return nil
}

func (s *BoltIndex) MarkReady(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		var rec docRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.Ready = true
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
	if err != nil {
		return err
	}

	delete(s.pending, id)
	return nil
}

func (s *BoltIndex) Upsert(chunk domain.Chunk, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension > 0 && len(vector) != s.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for chunk %s", chunk.ID)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if s.dimension == 0 {
			dim, err := json.Marshal(len(vector))
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketMeta).Put(keyDimension, dim); err != nil {
				return err
			}
		}

		chunkData, err := json.Marshal(chunkRecord{
			DocID:       chunk.DocID,
			Seq:         chunk.Seq,
			Text:        chunk.Text,
			StartPage:   chunk.StartPage,
			EndPage:     chunk.EndPage,
			StartOffset: chunk.StartOffset,
			EndOffset:   chunk.EndOffset,
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketChunks).Put([]byte(chunk.ID), chunkData); err != nil {
			return err
		}

		vecData, err := json.Marshal(storedVector{
			DocID:  chunk.DocID,
			Seq:    chunk.Seq,
			Vector: vector,
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVectors).Put([]byte(chunk.ID), vecData)
	})
	if err != nil {
		return err
	}

	if s.dimension == 0 {
		s.dimension = len(vector)
	}
	s.vectors[chunk.ID] = vectorEntry{
		docID:  chunk.DocID,
		seq:    chunk.Seq,
		vector: vector,
	}
	return nil
}

func (s *BoltIndex) DeleteDocument(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		vectors := tx.Bucket(bucketVectors)

		prefix := []byte(docID + ":")
		c := chunks.Cursor()
		var ids [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, append([]byte(nil), k...))
		}
		for _, id := range ids {
			if err := chunks.Delete(id); err != nil {
				return err
			}
			if err := vectors.Delete(id); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketDocs).Delete([]byte(docID))
	})
	if err != nil {
		return err
	}

	for id, entry := range s.vectors {
		if entry.docID == docID {
			delete(s.vectors, id)
		}
	}
	delete(s.pending, docID)
	return nil
}

func (s *BoltIndex) Search(query []float32, k int, filterDocIDs []string) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, domain.ErrIndexEmpty
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	var filter map[string]bool
	if len(filterDocIDs) > 0 {
		filter = make(map[string]bool, len(filterDocIDs))
		for _, id := range filterDocIDs {
			filter[id] = true
		}
	}

	type scored struct {
		id    string
		docID string
		seq   int
		score float64
	}

	scores := make([]scored, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if filter != nil && !filter[entry.docID] {
			continue
		}
		// Mid-ingest documents stay invisible until MarkReady.
		if s.pending[entry.docID] {
			continue
		}
		scores = append(scores, scored{
			id:    id,
			docID: entry.docID,
			seq:   entry.seq,
			score: cosineSimilarity(query, entry.vector),
		})
	}

	// Descending score; equal scores resolve by document then sequence
	// so repeated searches return identical orderings.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		if scores[i].docID != scores[j].docID {
			return scores[i].docID < scores[j].docID
		}
		return scores[i].seq < scores[j].seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	scores = scores[:k]

	results := make([]domain.ScoredChunk, 0, len(scores))
	err := s.db.View(func(tx *bbolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		for _, sc := range scores {
			data := chunks.Get([]byte(sc.id))
			if data == nil {
				return fmt.Errorf("%w: vector without chunk record %s", domain.ErrIndexCorrupt, sc.id)
			}
			var rec chunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("%w: unreadable chunk %s", domain.ErrIndexCorrupt, sc.id)
			}
			results = append(results, domain.ScoredChunk{
				Chunk: chunkFromRecord(sc.id, rec),
				Score: sc.score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *BoltIndex) ChunksByDocument(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	notReady := s.pending[docID]
	s.mu.RUnlock()
	if notReady {
		return nil, nil
	}

	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(docID + ":")
		c := tx.Bucket(bucketChunks).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: unreadable chunk %s", domain.ErrIndexCorrupt, k)
			}
			chunks = append(chunks, chunkFromRecord(string(k), rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Key order is lexicographic ("doc:10" before "doc:2"); sequence
	// order is what callers want.
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, nil
}

func (s *BoltIndex) Documents() ([]domain.DocumentInfo, error) {
	s.mu.RLock()
	chunkCounts := make(map[string]int)
	for _, entry := range s.vectors {
		chunkCounts[entry.docID]++
	}
	s.mu.RUnlock()

	var docs []domain.DocumentInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var rec docRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: unreadable document %s", domain.ErrIndexCorrupt, k)
			}
			docs = append(docs, domain.DocumentInfo{
				ID:         string(k),
				Name:       rec.Name,
				PageCount:  rec.PageCount,
				ChunkCount: chunkCounts[string(k)],
				Ready:      rec.Ready,
				IngestedAt: time.Unix(rec.IngestedAt, 0),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (s *BoltIndex) Stats() (domain.Stats, error) {
	docs, err := s.Documents()
	if err != nil {
		return domain.Stats{}, err
	}

	s.mu.RLock()
	chunks := len(s.vectors)
	s.mu.RUnlock()

	return domain.Stats{Documents: len(docs), Chunks: chunks}, nil
}

func (s *BoltIndex) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketChunks, bucketVectors, bucketMeta} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.vectors = make(map[string]vectorEntry)
	s.pending = make(map[string]bool)
	s.dimension = 0
	return nil
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}

func chunkFromRecord(id string, rec chunkRecord) domain.Chunk {
	return domain.Chunk{
		ID:          id,
		DocID:       rec.DocID,
		Seq:         rec.Seq,
		Text:        rec.Text,
		StartPage:   rec.StartPage,
		EndPage:     rec.EndPage,
		StartOffset: rec.StartOffset,
		EndOffset:   rec.EndOffset,
	}
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
