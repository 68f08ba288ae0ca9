package server

import (
	"sync"

	"github.com/hyperjump/shiboru/internal/index"
)

type document struct {
	fields     map[string][]string
	sortValues map[string]int64
}

type fieldTerm struct {
	field, term string
}

// IndexManager owns the shard's mutable document set and materializes it
// into immutable segments on demand. Documents are chunked into segments of
// segmentSize in arrival order.
type IndexManager struct {
	mu          sync.RWMutex
	segmentSize int
	docs        []document
	deletes     []fieldTerm
	reader      *index.Reader
	dirty       bool
}

// NewIndexManager returns a manager producing segments of up to segmentSize
// documents.
func NewIndexManager(segmentSize int) *IndexManager {
	if segmentSize <= 0 {
		segmentSize = 1024
	}
	return &IndexManager{segmentSize: segmentSize}
}

// Add appends a document and returns its global doc id.
func (m *IndexManager) Add(fields map[string][]string, sortValues map[string]int64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, document{fields: fields, sortValues: sortValues})
	m.dirty = true
	return uint64(len(m.docs) - 1)
}

// DeleteByTerm marks every document containing the term deleted.
func (m *IndexManager) DeleteByTerm(field, term string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, fieldTerm{field: field, term: term})
	m.dirty = true
}

// DocCount returns the number of added documents, deleted ones included.
func (m *IndexManager) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Reader materializes the current document set. The returned reader is
// immutable; later mutations produce a new one.
func (m *IndexManager) Reader() *index.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty && m.reader != nil {
		return m.reader
	}
	var segs []*index.MemorySegment
	for start := 0; start < len(m.docs); start += m.segmentSize {
		end := start + m.segmentSize
		if end > len(m.docs) {
			end = len(m.docs)
		}
		b := index.NewSegmentBuilder()
		for _, doc := range m.docs[start:end] {
			b.Add(doc.fields, doc.sortValues)
		}
		for _, d := range m.deletes {
			b.DeleteByTerm(d.field, d.term)
		}
		segs = append(segs, b.Build())
	}
	m.reader = index.NewReader(segs...)
	m.dirty = false
	return m.reader
}
