package refresh

import (
	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/elliotchance/orderedmap"
)

// DocumentSet maintains a corpus's documents keyed by a caller-chosen
// stable ID, preserving insertion order across Upsert/Delete so that two
// builds from the same sequence of edits produce the same Documents()
// ordering and therefore the same row layout -- important since
// corpus.Builder's cluster assignment and row packing are order-sensitive,
// and a refresh should not reshuffle rows for documents that did not
// change.
//
// Grounded on the teacher's updatable/pir_updatable_server.go, which keeps
// its key/value rows in an *orderedmap.OrderedMap for the same reason:
// incremental adds and deletes need a stable iteration order.
type DocumentSet struct {
	docs *orderedmap.OrderedMap
}

// NewDocumentSet returns an empty DocumentSet.
func NewDocumentSet() *DocumentSet {
	return &DocumentSet{docs: orderedmap.NewOrderedMap()}
}

// Upsert inserts or replaces the document stored under id. A new id is
// appended after all existing ones; replacing an existing id keeps its
// original position.
func (s *DocumentSet) Upsert(id string, doc corpus.Document) {
	s.docs.Set(id, doc)
}

// Delete removes id from the set, if present.
func (s *DocumentSet) Delete(id string) {
	s.docs.Delete(id)
}

// Len reports the number of documents currently in the set.
func (s *DocumentSet) Len() int {
	return s.docs.Len()
}

// Documents returns the set's documents in insertion order, suitable for
// passing directly to corpus.Builder.Build or Manager.Refresh.
func (s *DocumentSet) Documents() []corpus.Document {
	out := make([]corpus.Document, 0, s.docs.Len())
	for el := s.docs.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(corpus.Document))
	}
	return out
}
