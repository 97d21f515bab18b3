// Package refresh manages atomic swap of a server's servable state: a
// refresh builds a new immutable Snapshot off to the side via
// corpus.Builder.Build and swaps an atomic.Pointer[Snapshot], so in-flight
// Answer calls keep using the Snapshot they captured at request start and
// no mutex guards the read path.
//
// Grounded on the teacher (dimakogan-checklist)'s proxy/local_index.go
// (fsnotify.Watcher-driven rebuild-on-change, sync.RWMutex-guarded index),
// reworked to swap a whole immutable snapshot atomically instead of
// locking a shared map, matching the no-shared-mutable-state-on-the-hot-
// path requirement.
package refresh

import (
	"log"
	"sync/atomic"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
)

// Snapshot is one immutable, fully built bundle of servable state: the two
// databases, their hints, and the routing metadata a Server needs to
// answer queries without touching anything else.
type Snapshot struct {
	Corpus     *corpus.Corpus
	HintEmb    *simplepir.Hint
	HintEnc    *simplepir.Hint
	ServerEmb  *simplepir.Server
	ServerEnc  *simplepir.Server
	Generation uint64
}

// buildSnapshot runs the corpus pipeline and the SimplePIR setup phase for
// both databases, producing one self-contained, immutable bundle.
func buildSnapshot(b *corpus.Builder, docs []corpus.Document, embedder corpus.Embedder, gen uint64) (*Snapshot, error) {
	c, err := b.Build(docs, embedder)
	if err != nil {
		return nil, err
	}

	srvEmb, hintEmb := simplepir.NewServer(&c.ParamsEmb, c.SeedEmb, c.DBEmb, nil)
	c.DBEmb.Squish()
	srvEnc, hintEnc := simplepir.NewServer(&c.ParamsEnc, c.SeedEnc, c.DBEnc, nil)
	c.DBEnc.Squish()

	return &Snapshot{
		Corpus:     c,
		HintEmb:    hintEmb,
		HintEnc:    hintEnc,
		ServerEmb:  srvEmb,
		ServerEnc:  srvEnc,
		Generation: gen,
	}, nil
}

// Manager owns the current Snapshot pointer and the document/embedder
// source a refresh rebuilds from. Readers call Current() once per request
// and operate on the returned Snapshot for that request's whole lifetime.
type Manager struct {
	current  atomic.Pointer[Snapshot]
	builder  *corpus.Builder
	embedder corpus.Embedder
	nextGen  atomic.Uint64
}

// NewManager performs the initial build and returns a Manager serving it.
func NewManager(b *corpus.Builder, docs []corpus.Document, embedder corpus.Embedder) (*Manager, error) {
	m := &Manager{builder: b, embedder: embedder}
	if err := m.Refresh(docs); err != nil {
		return nil, err
	}
	return m, nil
}

// NewManagerFromCorpus wraps an already-built Corpus (e.g. loaded from disk
// by driver.LoadCorpus) as generation 1, skipping the embed/cluster/build
// pipeline on startup. b and embedder are still needed for any later
// Refresh call.
func NewManagerFromCorpus(b *corpus.Builder, embedder corpus.Embedder, c *corpus.Corpus) (*Manager, error) {
	srvEmb, hintEmb := simplepir.NewServer(&c.ParamsEmb, c.SeedEmb, c.DBEmb, nil)
	c.DBEmb.Squish()
	srvEnc, hintEnc := simplepir.NewServer(&c.ParamsEnc, c.SeedEnc, c.DBEnc, nil)
	c.DBEnc.Squish()

	m := &Manager{builder: b, embedder: embedder}
	m.nextGen.Store(1)
	m.current.Store(&Snapshot{
		Corpus:     c,
		HintEmb:    hintEmb,
		HintEnc:    hintEnc,
		ServerEmb:  srvEmb,
		ServerEnc:  srvEnc,
		Generation: 1,
	})
	return m, nil
}

// Current returns the Snapshot in effect right now. Callers should fetch
// it once at the start of a request and use that single reference for the
// whole request, rather than calling Current() again mid-request -- doing
// so could observe two different generations within one logical operation.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// RefreshSet rebuilds from the current contents of s, in s's insertion
// order. Callers doing incremental per-document edits should keep one
// DocumentSet around and call Upsert/Delete on it before each RefreshSet,
// rather than reassembling a []corpus.Document themselves, so that
// documents left untouched between two refreshes keep their row position.
func (m *Manager) RefreshSet(s *DocumentSet) error {
	return m.Refresh(s.Documents())
}

// Refresh rebuilds the corpus from docs and atomically swaps it in. It
// does not touch the old Snapshot; any in-flight Answer still holding it
// completes normally, and the old Snapshot is reclaimed by the garbage
// collector once the last such reader is done with it.
func (m *Manager) Refresh(docs []corpus.Document) error {
	gen := m.nextGen.Add(1)
	snap, err := buildSnapshot(m.builder, docs, m.embedder, gen)
	if err != nil {
		log.Printf("refresh: build failed at generation %d: %v", gen, err)
		return err
	}
	m.current.Store(snap)
	log.Printf("refresh: generation %d now serving (%d clusters, %d rows/cluster)",
		gen, snap.Corpus.K, snap.Corpus.RowsPerCluster)
	return nil
}
