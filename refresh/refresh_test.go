package refresh

import (
	"context"
	"testing"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"gotest.tools/assert"
)

func testConfig() corpus.Config {
	return corpus.Config{
		EmbedParams: simplepir.Params{
			N: 512, Q: 1 << 32, LogQ: 32, P: 256, Sigma: 3.2,
		},
		EncodeParams: simplepir.Params{
			N: 512, Q: 1 << 32, LogQ: 32, P: 256, Sigma: 3.2,
		},
		ClusterSeed: 1,
		MaxDocLen:   16,
	}
}

func docsFixture(n int) []corpus.Document {
	docs := make([]corpus.Document, n)
	for i := range docs {
		docs[i] = corpus.Document{Text: "apple banana", Bytes: []byte("doc")}
	}
	return docs
}

func TestManagerServesInitialSnapshot(t *testing.T) {
	embedder := corpus.NewMockEmbedder([]string{"apple", "banana"})
	b := corpus.NewBuilder(testConfig())
	mgr, err := NewManager(b, docsFixture(4), embedder)
	assert.NilError(t, err)
	snap := mgr.Current()
	assert.Assert(t, snap != nil, "expected a non-nil initial snapshot")
	assert.Equal(t, snap.Generation, uint64(1))
}

// TestManagerSquishesServedDatabases checks that a built snapshot's
// databases have traded their unpacked Data for the bit-packed Squished
// form before being served, and that Answer still works correctly against
// the compacted database -- buildSnapshot calls Squish only after the hint
// has already been computed from the unpacked form.
func TestManagerSquishesServedDatabases(t *testing.T) {
	embedder := corpus.NewMockEmbedder([]string{"apple", "banana"})
	b := corpus.NewBuilder(testConfig())
	mgr, err := NewManager(b, docsFixture(4), embedder)
	assert.NilError(t, err)
	snap := mgr.Current()
	assert.Assert(t, snap.Corpus.DBEmb.Data == nil && snap.Corpus.DBEmb.Squished != nil, "expected embedding database to be squished after build")
	assert.Assert(t, snap.Corpus.DBEnc.Data == nil && snap.Corpus.DBEnc.Squished != nil, "expected encoding database to be squished after build")

	cli := simplepir.NewClient(snap.HintEmb, nil)
	secret, query, err := cli.Query(0)
	assert.NilError(t, err)
	ans, err := snap.ServerEmb.Answer(context.Background(), query)
	assert.NilError(t, err)
	_, err = cli.Reconstruct(secret, ans)
	assert.NilError(t, err)
}

func TestRefreshSwapsGenerationWithoutInvalidatingOldSnapshot(t *testing.T) {
	embedder := corpus.NewMockEmbedder([]string{"apple", "banana"})
	b := corpus.NewBuilder(testConfig())
	mgr, err := NewManager(b, docsFixture(4), embedder)
	assert.NilError(t, err)
	old := mgr.Current()

	assert.NilError(t, mgr.Refresh(docsFixture(8)))
	fresh := mgr.Current()

	assert.Equal(t, fresh.Generation, old.Generation+1)
	// The snapshot a reader already captured must remain usable -- refresh
	// never mutates it in place.
	assert.Assert(t, old.Corpus.K != 0, "old snapshot was mutated or invalidated by refresh")
}

func TestDocumentSetPreservesOrderAcrossUpsertAndDelete(t *testing.T) {
	s := NewDocumentSet()
	s.Upsert("a", corpus.Document{Text: "apple", Bytes: []byte("a")})
	s.Upsert("b", corpus.Document{Text: "banana", Bytes: []byte("b")})
	s.Upsert("c", corpus.Document{Text: "apple banana", Bytes: []byte("c")})

	docs := s.Documents()
	assert.Equal(t, len(docs), 3)
	assert.Equal(t, string(docs[0].Bytes), "a")
	assert.Equal(t, string(docs[2].Bytes), "c")

	// Replacing an existing id keeps its original position rather than
	// moving it to the end.
	s.Upsert("b", corpus.Document{Text: "banana banana", Bytes: []byte("b2")})
	docs = s.Documents()
	assert.Equal(t, len(docs), 3)
	assert.Equal(t, string(docs[1].Bytes), "b2")

	s.Delete("a")
	docs = s.Documents()
	assert.Equal(t, len(docs), 2)
	assert.Equal(t, string(docs[0].Bytes), "b2")
	assert.Equal(t, string(docs[1].Bytes), "c")
	assert.Equal(t, s.Len(), 2)
}

func TestManagerRefreshSetRebuildsFromDocumentSet(t *testing.T) {
	embedder := corpus.NewMockEmbedder([]string{"apple", "banana"})
	b := corpus.NewBuilder(testConfig())

	set := NewDocumentSet()
	for i := 0; i < 4; i++ {
		set.Upsert(string(rune('a'+i)), corpus.Document{Text: "apple banana", Bytes: []byte("doc")})
	}

	mgr, err := NewManager(b, set.Documents(), embedder)
	assert.NilError(t, err)

	set.Upsert("e", corpus.Document{Text: "apple", Bytes: []byte("doc")})
	set.Delete("a")
	assert.NilError(t, mgr.RefreshSet(set))

	snap := mgr.Current()
	assert.Equal(t, snap.Generation, uint64(2))
	assert.Assert(t, int(snap.Corpus.RowsPerCluster)*snap.Corpus.K >= set.Len(), "rebuilt corpus has too few rows for %d documents", set.Len())
}
