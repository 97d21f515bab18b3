package driver

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"gotest.tools/assert"
)

func TestConfigFlagDefaultsProduceValidParams(t *testing.T) {
	cfg := &Config{FlagSet: flag.NewFlagSet("test", flag.ContinueOnError)}
	cfg.AddCorpusFlags().AddServerFlags().AddClientFlags().AddBenchmarkFlags()
	assert.NilError(t, cfg.FlagSet.Parse(nil))

	emb := cfg.EmbedParams()
	assert.Equal(t, emb.Q, uint64(1)<<cfg.LogQ)
	assert.Equal(t, emb.N, cfg.N)
	assert.Equal(t, emb.P, cfg.P)
}

func TestModulusHandlesLogQ64WithoutOverflow(t *testing.T) {
	cfg := &Config{LogQ: 64}
	assert.Equal(t, cfg.modulus(), uint64(0))

	cfg.LogQ = 32
	assert.Equal(t, cfg.modulus(), uint64(1)<<32)
}

func TestLoadCorpusDirReadsFilesInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	names := []string{"c.txt", "a.txt", "b.txt"}
	for _, n := range names {
		assert.NilError(t, os.WriteFile(filepath.Join(dir, n), []byte("doc "+n), 0o644))
	}

	docs, err := LoadCorpusDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, len(docs), 3)
	want := []string{"doc a.txt", "doc b.txt", "doc c.txt"}
	for i, w := range want {
		assert.Equal(t, docs[i].Text, w)
	}
}

func TestBuildVocabEmbedderDerivesSortedDedupedVocabulary(t *testing.T) {
	docs := []corpus.Document{
		{Text: "apple Banana apple"},
		{Text: "cherry banana"},
	}
	embedder := BuildVocabEmbedder(docs)
	vocab := embedder.Vocab()
	want := []string{"apple", "banana", "cherry"}
	assert.DeepEqual(t, vocab, want)
}

func TestSaveLoadCorpusRoundTrips(t *testing.T) {
	embedder := corpus.NewMockEmbedder([]string{"apple", "banana", "cherry"})
	cfg := corpus.Config{
		EmbedParams: simplepir.Params{
			N: 512, Q: 1 << 32, LogQ: 32, P: 256, Sigma: 3.2,
		},
		EncodeParams: simplepir.Params{
			N: 512, Q: 1 << 32, LogQ: 32, P: 256, Sigma: 3.2,
		},
		ClusterSeed: 1,
		MaxDocLen:   16,
	}
	docs := []corpus.Document{
		{Text: "apple banana", Bytes: []byte("doc-1")},
		{Text: "banana cherry", Bytes: []byte("doc-2")},
	}
	b := corpus.NewBuilder(cfg)
	c, err := b.Build(docs, embedder)
	assert.NilError(t, err)

	dir := t.TempDir()
	assert.NilError(t, SaveCorpus(dir, c))

	got, err := LoadCorpus(dir)
	assert.NilError(t, err)

	assert.Equal(t, got.K, c.K)
	assert.Equal(t, got.RowsPerCluster, c.RowsPerCluster)
	assert.Equal(t, got.DocLen, c.DocLen)
	assert.Equal(t, got.DBEmb.Data.Rows(), c.DBEmb.Data.Rows())
	assert.Equal(t, got.DBEmb.Data.Cols(), c.DBEmb.Data.Cols())
	for i := uint64(0); i < c.DBEmb.Data.Rows(); i++ {
		for j := uint64(0); j < c.DBEmb.Data.Cols(); j++ {
			assert.Equal(t, got.DBEmb.Data.At(i, j), c.DBEmb.Data.At(i, j))
		}
	}
	for i := uint64(0); i < c.DBEnc.Data.Rows(); i++ {
		for j := uint64(0); j < c.DBEnc.Data.Cols(); j++ {
			assert.Equal(t, got.DBEnc.Data.At(i, j), c.DBEnc.Data.At(i, j))
		}
	}
}

func TestLoadCorpusReturnsNotExistWhenNoSnapshotSaved(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCorpus(dir)
	assert.Assert(t, os.IsNotExist(err), "expected an os.IsNotExist error, got %v", err)
}
