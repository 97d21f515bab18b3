package driver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
)

// BuildVocabEmbedder derives a MockEmbedder's vocabulary from the corpus
// itself: every distinct word appearing in any document's Text becomes one
// dimension, in sorted order for determinism. This stands in for a real
// embedding model in the cmd/ binaries, the same role NewMockEmbedder
// serves in tests, just with the vocabulary discovered instead of
// hand-supplied.
func BuildVocabEmbedder(docs []corpus.Document) *corpus.MockEmbedder {
	seen := make(map[string]bool)
	for _, d := range docs {
		for _, w := range strings.Fields(strings.ToLower(d.Text)) {
			seen[w] = true
		}
	}
	vocab := make([]string, 0, len(seen))
	for w := range seen {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)
	return corpus.NewMockEmbedder(vocab)
}

// LoadCorpusDir reads every regular file directly inside dir into one
// corpus.Document per file, the document's Text and Bytes both set to the
// file's contents (Text drives embedding, Bytes is what a client gets back
// on a match). Files are read in name-sorted order so two loads of an
// unchanged directory produce the same document order, and therefore the
// same cluster/row layout -- the property refresh.DocumentSet exists to
// preserve across incremental edits, reused here for the simpler
// directory-snapshot case.
func LoadCorpusDir(dir string) ([]corpus.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]corpus.Document, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, corpus.Document{Text: string(b), Bytes: b})
	}
	return docs, nil
}
