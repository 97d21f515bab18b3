package driver

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"github.com/dimakogan/tiptoe-simplepir/wire"
)

const corpusFileName = "corpus.gob"

// persistedCorpus is corpus.Corpus's on-disk shape: everything gob can
// encode directly, plus the two databases pre-serialized through
// wire.EncodeMatrix, since matrix.Matrix keeps its rows/cols/q fields
// unexported and gob silently drops unexported fields rather than erroring.
type persistedCorpus struct {
	ParamsEmb, ParamsEnc simplepir.Params
	SeedEmb, SeedEnc     matrix.Seed
	DBEmb, DBEnc         []byte
	Centroids            *corpus.Centroids
	Quant                corpus.QuantizeParams
	RowsPerCluster       uint64
	K                    int
	DocLen               int
}

// SaveCorpus gob-encodes c to <dir>/corpus.gob, matching the teacher's
// snapshot/test-fixture convention of a configurable data directory holding
// the server's rebuildable state, so a restart doesn't have to redo the
// embed/cluster/quantize pipeline against an unchanged corpus.
func SaveCorpus(dir string, c *corpus.Corpus) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	// FullData, not Data, since a Corpus handed to SaveCorpus by a running
	// server has already had refresh.buildSnapshot call Squish on both
	// databases -- Data is nil at that point and Squished holds the
	// compacted form instead.
	var embBuf, encBuf bytes.Buffer
	if err := wire.EncodeMatrix(&embBuf, c.DBEmb.FullData(c.ParamsEmb.Q), wire.Width(c.ParamsEmb.LogQ)); err != nil {
		return fmt.Errorf("persist: encode embedding database: %w", err)
	}
	if err := wire.EncodeMatrix(&encBuf, c.DBEnc.FullData(c.ParamsEnc.Q), wire.Width(c.ParamsEnc.LogQ)); err != nil {
		return fmt.Errorf("persist: encode encoding database: %w", err)
	}

	p := persistedCorpus{
		ParamsEmb:      c.ParamsEmb,
		ParamsEnc:      c.ParamsEnc,
		SeedEmb:        c.SeedEmb,
		SeedEnc:        c.SeedEnc,
		DBEmb:          embBuf.Bytes(),
		DBEnc:          encBuf.Bytes(),
		Centroids:      c.Centroids,
		Quant:          c.Quant,
		RowsPerCluster: c.RowsPerCluster,
		K:              c.K,
		DocLen:         c.DocLen,
	}

	f, err := os.Create(filepath.Join(dir, corpusFileName))
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&p); err != nil {
		return fmt.Errorf("persist: encode: %w", err)
	}
	return nil
}

// LoadCorpus reverses SaveCorpus. It returns an error satisfying
// os.IsNotExist when dir holds no persisted corpus, so a caller can fall
// back to building fresh from source documents.
func LoadCorpus(dir string) (*corpus.Corpus, error) {
	f, err := os.Open(filepath.Join(dir, corpusFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var p persistedCorpus
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("persist: decode: %w", err)
	}

	dbEmb, err := wire.DecodeMatrix[uint64](bytes.NewReader(p.DBEmb), p.ParamsEmb.Q, wire.Width(p.ParamsEmb.LogQ))
	if err != nil {
		return nil, fmt.Errorf("persist: decode embedding database: %w", err)
	}
	dbEnc, err := wire.DecodeMatrix[uint64](bytes.NewReader(p.DBEnc), p.ParamsEnc.Q, wire.Width(p.ParamsEnc.LogQ))
	if err != nil {
		return nil, fmt.Errorf("persist: decode encoding database: %w", err)
	}

	return &corpus.Corpus{
		ParamsEmb:      p.ParamsEmb,
		ParamsEnc:      p.ParamsEnc,
		SeedEmb:        p.SeedEmb,
		SeedEnc:        p.SeedEnc,
		DBEmb:          &simplepir.Database{Data: dbEmb},
		DBEnc:          &simplepir.Database{Data: dbEnc},
		Centroids:      p.Centroids,
		Quant:          p.Quant,
		RowsPerCluster: p.RowsPerCluster,
		K:              p.K,
		DocLen:         p.DocLen,
	}, nil
}
