// Package corpus implements the preparation pipeline that turns a list of
// documents into the matrices, centroids, and quantization parameters a
// two-stage retrieval protocol serves: embed, cluster, quantize, build the
// embedding database, build the encoding database, and emit the named
// setup artifacts.
//
// Grounded on original_source/clustering.py (k = max(2, ceil(sqrt(N))),
// cosine via row L2-normalization, a fixed-seed KMeans-style iteration) and
// original_source/update.py (the rebuild entry point a refresh invokes),
// reworked into Go with a from-scratch Lloyd's-algorithm k-means since no
// ML library exists anywhere in the dependency pack (see DESIGN.md).
package corpus

import (
	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
)

// Document is one corpus entry: Text is what gets embedded, Bytes is the
// payload returned to the caller on a successful match.
type Document struct {
	Bytes []byte
	Text  string
}

// Config controls the knobs Build exposes beyond the documents and
// embedder: the LWE parameters for each stage's database, the clustering
// seed/convergence criteria, and the overflow policy.
type Config struct {
	EmbedParams  simplepir.Params // Rows/Cols filled in by Build; N/Q/LogQ/P/Sigma caller-supplied
	EncodeParams simplepir.Params

	ClusterSeed    int64
	MaxIter        int
	Tau            float64
	OverflowFactor float64 // row cap per cluster = OverflowFactor * ceil(N/k); 1.5 if unset

	MaxDocLen int // R, in bytes; documents longer than this are rejected
}

// Corpus is the complete set of artifacts a two-stage retrieval protocol's
// setup phase needs: two SimplePIR databases sharing one (cluster,
// local_row) addressing convention, plus the routing metadata.
type Corpus struct {
	ParamsEmb, ParamsEnc simplepir.Params
	SeedEmb, SeedEnc     matrix.Seed
	DBEmb, DBEnc         *simplepir.Database
	Centroids            *Centroids
	Quant                QuantizeParams
	RowsPerCluster       uint64
	K                    int
	DocLen               int
}

// Builder runs the six-step preparation pipeline.
type Builder struct {
	cfg Config
}

// NewBuilder constructs a Builder from cfg, filling in zero-valued
// defaults (MaxIter, Tau, OverflowFactor) the way a config struct with
// sane defaults typically does.
func NewBuilder(cfg Config) *Builder {
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 50
	}
	if cfg.Tau == 0 {
		cfg.Tau = 1e-4
	}
	if cfg.OverflowFactor == 0 {
		cfg.OverflowFactor = 1.5
	}
	return &Builder{cfg: cfg}
}

// Build ties together embed, cluster, quantize, embedding-DB, encoding-DB,
// and artifact emission into one Corpus.
func (b *Builder) Build(docs []Document, embedder Embedder) (*Corpus, error) {
	const op = "corpus.Builder.Build"
	n := len(docs)
	if n == 0 {
		return nil, pirerr.New(pirerr.InvalidConfig, op, "corpus must contain at least one document")
	}

	docR := b.cfg.MaxDocLen
	if docR == 0 {
		for _, d := range docs {
			if len(d.Bytes) > docR {
				docR = len(d.Bytes)
			}
		}
	}
	for _, d := range docs {
		if len(d.Bytes) > docR {
			return nil, pirerr.New(pirerr.InvalidConfig, op, "document exceeds configured max length")
		}
	}

	// Step 1: embed, then L2-normalize.
	dim := embedder.Dim()
	raw := make([][]float64, n)
	for i, d := range docs {
		v, err := embedder.Embed(d.Text)
		if err != nil {
			return nil, pirerr.Wrap(pirerr.InvalidConfig, op, err)
		}
		if len(v) != dim {
			return nil, pirerr.New(pirerr.DimensionError, op, "embedder returned wrong-dimension vector")
		}
		raw[i] = Normalize(v)
	}

	// Step 2: cluster.
	k := NumClusters(n)
	centroids, assign := Cluster(raw, k, b.cfg.ClusterSeed, b.cfg.MaxIter, b.cfg.Tau)

	natural := (n + k - 1) / k
	rowCap := uint64(float64(natural) * b.cfg.OverflowFactor)
	if rowCap == 0 {
		rowCap = uint64(natural)
	}
	assign = BalanceClusters(raw, centroids, assign, int(rowCap), OverflowReassignNearest)

	counts := make([]int, k)
	for _, c := range assign {
		counts[c]++
	}
	rowsPerCluster := 0
	for _, c := range counts {
		if c > rowsPerCluster {
			rowsPerCluster = c
		}
	}
	if rowsPerCluster == 0 {
		rowsPerCluster = 1
	}

	// Step 3: quantize embeddings.
	quant := FixedRangeQuantizeParams(b.cfg.EmbedParams.P)

	// Step 4 + 5: build M_emb and M_enc with identical (cluster, local_row)
	// row layout, padding rows zeroed.
	packedLen := PackedLen(docR, b.cfg.EncodeParams.P)
	totalRows := uint64(k) * uint64(rowsPerCluster)

	embVals := make([]uint64, totalRows*uint64(dim))
	encVals := make([]uint64, totalRows*uint64(packedLen))

	clusterNext := make([]int, k)
	for docIdx, c := range assign {
		local := clusterNext[c]
		clusterNext[c]++
		row := uint64(c)*uint64(rowsPerCluster) + uint64(local)

		signed := quant.QuantizeSignedVector(raw[docIdx])
		for i, s := range signed {
			embVals[row*uint64(dim)+uint64(i)] = matrix.WrapSigned(s, b.cfg.EmbedParams.Q)
		}

		packed := Pack(docs[docIdx].Bytes, docR, b.cfg.EncodeParams.P)
		copy(encVals[row*uint64(packedLen):(row+1)*uint64(packedLen)], packed)
	}

	paramsEmb := b.cfg.EmbedParams
	paramsEmb.Rows = totalRows
	paramsEmb.Cols = uint64(dim)
	if err := paramsEmb.Validate(); err != nil {
		return nil, err
	}

	paramsEnc := b.cfg.EncodeParams
	paramsEnc.Rows = totalRows
	paramsEnc.Cols = uint64(packedLen)
	if err := paramsEnc.Validate(); err != nil {
		return nil, err
	}

	dbEmb, err := simplepir.NewDatabase(&paramsEmb, embVals)
	if err != nil {
		return nil, err
	}
	dbEnc, err := simplepir.NewDatabase(&paramsEnc, encVals)
	if err != nil {
		return nil, err
	}

	seedEmb, err := matrix.NewSeed()
	if err != nil {
		return nil, pirerr.Wrap(pirerr.InvalidConfig, op, err)
	}
	seedEnc, err := matrix.NewSeed()
	if err != nil {
		return nil, pirerr.Wrap(pirerr.InvalidConfig, op, err)
	}

	return &Corpus{
		ParamsEmb:      paramsEmb,
		ParamsEnc:      paramsEnc,
		SeedEmb:        seedEmb,
		SeedEnc:        seedEnc,
		DBEmb:          dbEmb,
		DBEnc:          dbEnc,
		Centroids:      centroids,
		Quant:          quant,
		RowsPerCluster: uint64(rowsPerCluster),
		K:              k,
		DocLen:         docR,
	}, nil
}
