package corpus

import (
	"testing"

	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"gotest.tools/assert"
)

func testConfig() Config {
	return Config{
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

func sampleDocs() []Document {
	return []Document{
		{Text: "apple banana", Bytes: []byte("fruit-doc-1")},
		{Text: "apple cherry", Bytes: []byte("fruit-doc-2")},
		{Text: "car truck", Bytes: []byte("vehicle-doc-1")},
		{Text: "car bus", Bytes: []byte("vehicle-doc-2")},
		{Text: "banana cherry", Bytes: []byte("fruit-doc-3")},
		{Text: "truck bus", Bytes: []byte("vehicle-doc-3")},
	}
}

func TestBuildProducesConsistentLayout(t *testing.T) {
	embedder := NewMockEmbedder([]string{"apple", "banana", "cherry", "car", "truck", "bus"})
	b := NewBuilder(testConfig())
	corp, err := b.Build(sampleDocs(), embedder)
	assert.NilError(t, err)
	assert.Equal(t, corp.DBEmb.Data.Rows(), corp.DBEnc.Data.Rows())
	assert.Equal(t, corp.DBEmb.Data.Rows(), uint64(corp.K)*corp.RowsPerCluster)
}

func TestClusterUnionCoversAllDocuments(t *testing.T) {
	embedder := NewMockEmbedder([]string{"apple", "banana", "cherry", "car", "truck", "bus"})
	docs := sampleDocs()
	raw := make([][]float64, len(docs))
	for i, d := range docs {
		v, _ := embedder.Embed(d.Text)
		raw[i] = Normalize(v)
	}
	k := NumClusters(len(docs))
	_, assign := Cluster(raw, k, 1, 50, 1e-4)

	seen := make(map[int]bool)
	for _, c := range assign {
		assert.Assert(t, c >= 0 && c < k, "assignment %d out of range [0,%d)", c, k)
		seen[c] = true
	}
	assert.Equal(t, len(assign), len(docs))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	doc := []byte("hello world, this is a test document")
	const r, p = 64, 256
	packed := Pack(doc, r, p)
	got, err := Unpack(packed, r, p)
	assert.NilError(t, err)
	want := make([]byte, r)
	copy(want, doc)
	assert.DeepEqual(t, got, want)
}

func TestUnpackRejectsMissingMagic(t *testing.T) {
	const r, p = 16, 256
	zeros := make([]uint64, PackedLen(r, p))
	_, err := Unpack(zeros, r, p)
	assert.Assert(t, err != nil, "expected DecodeFailure for all-zero (padding) row")
}

func TestQuantizeDequantizeApproximatesOriginal(t *testing.T) {
	q := FixedRangeQuantizeParams(256)
	for _, x := range []float64{-1, -0.5, 0, 0.3333, 1} {
		got := q.Dequantize(q.Quantize(x))
		diff := got - x
		if diff < 0 {
			diff = -diff
		}
		assert.Assert(t, diff <= 0.02, "Dequantize(Quantize(%v)) = %v, diff %v exceeds one bucket width", x, got, diff)
	}
}

func TestNearestClusterTieBreaksLowestIndex(t *testing.T) {
	c := &Centroids{K: 3, Dim: 2, Data: [][]float64{{1, 0}, {1, 0}, {0, 1}}}
	got := NearestCluster([]float64{1, 0}, c)
	assert.Equal(t, got, 0)
}

func TestBalanceClustersRespectsCapacity(t *testing.T) {
	rows := [][]float64{{1, 0}, {1, 0}, {1, 0}, {1, 0}, {0, 1}}
	centroids := &Centroids{K: 2, Dim: 2, Data: [][]float64{{1, 0}, {0, 1}}}
	assign := []int{0, 0, 0, 0, 1}
	const rowCap = 3
	balanced := BalanceClusters(rows, centroids, assign, rowCap, OverflowReassignNearest)
	counts := make([]int, 2)
	for _, c := range balanced {
		counts[c]++
	}
	assert.Assert(t, counts[0] <= rowCap, "cluster 0 still over capacity: %d", counts[0])
}
