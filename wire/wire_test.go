package wire

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"gotest.tools/assert"
)

func TestMatrixRoundTrip(t *testing.T) {
	const rows, cols, q = 5, 7, 65537
	r := rand.New(rand.NewSource(3))
	m := matrix.New[uint32](rows, cols, q)
	for i := uint64(0); i < rows; i++ {
		for j := uint64(0); j < cols; j++ {
			m.Set(i, j, uint32(r.Intn(q)))
		}
	}

	var buf bytes.Buffer
	assert.NilError(t, EncodeMatrix(&buf, m, Width(17)))
	got, err := DecodeMatrix[uint32](&buf, q, Width(17))
	assert.NilError(t, err)
	assert.Assert(t, matrix.Equal(m, got), "round trip mismatch")
}

func TestVectorRoundTrip64(t *testing.T) {
	const rows, q = 9, 0
	v := matrix.New[uint64](rows, 1, q)
	r := rand.New(rand.NewSource(4))
	for i := uint64(0); i < rows; i++ {
		v.Set(i, 0, r.Uint64())
	}

	var buf bytes.Buffer
	assert.NilError(t, EncodeVector(&buf, v, Width(64)))
	got, err := DecodeVector[uint64](&buf, q, Width(64))
	assert.NilError(t, err)
	assert.Assert(t, matrix.Equal(v, got), "round trip mismatch")
}

func TestDecodeVectorRejectsMultiColumn(t *testing.T) {
	m := matrix.New[uint32](3, 2, 97)
	var buf bytes.Buffer
	assert.NilError(t, EncodeMatrix(&buf, m, Width(7)))
	_, err := DecodeVector[uint32](&buf, 97, Width(7))
	assert.Assert(t, err != nil, "expected DimensionError for multi-column payload")
}

func TestWidthSelection(t *testing.T) {
	assert.Equal(t, Width(32), 4)
	assert.Equal(t, Width(33), 8)
}
