// Package wire implements the pure encode/decode functions for the
// over-the-network byte layout: Z_q integers as fixed-width little-endian,
// matrices and vectors length-prefixed by (rows, cols) as 32-bit
// big-endian. It has no I/O side effects beyond reading from / writing to
// the io.Reader/io.Writer handed to it, so it can be reused by both the
// net/rpc transport and any future transport without duplicating the byte
// layout logic.
//
// Grounded on the teacher (dimakogan-checklist)'s static_db.go flat byte
// layout conventions, generalized from raw bytes to Z_q-valued matrix
// entries, and on rpc/serialization.go's length-prefixing style.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// Width is the byte width of one Z_q element on the wire: 4 bytes for
// logQ <= 32, 8 bytes otherwise.
func Width(logQ uint64) int {
	if logQ <= 32 {
		return 4
	}
	return 8
}

// EncodeMatrix writes rows, cols as 32-bit big-endian, then the matrix's
// row-major data as width-byte little-endian words.
func EncodeMatrix[T matrix.Elem](w io.Writer, m *matrix.Matrix[T], width int) error {
	const op = "wire.EncodeMatrix"
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(m.Rows()))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(m.Cols()))
	if _, err := w.Write(hdr[:]); err != nil {
		return pirerr.Wrap(pirerr.Transport, op, err)
	}
	buf := make([]byte, width)
	for i := uint64(0); i < m.Rows(); i++ {
		for j := uint64(0); j < m.Cols(); j++ {
			putWord(buf, uint64(m.At(i, j)), width)
			if _, err := w.Write(buf); err != nil {
				return pirerr.Wrap(pirerr.Transport, op, err)
			}
		}
	}
	return nil
}

// DecodeMatrix reads a (rows, cols) header followed by row-major data,
// reducing each word mod q.
func DecodeMatrix[T matrix.Elem](r io.Reader, q uint64, width int) (*matrix.Matrix[T], error) {
	const op = "wire.DecodeMatrix"
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, pirerr.Wrap(pirerr.Transport, op, err)
	}
	rows := uint64(binary.BigEndian.Uint32(hdr[0:4]))
	cols := uint64(binary.BigEndian.Uint32(hdr[4:8]))
	m := matrix.New[T](rows, cols, q)
	buf := make([]byte, width)
	for i := uint64(0); i < rows; i++ {
		for j := uint64(0); j < cols; j++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, pirerr.Wrap(pirerr.Transport, op, err)
			}
			m.Set(i, j, T(getWord(buf, width)))
		}
	}
	return m, nil
}

// EncodeVector writes a column vector (rows x 1 matrix) without a leading
// cols field beyond what EncodeMatrix already supplies -- query and answer
// vectors are always single-column, so this is a thin, self-documenting
// wrapper the RPC layer calls by name.
func EncodeVector[T matrix.Elem](w io.Writer, v *matrix.Matrix[T], width int) error {
	return EncodeMatrix(w, v, width)
}

// DecodeVector reads a vector previously written by EncodeVector.
func DecodeVector[T matrix.Elem](r io.Reader, q uint64, width int) (*matrix.Matrix[T], error) {
	const op = "wire.DecodeVector"
	v, err := DecodeMatrix[T](r, q, width)
	if err != nil {
		return nil, err
	}
	if v.Cols() != 1 {
		return nil, pirerr.New(pirerr.DimensionError, op, "expected a single-column vector")
	}
	return v, nil
}

func putWord(buf []byte, v uint64, width int) {
	if width == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(buf, v)
}

func getWord(buf []byte, width int) uint64 {
	if width == 4 {
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return binary.LittleEndian.Uint64(buf)
}
