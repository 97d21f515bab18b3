// Package matrix implements the finite-field matrix layer (FFM): dense
// matrices over Z_q with uniform/Gaussian sampling, matmul, mat-vec,
// transpose, and the elementwise ops the SimplePIR engine builds on.
//
// Grounded on ahenzinger-simplepir's Matrix/Database routines (packing,
// squishing, base-p recomposition) and ryanleh-crowdsurf's matrix.Elem
// generic constraint, reworked around a single explicit modulus field so
// both power-of-two and prime q are supported uniformly.
package matrix

import "math/bits"

// Elem is the backing word type for a Z_q entry. uint32 covers q up to
// 2^32; uint64 covers larger moduli at the cost of needing a 128-bit
// accumulator (via bits.Mul64/bits.Add64) for products.
type Elem interface {
	~uint32 | ~uint64
}

// Matrix is a dense, row-major matrix over Z_q.
type Matrix[T Elem] struct {
	rows, cols uint64
	q          uint64 // 0 means "native wraparound modulus" (2^32 or 2^64)
	data       []T
}

// New allocates a zeroed rows x cols matrix with modulus q. q == 0 selects
// native wraparound of the underlying word type (q = 2^32 for uint32, 2^64
// for uint64), which is the fast path used whenever the caller's q is
// already a power of two matching the word width.
func New[T Elem](rows, cols uint64, q uint64) *Matrix[T] {
	return &Matrix[T]{rows: rows, cols: cols, q: q, data: make([]T, rows*cols)}
}

func (m *Matrix[T]) Rows() uint64 { return m.rows }
func (m *Matrix[T]) Cols() uint64 { return m.cols }
func (m *Matrix[T]) Q() uint64    { return m.q }

// At returns the (i,j) entry.
func (m *Matrix[T]) At(i, j uint64) T {
	return m.data[i*m.cols+j]
}

// Set writes the (i,j) entry.
func (m *Matrix[T]) Set(i, j uint64, v T) {
	m.data[i*m.cols+j] = m.reduce(uint64(v))
}

// Data exposes the underlying row-major backing slice, for packing/codec use.
func (m *Matrix[T]) Data() []T { return m.data }

func (m *Matrix[T]) reduce(v uint64) T {
	if m.q == 0 {
		return T(v)
	}
	return T(v % m.q)
}

func sameShape[T Elem](a, b *Matrix[T]) bool {
	return a.rows == b.rows && a.cols == b.cols
}

// Add returns a+b elementwise mod q.
func Add[T Elem](a, b *Matrix[T]) *Matrix[T] {
	if !sameShape(a, b) {
		panic("matrix: dimension mismatch in Add")
	}
	out := New[T](a.rows, a.cols, a.q)
	for i := range a.data {
		out.data[i] = a.reduce(uint64(a.data[i]) + uint64(b.data[i]))
	}
	return out
}

// Sub returns a-b elementwise mod q.
func Sub[T Elem](a, b *Matrix[T]) *Matrix[T] {
	if !sameShape(a, b) {
		panic("matrix: dimension mismatch in Sub")
	}
	out := New[T](a.rows, a.cols, a.q)
	for i := range a.data {
		mod := a.q
		if mod == 0 {
			out.data[i] = a.data[i] - b.data[i]
			continue
		}
		av, bv := uint64(a.data[i]), uint64(b.data[i])
		out.data[i] = T((av + mod - bv%mod) % mod)
	}
	return out
}

// ScalarMul returns a*c elementwise mod q.
func ScalarMul[T Elem](a *Matrix[T], c T) *Matrix[T] {
	out := New[T](a.rows, a.cols, a.q)
	for i := range a.data {
		out.data[i] = a.reduce(mulMod(uint64(a.data[i]), uint64(c), a.q))
	}
	return out
}

// Equal reports whether a and b have the same shape and contents.
func Equal[T Elem](a, b *Matrix[T]) bool {
	if !sameShape(a, b) {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

// Transpose returns the transpose of a.
func Transpose[T Elem](a *Matrix[T]) *Matrix[T] {
	out := New[T](a.cols, a.rows, a.q)
	for i := uint64(0); i < a.rows; i++ {
		for j := uint64(0); j < a.cols; j++ {
			out.Set(j, i, a.At(i, j))
		}
	}
	return out
}

// mulMod computes a*b mod q (or native wraparound when q==0), widening to a
// 128-bit intermediate product via bits.Mul64 so callers never need q to fit
// comfortably below 2^32 the way a naive uint64 multiply would require.
func mulMod(a, b, q uint64) uint64 {
	if q == 0 {
		return a * b
	}
	hi, lo := bits.Mul64(a, b)
	if hi == 0 {
		return lo % q
	}
	_, rem := bits.Div64(hi%q, lo, q)
	return rem
}

// Mul computes C = A*B, C[i,j] = sum_k A[i,k]*B[k,j] mod q. The iteration
// order is unspecified beyond being numerically equivalent to the
// mathematical definition, per the FFM contract.
func Mul[T Elem](a, b *Matrix[T]) *Matrix[T] {
	if a.cols != b.rows {
		panic("matrix: dimension mismatch in Mul")
	}
	out := New[T](a.rows, b.cols, a.q)
	for i := uint64(0); i < a.rows; i++ {
		for k := uint64(0); k < a.cols; k++ {
			aik := uint64(a.At(i, k))
			if aik == 0 {
				continue
			}
			for j := uint64(0); j < b.cols; j++ {
				cur := uint64(out.At(i, j))
				out.Set(i, j, T(a.reduce(cur+mulMod(aik, uint64(b.At(k, j)), a.q))))
			}
		}
	}
	return out
}

// MulVec computes the matrix-vector product A*v, where v is a cols x 1
// column matrix. Equivalent to Mul but avoids allocating the single-column
// intermediate products row by row. It is the hot path for Answer
// (D*q_vec) and for the client's H*s; Hint (D*A) uses Mul.
func MulVec[T Elem](a *Matrix[T], v *Matrix[T]) *Matrix[T] {
	if a.cols != v.rows || v.cols != 1 {
		panic("matrix: dimension mismatch in MulVec")
	}
	out := New[T](a.rows, 1, a.q)
	for i := uint64(0); i < a.rows; i++ {
		var acc uint64
		for k := uint64(0); k < a.cols; k++ {
			acc += mulMod(uint64(a.At(i, k)), uint64(v.At(k, 0)), a.q)
			if a.q != 0 {
				acc %= a.q
			}
		}
		out.Set(i, 0, out.reduce(acc))
	}
	return out
}

// Concat appends b's rows below a's rows in place, requiring equal column
// counts.
func (m *Matrix[T]) Concat(b *Matrix[T]) {
	if m.cols != b.cols && m.rows != 0 {
		panic("matrix: dimension mismatch in Concat")
	}
	if m.rows == 0 {
		m.cols = b.cols
	}
	m.data = append(m.data, b.data...)
	m.rows += b.rows
}

// AppendZeros pads n zero rows onto the bottom of m.
func (m *Matrix[T]) AppendZeros(n uint64) {
	m.data = append(m.data, make([]T, n*m.cols)...)
	m.rows += n
}

// SelectRows returns a copy of rows [start, start+n).
func (m *Matrix[T]) SelectRows(start, n uint64) *Matrix[T] {
	out := New[T](n, m.cols, m.q)
	copy(out.data, m.data[start*m.cols:(start+n)*m.cols])
	return out
}
