package corpus

import "math"

// QuantizeParams is the public affine real->Z_p transform shipped to
// clients alongside centroids, so a query embedding can be quantized
// identically to how the corpus's embeddings were.
//
// Quantization is centered at zero rather than at p/2: a real value of 0
// maps to the integer 0, not p/2. This matters beyond cosmetics -- an
// inner-product PIR query sums Delta-scaled products of these quantized
// coordinates over an encrypted channel, and an off-center mapping would
// inject a per-row bias term (proportional to that row's coordinate sum)
// into every score, skewing cluster-local ranking toward rows with more
// nonzero coordinates regardless of actual similarity to the query.
// Centering at zero keeps the quantized inner product proportional to the
// true real-valued one, up to quantization and LWE noise.
type QuantizeParams struct {
	Min, Max float64
	P        uint64
}

// FixedRangeQuantizeParams builds params over the fixed [-1,1] range, the
// simpler of the two options the design allows (the other being corpus-wide
// min/max) -- appropriate once embeddings are L2-normalized, since every
// coordinate of a normalized vector already lies in [-1,1].
func FixedRangeQuantizeParams(p uint64) QuantizeParams {
	return QuantizeParams{Min: -1, Max: 1, P: p}
}

func (q QuantizeParams) scale() float64 {
	maxAbs := math.Abs(q.Min)
	if math.Abs(q.Max) > maxAbs {
		maxAbs = math.Abs(q.Max)
	}
	return float64(q.P/2-1) / maxAbs
}

// QuantizeSigned maps a real value in [Min,Max] to a signed integer in
// roughly (-p/2, p/2), clamping out-of-range inputs rather than wrapping,
// since an unnormalized or adversarial input should saturate instead of
// aliasing to an unrelated bucket.
func (q QuantizeParams) QuantizeSigned(x float64) int64 {
	if x < q.Min {
		x = q.Min
	}
	if x > q.Max {
		x = q.Max
	}
	return int64(math.Round(x * q.scale()))
}

// Quantize returns QuantizeSigned's result as its Z_p residue: non-negative
// values pass through unchanged, negative ones wrap to p+v.
func (q QuantizeParams) Quantize(x float64) uint64 {
	s := q.QuantizeSigned(x)
	if s >= 0 {
		return uint64(s)
	}
	return q.P - uint64(-s)
}

// Dequantize reverses Quantize approximately, landing within one bucket
// width of the original value.
func (q QuantizeParams) Dequantize(v uint64) float64 {
	var s int64
	if v > q.P/2 {
		s = -int64(q.P - v)
	} else {
		s = int64(v)
	}
	return float64(s) / q.scale()
}

// QuantizeVector applies Quantize coordinatewise, for callers that just
// want a Z_p-residue vector (e.g. for wire transmission or testing).
func (q QuantizeParams) QuantizeVector(v []float64) []uint64 {
	out := make([]uint64, len(v))
	for i, x := range v {
		out[i] = q.Quantize(x)
	}
	return out
}

// QuantizeSignedVector applies QuantizeSigned coordinatewise -- the form
// an inner-product PIR query or embedding-database row actually needs,
// since each coordinate must be embedded into Z_q (not Z_p) as a small
// signed integer, not as its unrelated Z_p residue.
func (q QuantizeParams) QuantizeSignedVector(v []float64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = q.QuantizeSigned(x)
	}
	return out
}
