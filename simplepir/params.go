// Package simplepir implements the LWE-based SimplePIR primitive: setup,
// hint generation, query construction, server answer computation, and
// client reconstruction.
//
// Grounded on ahenzinger-simplepir's Params/Database/SimplePIR (params.go,
// database.go, simple_pir.go) and ryanleh-crowdsurf's lhe/simple_*.go,
// reworked into the teacher (dimakogan-checklist)'s Hint/Query/Answer
// vocabulary (pir/pir.go: HintReq/HintResp/QueryReq/ReconstructFunc) so the
// engine exposes the same shape of client/server interface the teacher's
// RPC and driver layers already know how to wire up.
package simplepir

import (
	"math"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// Params are the public LWE scheme parameters, frozen once per database.
type Params struct {
	N     uint64  // LWE secret dimension
	Q     uint64  // ciphertext modulus (0 means native 2^64 wraparound)
	LogQ  uint64  // bit width backing Q, for wire sizing; 32 or 64
	P     uint64  // plaintext modulus
	Sigma float64 // LWE error stddev

	Rows uint64 // DB height (m_rows)
	Cols uint64 // DB width (m_cols)
}

// Delta is the plaintext scaling factor separating message buckets from
// noise: Delta = floor(Q/P).
func (p *Params) Delta() uint64 {
	if p.Q == 0 {
		// floor(2^64/P), computed without the unrepresentable 2^64.
		const max = ^uint64(0)
		d := max / p.P
		if max%p.P == p.P-1 {
			d++
		}
		return d
	}
	return p.Q / p.P
}

// Validate enforces the parameter-soundness requirements from the design:
// n large enough for standard LWE hardness, and an error budget that keeps
// the aggregated noise under Delta/2 with probability >= 1 - 2^-40.
func (p *Params) Validate() error {
	const op = "simplepir.Params.Validate"
	if p.N < 512 {
		return pirerr.New(pirerr.InvalidConfig, op, "LWE dimension n must be >= 512")
	}
	if p.P < 2 {
		return pirerr.New(pirerr.InvalidConfig, op, "plaintext modulus p must be >= 2")
	}
	if (p.Q != 0 && p.Q%p.P != 0) || (p.Q == 0 && p.P&(p.P-1) != 0) {
		return pirerr.New(pirerr.InvalidConfig, op, "plaintext modulus p must divide q")
	}
	if p.Sigma <= 0 {
		return pirerr.New(pirerr.InvalidConfig, op, "error stddev sigma must be positive")
	}
	if p.Rows == 0 || p.Cols == 0 {
		return pirerr.New(pirerr.InvalidConfig, op, "database dimensions must be positive")
	}
	delta := float64(p.Delta())
	if tailBound(p.Sigma, p.Cols, p.P) >= delta/2 {
		return pirerr.New(pirerr.InvalidConfig, op,
			"error budget exceeds Delta/2 under standard tail bounds for these parameters")
	}
	return nil
}

// tailBound estimates, at 2^-40 confidence, the magnitude of the aggregated
// decode error the server's answer actually carries: r[i] = sum_k
// D[i,k]*e[k], not a sum of unweighted error terms. D's entries are
// plaintext-valued and bounded by p (Database's doc comment), so each term's
// magnitude is scaled by up to p versus a single error sample, and the sum's
// standard deviation scales with p accordingly: a standard
// p*sqrt(samples)*sigma*z tail bound where z is the 2^-40 one-sided normal
// quantile (~13.4), matching the closed-form check ahenzinger-simplepir's
// params.csv table encodes empirically per (n, m, logq, p).
func tailBound(sigma float64, samples, p uint64) float64 {
	const zScore40 = 13.4
	return zScore40 * sigma * float64(p) * math.Sqrt(float64(samples))
}

// Round performs nearest-integer rounding of x/Delta mod P, ties away from
// zero, per the reconstruction contract.
func (p *Params) Round(x uint64) uint64 {
	delta := p.Delta()
	v := (x + delta/2) / delta
	return v % p.P
}

// ExpandA deterministically regenerates the public matrix A in Z_q^{cols x n}
// from seedA, matching what the client computed locally.
func (p *Params) ExpandA(seed matrix.Seed) *matrix.Matrix[uint64] {
	return matrix.Expand[uint64](seed, p.Cols, p.N, p.Q)
}
