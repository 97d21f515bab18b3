package simplepir

import (
	"math/bits"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// Database is the Rows x Cols matrix being served, D in the design. Entries
// are small in magnitude (bounded by Params.P): either Z_p values, or small
// signed values wrapped into Z_Q, as the embedding database stores negative
// coordinates. They are stored in a matrix whose arithmetic modulus is Q,
// since every operation performed on Data -- the hint matmul and the answer
// matvec -- must happen over the ciphertext ring.
//
// Once Squish has been called, Data is nil and Squished holds a
// bit-packed, memory-compact encoding; AnswerRows transparently unpacks the
// requested row range before multiplying. This trades CPU (one unpack pass
// per Answer) for resident memory, unlike ahenzinger-simplepir's
// MatrixMulVecPacked which multiplies directly against packed words.
type Database struct {
	Data *matrix.Matrix[uint64]

	Squished  *matrix.Matrix[uint64]
	basis     uint64
	squishing uint64
	origCols  uint64
}

// NewDatabase wraps a raw row-major DB, whose entries are Z_p-valued but
// embedded into Z_q (p.Q, not p.P) because every arithmetic operation the
// engine performs on it -- the hint matmul D.A and the answer matvec D.q_vec
// -- happens over the ciphertext ring, not the plaintext one. A value count
// that does not match Rows*Cols is reported as a DimensionError.
func NewDatabase(p *Params, vals []uint64) (*Database, error) {
	const op = "simplepir.NewDatabase"
	if uint64(len(vals)) != p.Rows*p.Cols {
		return nil, pirerr.New(pirerr.DimensionError, op, "value count does not match Rows*Cols")
	}
	m := matrix.New[uint64](p.Rows, p.Cols, p.Q)
	for i, v := range vals {
		m.Set(uint64(i)/p.Cols, uint64(i)%p.Cols, v)
	}
	return &Database{Data: m}, nil
}

// Hint computes H = D . A, the client-side preprocessed data downloaded
// once per database, per the SimplePIR hint contract. D is read through
// FullData, so a database that has already been squished works too.
func (db *Database) Hint(a *matrix.Matrix[uint64]) *matrix.Matrix[uint64] {
	return matrix.Mul(db.FullData(a.Q()), a)
}

// AnswerRows computes rows [start, start+n) of a_vec = D . q_vec, sharded over row ranges so the server
// can parallelize across workers (spec.md's "embarrassingly parallel over
// rows"); the sharding itself lives in Server.Answer. modQ is the
// ciphertext modulus the unpacked row matrix must carry, not P.
func (db *Database) AnswerRows(q *matrix.Matrix[uint64], start, n uint64, modQ uint64) *matrix.Matrix[uint64] {
	if db.Squished != nil {
		return matrix.MulVec(db.unsquishRows(start, n, modQ), q)
	}
	return matrix.MulVec(db.Data.SelectRows(start, n), q)
}

// Squish bit-packs Data into fewer machine words, using basis bits per
// lane, squishing lanes per uint64: basis is the bit width of Data's
// largest entry, so packing is lossless, and squishing = 64/basis. Ported
// from ahenzinger-simplepir's Database.Squish, except that basis is derived
// from the data and the packed form is decompressed on the fly at Answer
// time rather than multiplied against directly.
func (db *Database) Squish() {
	rows, cols := db.Data.Rows(), db.Data.Cols()
	var maxVal uint64
	for _, v := range db.Data.Data() {
		if v > maxVal {
			maxVal = v
		}
	}
	basis := uint64(bits.Len64(maxVal))
	if basis == 0 {
		basis = 1
	}
	squishing := 64 / basis
	packedCols := (cols + squishing - 1) / squishing
	packed := matrix.New[uint64](rows, packedCols, 0)
	for i := uint64(0); i < rows; i++ {
		for pc := uint64(0); pc < packedCols; pc++ {
			var word uint64
			for lane := uint64(0); lane < squishing; lane++ {
				col := pc*squishing + lane
				if col >= cols {
					break
				}
				word |= db.Data.At(i, col) << (lane * basis)
			}
			packed.Set(i, pc, word)
		}
	}
	db.basis = basis
	db.squishing = squishing
	db.origCols = cols
	db.Squished = packed
	db.Data = nil
}

// FullData returns the database's complete unpacked matrix regardless of
// whether Squish has already traded Data away for Squished: callers that
// need the whole matrix at once (e.g. driver.SaveCorpus, persisting the
// served database to disk) call this instead of reading Data directly,
// which would be nil once compaction has happened.
func (db *Database) FullData(modQ uint64) *matrix.Matrix[uint64] {
	if db.Data != nil {
		return db.Data
	}
	return db.unsquishRows(0, db.Squished.Rows(), modQ)
}

func (db *Database) unsquishRows(start, n, modQ uint64) *matrix.Matrix[uint64] {
	out := matrix.New[uint64](n, db.origCols, modQ)
	mask := (uint64(1) << db.basis) - 1
	for i := uint64(0); i < n; i++ {
		for pc := uint64(0); pc < db.Squished.Cols(); pc++ {
			word := db.Squished.At(start+i, pc)
			for lane := uint64(0); lane < db.squishing; lane++ {
				col := pc*db.squishing + lane
				if col >= db.origCols {
					break
				}
				out.Set(i, col, (word>>(lane*db.basis))&mask)
			}
		}
	}
	return out
}
