package simplepir

import (
	"context"
	"math/bits"
	"math/rand"
	"runtime"
	"sync"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// State is the per-query client state machine named in the design: a
// client moves through these phases exactly once per query. It exists
// mainly for callers that want to assert they're calling things in order;
// the engine's functions themselves are stateless and safe to call
// directly.
type State int

const (
	Setup State = iota
	Querying
	AwaitingAnswer
	Reconstructing
	Done
)

// Hint is H = D.A, the client-side preprocessed data downloaded once per
// database and replaced on refresh.
type Hint struct {
	Params *Params
	Seed   matrix.Seed
	H      *matrix.Matrix[uint64]
}

// Secret is the fresh-per-query LWE secret s, kept client-side only.
type Secret struct {
	s *matrix.Matrix[uint64]
}

// Query is the client-to-server message: a selector-masked LWE sample.
type Query struct {
	Vec *matrix.Matrix[uint64]
}

// Answer is the server-to-client message: D . q_vec.
type Answer struct {
	Vec *matrix.Matrix[uint64]
}

// Server exposes hint production and query answering over one immutable
// Database, matching the teacher's HintReq/QueryReq Process(db) contract
// generalized from byte rows to Z_q matrices.
type Server struct {
	params *Params
	seed   matrix.Seed
	a      *matrix.Matrix[uint64]
	db     *Database
}

// NewServer runs Setup+Hint over db and returns a Server ready to answer
// queries. a, if nil, is expanded from seed; passing a precomputed a avoids
// recomputing the PRG expansion across many databases sharing one seed.
func NewServer(params *Params, seed matrix.Seed, db *Database, a *matrix.Matrix[uint64]) (*Server, *Hint) {
	if a == nil {
		a = params.ExpandA(seed)
	}
	h := db.Hint(a)
	return &Server{params: params, seed: seed, a: a, db: db},
		&Hint{Params: params, Seed: seed, H: h}
}

// Answer computes a_vec = D . q_vec, sharding row ranges across a worker
// pool sized to GOMAXPROCS so the embarrassingly-parallel row reduction
// (spec.md §9) doesn't serialize on a single core. The core does no I/O;
// ctx is checked once, after every shard has finished, and a cancelled ctx
// makes Answer return a Transport error instead of the computed answer.
func (srv *Server) Answer(ctx context.Context, q *Query) (*Answer, error) {
	const op = "simplepir.Server.Answer"
	expectedRows := srv.params.Cols
	if q.Vec.Rows() != expectedRows || q.Vec.Cols() != 1 {
		return nil, pirerr.New(pirerr.DimensionError, op, "query vector has wrong shape")
	}

	workers := runtime.GOMAXPROCS(0)
	rows := srv.params.Rows
	if uint64(workers) > rows {
		workers = int(rows)
	}
	if workers < 1 {
		workers = 1
	}
	shard := (rows + uint64(workers) - 1) / uint64(workers)

	out := matrix.New[uint64](rows, 1, srv.params.Q)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := uint64(w) * shard
		if start >= rows {
			break
		}
		n := shard
		if start+n > rows {
			n = rows - start
		}
		wg.Add(1)
		go func(start, n uint64) {
			defer wg.Done()
			partial := srv.db.AnswerRows(q.Vec, start, n, srv.params.Q)
			for i := uint64(0); i < n; i++ {
				out.Set(start+i, 0, partial.At(i, 0))
			}
		}(start, n)
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return nil, pirerr.Wrap(pirerr.Transport, op, ctx.Err())
	default:
	}

	return &Answer{Vec: out}, nil
}

// Client drives the per-query protocol against one Server (or its RPC
// proxy): Query (or QueryVector), then Reconstruct (or ReconstructScores)
// once the Answer comes back.
type Client struct {
	params *Params
	hint   *Hint
	rng    *rand.Rand
}

// NewClient initializes a client from a downloaded Hint, per the
// Init(Hint) contract. A nil rng is replaced by a math/rand generator
// seeded with 64 bits drawn from the OS CSPRNG (via matrix.NewSeed); the
// generator itself is math/rand, not a cryptographically secure one.
func NewClient(hint *Hint, rng *rand.Rand) *Client {
	if rng == nil {
		fresh, err := matrix.NewSeed()
		if err != nil {
			panic(err)
		}
		rng = rand.New(rand.NewSource(int64(seedToInt64(fresh))))
	}
	return &Client{params: hint.Params, hint: hint, rng: rng}
}

func seedToInt64(s matrix.Seed) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(s[i])
	}
	return v
}

// Query samples a fresh secret s and error e and builds the LWE query
// vector for column index j: q_vec = A.s + e + Delta.u_j.
func (c *Client) Query(j uint64) (*Secret, *Query, error) {
	const op = "simplepir.Client.Query"
	if j >= c.params.Cols {
		return nil, nil, pirerr.New(pirerr.DimensionError, op, "column index out of range")
	}
	a := c.params.ExpandA(c.hint.Seed)

	s := matrix.Rand[uint64](c.rng64(), c.params.N, 1, c.params.Q)
	e := matrix.Gaussian[uint64](c.rng, c.params.Cols, 1, c.params.Q, c.params.Sigma)

	as := matrix.MulVec(a, s)
	qVec := matrix.Add(as, e)
	delta := c.params.Delta()
	qVec.Set(j, 0, addMod(qVec.At(j, 0), delta, c.params.Q))

	return &Secret{s: s}, &Query{Vec: qVec}, nil
}

func addMod(a, b, q uint64) uint64 {
	if q == 0 {
		return a + b
	}
	return (a + b) % q
}

// QueryVector builds an inner-product query: q_vec = A.s + e + Delta.vec,
// for the full plaintext vector vec rather than a single one-hot selector.
// This is what the embedding stage of a two-stage retrieval protocol uses
// in place of Query: instead of extracting one column of D, the server's
// answer becomes, per row, Delta times that row's dot product with vec
// (plus noise) -- an inner-product PIR query rather than an index query.
func (c *Client) QueryVector(vec []uint64) (*Secret, *Query, error) {
	const op = "simplepir.Client.QueryVector"
	if uint64(len(vec)) != c.params.Cols {
		return nil, nil, pirerr.New(pirerr.DimensionError, op, "vector length does not match Cols")
	}
	a := c.params.ExpandA(c.hint.Seed)

	s := matrix.Rand[uint64](c.rng64(), c.params.N, 1, c.params.Q)
	e := matrix.Gaussian[uint64](c.rng, c.params.Cols, 1, c.params.Q, c.params.Sigma)

	as := matrix.MulVec(a, s)
	qVec := matrix.Add(as, e)
	delta := c.params.Delta()
	for i, v := range vec {
		qVec.Set(uint64(i), 0, addMod(qVec.At(uint64(i), 0), mulModDelta(delta, v, c.params.Q), c.params.Q))
	}

	return &Secret{s: s}, &Query{Vec: qVec}, nil
}

func mulModDelta(delta, v, q uint64) uint64 {
	if q == 0 {
		return delta * v
	}
	hi, lo := bits.Mul64(delta, v)
	if hi == 0 {
		return lo % q
	}
	_, rem := bits.Div64(hi%q, lo, q)
	return rem
}

// ReconstructScores recovers the per-row inner-product scores D[i,:].vec
// from a QueryVector answer -- the reconstruction half of QueryVector. It
// undoes the Delta scaling with the same nearest-integer rounding
// Reconstruct uses, reading r[i] as a signed residue, and returns each
// score as a signed int64 in [-P/2, P/2]. Since Delta*P == Q, the answer
// carries each score only mod P: a returned score equals the exact dot
// product only when that product lies in (-P/2, P/2), and is otherwise the
// dot product's centered residue mod P.
func (c *Client) ReconstructScores(secret *Secret, ans *Answer) ([]int64, error) {
	const op = "simplepir.Client.ReconstructScores"
	if ans.Vec.Rows() != c.params.Rows {
		return nil, pirerr.New(pirerr.DimensionError, op, "answer vector has wrong shape")
	}
	hs := matrix.MulVec(c.hint.H, secret.s)
	r := matrix.Sub(ans.Vec, hs)

	delta := c.params.Delta()
	out := make([]int64, c.params.Rows)
	for i := uint64(0); i < c.params.Rows; i++ {
		out[i] = roundSigned(r.At(i, 0), delta, c.params.Q)
	}
	return out, nil
}

// roundSigned interprets x as a signed residue mod q (or mod 2^64 under
// native wraparound) before dividing by delta and rounding to nearest,
// since an inner-product score's true value may be negative.
func roundSigned(x, delta, q uint64) int64 {
	mod := q
	if mod == 0 {
		mod = 0 // native: x is already a valid two's-complement uint64
	}
	var signed int64
	if mod != 0 && x > mod/2 {
		signed = -int64(mod - x)
	} else {
		signed = int64(x)
	}
	d := int64(delta)
	if signed >= 0 {
		return (signed + d/2) / d
	}
	return -((-signed + d/2) / d)
}

// rng64 adapts c.rng (a math/rand.Rand) to the io.Reader Rand/Gaussian
// expect, drawing raw bytes from it rather than the production CSPRNG --
// appropriate here since s only needs to be unpredictable to the server,
// and tests want reproducibility from a seeded source.
func (c *Client) rng64() *randReader { return &randReader{c.rng} }

type randReader struct{ r *rand.Rand }

func (rr *randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Intn(256))
	}
	return len(p), nil
}

// DummyQuery builds a well-formed query for column 0, for a caller that
// must issue a PIR request without leaking that no real selection was
// made.
func (c *Client) DummyQuery() (*Secret, *Query, error) {
	return c.Query(0)
}

// Reconstruct recovers the plaintext column D[:,j] from the server's
// answer: r = a_vec - H.s, then nearest-integer rounding of r[i]/Delta mod p
// per row, ties away from zero.
func (c *Client) Reconstruct(secret *Secret, ans *Answer) ([]uint64, error) {
	const op = "simplepir.Client.Reconstruct"
	if ans.Vec.Rows() != c.params.Rows {
		return nil, pirerr.New(pirerr.DimensionError, op, "answer vector has wrong shape")
	}
	hs := matrix.MulVec(c.hint.H, secret.s)
	r := matrix.Sub(ans.Vec, hs)

	out := make([]uint64, c.params.Rows)
	for i := uint64(0); i < c.params.Rows; i++ {
		out[i] = c.params.Round(r.At(i, 0))
	}
	return out, nil
}
