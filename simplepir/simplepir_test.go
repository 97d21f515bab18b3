package simplepir

import (
	"context"
	"math/rand"
	"testing"

	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"gotest.tools/assert"
)

func toyParams() *Params {
	return &Params{
		N:     512,
		Q:     1 << 32,
		LogQ:  32,
		P:     16,
		Sigma: 3.2,
		Rows:  6,
		Cols:  512,
	}
}

func toyDB(t *testing.T, p *Params) (*Database, []uint64) {
	t.Helper()
	vals := make([]uint64, p.Rows*p.Cols)
	r := rand.New(rand.NewSource(7))
	for i := range vals {
		vals[i] = uint64(r.Intn(int(p.P)))
	}
	db, err := NewDatabase(p, vals)
	assert.NilError(t, err)
	return db, vals
}

func TestParamsValidate(t *testing.T) {
	p := toyParams()
	assert.NilError(t, p.Validate())
}

// TestToyPIRRoundTrip exercises the full Setup/Hint/Query/Answer/Reconstruct
// path end to end and checks every column of a small database is recovered
// exactly.
func TestToyPIRRoundTrip(t *testing.T) {
	p := toyParams()
	db, vals := toyDB(t, p)

	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	srv, hint := NewServer(p, seed, db, nil)

	for j := uint64(0); j < p.Cols; j += 97 {
		cli := NewClient(hint, rand.New(rand.NewSource(int64(j)+1)))
		secret, query, err := cli.Query(j)
		assert.NilError(t, err)
		ans, err := srv.Answer(context.Background(), query)
		assert.NilError(t, err)
		got, err := cli.Reconstruct(secret, ans)
		assert.NilError(t, err)
		for i := uint64(0); i < p.Rows; i++ {
			assert.Equal(t, got[i], vals[i*p.Cols+j])
		}
	}
}

// TestIndependentQueriesDontInterfere checks that two queries built from
// independently sampled secrets against the same hint each recover their own
// column correctly -- the per-query secret and error must not leak into or
// collide with another concurrent query's reconstruction.
func TestIndependentQueriesDontInterfere(t *testing.T) {
	p := toyParams()
	db, vals := toyDB(t, p)
	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	srv, hint := NewServer(p, seed, db, nil)

	cliA := NewClient(hint, rand.New(rand.NewSource(11)))
	cliB := NewClient(hint, rand.New(rand.NewSource(22)))

	secretA, queryA, err := cliA.Query(3)
	assert.NilError(t, err)
	secretB, queryB, err := cliB.Query(400)
	assert.NilError(t, err)

	ansA, err := srv.Answer(context.Background(), queryA)
	assert.NilError(t, err)
	ansB, err := srv.Answer(context.Background(), queryB)
	assert.NilError(t, err)

	gotA, err := cliA.Reconstruct(secretA, ansA)
	assert.NilError(t, err)
	gotB, err := cliB.Reconstruct(secretB, ansB)
	assert.NilError(t, err)
	for i := uint64(0); i < p.Rows; i++ {
		assert.Equal(t, gotA[i], vals[i*p.Cols+3])
		assert.Equal(t, gotB[i], vals[i*p.Cols+400])
	}
}

// TestSquishPreservesAnswers verifies Squish is a transparent, lossless
// optimization: reconstructed columns are identical whether or not the
// server has bit-packed its database before answering.
func TestSquishPreservesAnswers(t *testing.T) {
	p := toyParams()
	dbPlain, vals := toyDB(t, p)
	dbSquished, err := NewDatabase(p, vals)
	assert.NilError(t, err)
	dbSquished.Squish()

	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	srvPlain, hintPlain := NewServer(p, seed, dbPlain, nil)
	srvSquished, hintSquished := NewServer(p, seed, dbSquished, nil)
	assert.Assert(t, matrix.Equal(hintPlain.H, hintSquished.H), "hint differs between plain and squished databases")

	cli := NewClient(hintPlain, rand.New(rand.NewSource(99)))
	secret, query, err := cli.Query(200)
	assert.NilError(t, err)

	ansPlain, err := srvPlain.Answer(context.Background(), query)
	assert.NilError(t, err)
	ansSquished, err := srvSquished.Answer(context.Background(), query)
	assert.NilError(t, err)

	gotPlain, err := cli.Reconstruct(secret, ansPlain)
	assert.NilError(t, err)
	gotSquished, err := cli.Reconstruct(secret, ansSquished)
	assert.NilError(t, err)
	assert.DeepEqual(t, gotPlain, gotSquished)
}

// TestFullDataReconstructsAfterSquish checks that FullData returns the
// original unpacked matrix whether or not Squish has already traded Data
// away for Squished, since callers persisting a database to disk need the
// complete matrix regardless of which in-memory form the server is using.
func TestFullDataReconstructsAfterSquish(t *testing.T) {
	p := toyParams()
	db, _ := toyDB(t, p)
	before := db.Data
	db.Squish()
	assert.Assert(t, db.Data == nil, "expected Data to be nil after Squish")
	got := db.FullData(p.Q)
	assert.Assert(t, matrix.Equal(got, before), "FullData after Squish did not reconstruct the original matrix")
}

// TestHintDeterministicUnderSharedSeed checks that two servers built from
// the same seed over the same database agree exactly on H, since Query
// relies on recomputing A locally from that same seed.
func TestHintDeterministicUnderSharedSeed(t *testing.T) {
	p := toyParams()
	db1, vals := toyDB(t, p)
	db2, err := NewDatabase(p, vals)
	assert.NilError(t, err)

	seed := matrix.Seed{9, 9, 9}
	_, hint1 := NewServer(p, seed, db1, nil)
	_, hint2 := NewServer(p, seed, db2, nil)
	assert.Assert(t, matrix.Equal(hint1.H, hint2.H), "hints differ for identical seed and database")
}

func TestQueryRejectsOutOfRangeColumn(t *testing.T) {
	p := toyParams()
	db, _ := toyDB(t, p)
	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	_, hint := NewServer(p, seed, db, nil)
	cli := NewClient(hint, rand.New(rand.NewSource(1)))
	_, _, err = cli.Query(p.Cols)
	assert.Assert(t, err != nil, "expected DimensionError for out-of-range column")
}

func TestAnswerRejectsWrongShapedQuery(t *testing.T) {
	p := toyParams()
	db, _ := toyDB(t, p)
	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	srv, _ := NewServer(p, seed, db, nil)
	bad := &Query{Vec: matrix.New[uint64](p.Cols+1, 1, p.Q)}
	_, err = srv.Answer(context.Background(), bad)
	assert.Assert(t, err != nil, "expected DimensionError for malformed query vector")
}

// TestQueryVectorRecoversInnerProducts exercises the inner-product query
// path the embedding stage of a two-stage protocol uses: the reconstructed
// per-row score must match the exact integer dot product of that row with
// the query vector.
func TestQueryVectorRecoversInnerProducts(t *testing.T) {
	p := toyParams()
	db, vals := toyDB(t, p)
	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	srv, hint := NewServer(p, seed, db, nil)
	cli := NewClient(hint, rand.New(rand.NewSource(5)))

	r := rand.New(rand.NewSource(6))
	vec := make([]uint64, p.Cols)
	for i := range vec {
		vec[i] = uint64(r.Intn(4))
	}

	secret, query, err := cli.QueryVector(vec)
	assert.NilError(t, err)
	ans, err := srv.Answer(context.Background(), query)
	assert.NilError(t, err)
	scores, err := cli.ReconstructScores(secret, ans)
	assert.NilError(t, err)

	for i := uint64(0); i < p.Rows; i++ {
		var want int64
		for j := uint64(0); j < p.Cols; j++ {
			want += int64(vals[i*p.Cols+j]) * int64(vec[j])
		}
		assert.Equal(t, scores[i], want)
	}
}

func TestQueryVectorRejectsWrongLength(t *testing.T) {
	p := toyParams()
	db, _ := toyDB(t, p)
	seed, err := matrix.NewSeed()
	assert.NilError(t, err)
	_, hint := NewServer(p, seed, db, nil)
	cli := NewClient(hint, rand.New(rand.NewSource(1)))
	_, _, err = cli.QueryVector(make([]uint64, p.Cols-1))
	assert.Assert(t, err != nil, "expected DimensionError for wrong-length vector")
}

// TestErrorBudgetWithinDeltaHalf is a Monte Carlo check that the aggregated
// decode error r[i] = sum_k D[i,k]*e[k] -- the same D-weighted quantity
// Validate's tail bound approximates, not a plain sum of unweighted error
// terms -- stays comfortably under Delta/2 across many trials at these
// parameters, guarding against a future parameter change silently breaking
// correctness.
func TestErrorBudgetWithinDeltaHalf(t *testing.T) {
	p := toyParams()
	delta := p.Delta()
	const trials = 200
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < trials; trial++ {
		row := make([]int64, p.Cols)
		for i := range row {
			row[i] = int64(r.Intn(int(p.P)))
		}
		e := matrix.Gaussian[uint64](rand.NewSource(r.Int63()), p.Cols, 1, 0, p.Sigma)
		var acc int64
		for i := uint64(0); i < p.Cols; i++ {
			// Native (q=0) storage is two's-complement mod 2^64, so a direct
			// uint64->int64 conversion recovers the signed error term.
			acc += row[i] * int64(e.At(i, 0))
		}
		if acc < 0 {
			acc = -acc
		}
		assert.Assert(t, uint64(acc) < delta/2, "trial %d: aggregated error %d exceeded delta/2 %d", trial, acc, delta/2)
	}
}
