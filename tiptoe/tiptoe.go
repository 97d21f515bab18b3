// Package tiptoe implements the two-stage retrieval protocol: an
// inner-product PIR query against an embedding-server database to find
// the best-matching row in a chosen cluster, followed by a row-retrieval
// PIR query against an encoding-server database to fetch the matched
// document.
//
// Grounded on other_examples/ahenzinger-tiptoe__pir.go's client
// construction from a hint (PIR_hint/NewPirClient) and on the teacher
// (dimakogan-checklist)'s proxy/local_index.go for the shape of a
// client-side routing step computed locally before any remote query.
package tiptoe

import (
	"bytes"
	"context"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/pirerr"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
)

// EmbeddingServer and EncodingServer are distinct simplepir.Server
// instances sharing nothing but the (cluster, local_row) addressing
// convention a corpus.Builder guarantees by emitting both databases with
// identical row layout.
type EmbeddingServer struct{ *simplepir.Server }
type EncodingServer struct{ *simplepir.Server }

// Setup is everything a Client downloads once per corpus generation and
// caches until the next refresh: both hints, the centroids, and the
// quantization parameters.
type Setup struct {
	ParamsEmb, ParamsEnc simplepir.Params
	HintEmb, HintEnc     *simplepir.Hint
	Centroids            *corpus.Centroids
	Quant                corpus.QuantizeParams
	RowsPerCluster       uint64
	DocLen               int
}

// EmbedderFunc embeds a query string identically to how the corpus's
// documents were embedded; Client takes this as a function rather than the
// full corpus.Embedder interface since a client only ever embeds, never
// trains or batches.
type EmbedderFunc func(text string) ([]float64, error)

// Answerer is the round-trip a Client needs from each backing server --
// satisfied directly by *simplepir.Server for in-process use, and by an
// RPC client stub for the networked case.
type Answerer interface {
	Answer(ctx context.Context, q *simplepir.Query) (*simplepir.Answer, error)
}

// Client owns two simplepir.Client instances (one per server) plus the
// routing metadata from Setup, and drives the full two-stage protocol.
type Client struct {
	setup   Setup
	embed   EmbedderFunc
	cliEmb  *simplepir.Client
	cliEnc  *simplepir.Client
	embSrv  Answerer
	encSrv  Answerer
}

// NewClient builds a Client from a downloaded Setup and the two servers
// (or their RPC proxies) to query against.
func NewClient(setup Setup, embed EmbedderFunc, embSrv, encSrv Answerer) *Client {
	return &Client{
		setup:  setup,
		embed:  embed,
		cliEmb: simplepir.NewClient(setup.HintEmb, nil),
		cliEnc: simplepir.NewClient(setup.HintEnc, nil),
		embSrv: embSrv,
		encSrv: encSrv,
	}
}

// Search runs the full query phase: embed, route to a cluster, fetch the
// best-scoring row's address via inner-product PIR, then fetch that row's
// bytes via row-retrieval PIR. The encoding query's selector depends on
// the embedding stage's reconstructed result, so this method enforces the
// protocol's strict happens-before between the two stages by construction
// -- there is no way to issue the second query without first completing
// the first.
func (c *Client) Search(ctx context.Context, queryText string) ([]byte, error) {
	const op = "tiptoe.Client.Search"

	qEmb, err := c.embed(queryText)
	if err != nil {
		return nil, pirerr.Wrap(pirerr.InvalidConfig, op, err)
	}
	qEmb = corpus.Normalize(qEmb)

	// A zero (no-keyword-match) embedding has no meaningful direction, so
	// NearestCluster on an all-zero vector would pick centroid 0 anyway
	// under the dot-product tie rule (every score is 0); routing to
	// cluster 0 and relying on the magic-prefix check downstream to report
	// "no match" is the documented resolution for this case.
	cluster := corpus.NearestCluster(qEmb, c.setup.Centroids)

	localRow, err := c.searchCluster(ctx, cluster, qEmb)
	if err != nil {
		return nil, err
	}

	globalRow := uint64(cluster)*c.setup.RowsPerCluster + uint64(localRow)
	return c.fetchRow(ctx, globalRow)
}

// searchCluster issues the inner-product query against the embedding
// server restricted to cluster's block of rows and returns the
// highest-scoring local row index within that block, ties broken to the
// lowest index.
func (c *Client) searchCluster(ctx context.Context, cluster int, qEmb []float64) (int, error) {
	const op = "tiptoe.Client.searchCluster"

	signed := c.setup.Quant.QuantizeSignedVector(qEmb)
	qVec := make([]uint64, len(signed))
	for i, s := range signed {
		qVec[i] = matrix.WrapSigned(s, c.setup.ParamsEmb.Q)
	}
	secret, query, err := c.cliEmb.QueryVector(qVec)
	if err != nil {
		return 0, pirerr.Wrap(pirerr.DimensionError, op, err)
	}

	ans, err := c.embSrv.Answer(ctx, query)
	if err != nil {
		return 0, pirerr.Wrap(pirerr.Transport, op, err)
	}

	scores, err := c.cliEmb.ReconstructScores(secret, ans)
	if err != nil {
		return 0, err
	}

	start := uint64(cluster) * c.setup.RowsPerCluster
	best, bestScore := 0, scores[start]
	for i := uint64(1); i < c.setup.RowsPerCluster; i++ {
		s := scores[start+i]
		if s > bestScore {
			best, bestScore = int(i), s
		}
	}
	return best, nil
}

// fetchRow retrieves the full packed row at globalRow from the encoding
// server with one SimplePIR column query per symbol, issued one after
// another; each query reconstructs a whole column and keeps its entry at
// globalRow. Each query samples its own fresh secret rather than reusing
// one across columns. Pack zero-fills a document up to DocLen, and the
// trailing zero bytes are stripped here, so a document whose own content
// ends in zero bytes comes back without them.
func (c *Client) fetchRow(ctx context.Context, globalRow uint64) ([]byte, error) {
	const op = "tiptoe.Client.fetchRow"
	packedLen := c.setup.ParamsEnc.Cols
	symbols := make([]uint64, packedLen)

	for j := uint64(0); j < packedLen; j++ {
		secret, query, err := c.cliEnc.Query(j)
		if err != nil {
			return nil, pirerr.Wrap(pirerr.DimensionError, op, err)
		}
		ans, err := c.encSrv.Answer(ctx, query)
		if err != nil {
			return nil, pirerr.Wrap(pirerr.Transport, op, err)
		}
		col, err := c.cliEnc.Reconstruct(secret, ans)
		if err != nil {
			return nil, err
		}
		symbols[j] = col[globalRow]
	}

	doc, err := corpus.Unpack(symbols, c.setup.DocLen, c.setup.ParamsEnc.P)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(doc, "\x00"), nil
}
