// Package rpcserver exposes an embedding/encoding server pair over
// net/rpc, serving the current refresh.Snapshot for every request.
//
// Grounded on the teacher (dimakogan-checklist)'s rpc/server.go: the same
// HTTPS-with-self-signed-cert listener built from
// github.com/rocketlaunchr/https-go, the same binc wire codec from
// github.com/ugorji/go/codec, and the same tcpRpcServer fallback for
// non-TLS deployments. Reworked to register one RPC service (Gateway)
// answering both stages instead of the teacher's single PirServerDriver,
// since a Tiptoe deployment always serves both databases from the same
// process in this module (a split-process deployment would register two
// instances under distinct names, which this type supports unchanged).
package rpcserver

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"strings"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/matrix"
	"github.com/dimakogan/tiptoe-simplepir/refresh"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"github.com/dimakogan/tiptoe-simplepir/wire"
	"github.com/rocketlaunchr/https-go"
	"github.com/ugorji/go/codec"
)

// WireMatrix carries a matrix.Matrix[uint64] across the net/rpc boundary as
// bytes pre-serialized by wire.EncodeMatrix. matrix.Matrix keeps its
// rows/cols/q/data fields unexported, and CodecHandle's BincHandle encodes
// by reflection, so a *matrix.Matrix[uint64] passed directly as an RPC
// arg/reply would cross the wire as an empty matrix -- every field
// reflection could see is this Bytes slice, nothing else. driver/persist.go
// hits the same hazard on the gob path and fixes it the same way.
type WireMatrix struct {
	Q     uint64
	Bytes []byte
}

// matrixWidth picks the wire.EncodeMatrix word width from a modulus: 4 bytes
// when q is known and fits in 32 bits, 8 bytes otherwise (including q == 0,
// native 2^64 wraparound).
func matrixWidth(q uint64) int {
	if q != 0 && q <= 1<<32 {
		return 4
	}
	return 8
}

func encodeWireMatrix(m *matrix.Matrix[uint64]) (WireMatrix, error) {
	var buf bytes.Buffer
	if err := wire.EncodeMatrix(&buf, m, matrixWidth(m.Q())); err != nil {
		return WireMatrix{}, err
	}
	return WireMatrix{Q: m.Q(), Bytes: buf.Bytes()}, nil
}

func decodeWireMatrix(w WireMatrix) (*matrix.Matrix[uint64], error) {
	return wire.DecodeMatrix[uint64](bytes.NewReader(w.Bytes), w.Q, matrixWidth(w.Q))
}

// WireQuery and WireAnswer are the wire-safe shapes of simplepir.Query and
// simplepir.Answer, exported so rpcclient can build/consume them without
// reaching into this package's unexported encode/decode helpers.
type WireQuery struct{ Vec WireMatrix }
type WireAnswer struct{ Vec WireMatrix }

// EncodeQuery converts q into its wire-safe representation.
func EncodeQuery(q *simplepir.Query) (*WireQuery, error) {
	vec, err := encodeWireMatrix(q.Vec)
	if err != nil {
		return nil, err
	}
	return &WireQuery{Vec: vec}, nil
}

// DecodeQuery reverses EncodeQuery.
func DecodeQuery(w *WireQuery) (*simplepir.Query, error) {
	vec, err := decodeWireMatrix(w.Vec)
	if err != nil {
		return nil, err
	}
	return &simplepir.Query{Vec: vec}, nil
}

// EncodeAnswer converts ans into its wire-safe representation.
func EncodeAnswer(ans *simplepir.Answer) (*WireAnswer, error) {
	vec, err := encodeWireMatrix(ans.Vec)
	if err != nil {
		return nil, err
	}
	return &WireAnswer{Vec: vec}, nil
}

// DecodeAnswer reverses EncodeAnswer.
func DecodeAnswer(w *WireAnswer) (*simplepir.Answer, error) {
	vec, err := decodeWireMatrix(w.Vec)
	if err != nil {
		return nil, err
	}
	return &simplepir.Answer{Vec: vec}, nil
}

// WireHint is the wire-safe shape of simplepir.Hint: Params and Seed have no
// unexported fields (Seed is a plain [32]byte array), so only H needs
// routing through WireMatrix.
type WireHint struct {
	Params *simplepir.Params
	Seed   matrix.Seed
	H      WireMatrix
}

// EncodeHint converts h into its wire-safe representation.
func EncodeHint(h *simplepir.Hint) (WireHint, error) {
	wm, err := encodeWireMatrix(h.H)
	if err != nil {
		return WireHint{}, err
	}
	return WireHint{Params: h.Params, Seed: h.Seed, H: wm}, nil
}

// Decode reverses EncodeHint.
func (w WireHint) Decode() (*simplepir.Hint, error) {
	h, err := decodeWireMatrix(w.H)
	if err != nil {
		return nil, err
	}
	return &simplepir.Hint{Params: w.Params, Seed: w.Seed, H: h}, nil
}

// CodecHandle returns the wire codec every client and server in this
// module must agree on: binc with struct-as-array encoding, matching the
// teacher's rpc/serialization.go.
func CodecHandle() codec.Handle {
	h := codec.BincHandle{}
	h.StructToArray = true
	return &h
}

// Gateway is the RPC-exported service. Its methods take and return wire
// types (WireQuery, WireAnswer) in net/rpc's (args, *reply) error form,
// with no Context argument, and read the Database to serve from
// mgr.Current() fresh on every call so a concurrent refresh is picked up
// for the next request without restarting the listener.
type Gateway struct {
	mgr   *refresh.Manager
	vocab []string
}

// NewGateway wraps mgr for RPC export. vocab is the embedder's vocabulary,
// shipped to clients so they can reconstruct an identical embedder; it's
// passed in separately rather than read off the embedder itself, since
// refresh.Manager doesn't assume its embedder is a corpus.MockEmbedder.
func NewGateway(mgr *refresh.Manager, vocab []string) *Gateway {
	return &Gateway{mgr: mgr, vocab: vocab}
}

// AnswerEmbedding answers an inner-product query against the current
// snapshot's embedding database. The query and answer vectors cross the
// wire as WireQuery/WireAnswer rather than simplepir.Query/Answer directly,
// since the latter embed *matrix.Matrix[uint64] and CodecHandle's
// reflection-based codec cannot see its unexported fields.
func (g *Gateway) AnswerEmbedding(req *WireQuery, resp *WireAnswer) error {
	q, err := DecodeQuery(req)
	if err != nil {
		return err
	}
	ans, err := g.mgr.Current().ServerEmb.Answer(context.Background(), q)
	if err != nil {
		return err
	}
	wa, err := EncodeAnswer(ans)
	if err != nil {
		return err
	}
	*resp = *wa
	return nil
}

// AnswerEncoding answers a row-retrieval query against the current
// snapshot's encoding database.
func (g *Gateway) AnswerEncoding(req *WireQuery, resp *WireAnswer) error {
	q, err := DecodeQuery(req)
	if err != nil {
		return err
	}
	ans, err := g.mgr.Current().ServerEnc.Answer(context.Background(), q)
	if err != nil {
		return err
	}
	wa, err := EncodeAnswer(ans)
	if err != nil {
		return err
	}
	*resp = *wa
	return nil
}

// Hints returns both of the current snapshot's hints plus its generation,
// the one-time download a client needs before it can issue any query.
func (g *Gateway) Hints(_ int, resp *HintsResp) error {
	snap := g.mgr.Current()
	hintEmb, err := EncodeHint(snap.HintEmb)
	if err != nil {
		return err
	}
	hintEnc, err := EncodeHint(snap.HintEnc)
	if err != nil {
		return err
	}
	resp.HintEmb = hintEmb
	resp.HintEnc = hintEnc
	resp.Generation = snap.Generation
	resp.Centroids = snap.Corpus.Centroids
	resp.Quant = snap.Corpus.Quant
	resp.RowsPerCluster = snap.Corpus.RowsPerCluster
	resp.DocLen = snap.Corpus.DocLen
	resp.ParamsEmb = snap.Corpus.ParamsEmb
	resp.ParamsEnc = snap.Corpus.ParamsEnc
	resp.Vocab = g.vocab
	return nil
}

// HintsResp bundles everything tiptoe.Setup needs, so a client can build
// its Setup from a single round trip. HintEmb/HintEnc are WireHint, not
// *simplepir.Hint, for the same reflection-can't-see-unexported-fields
// reason as WireQuery/WireAnswer.
type HintsResp struct {
	HintEmb, HintEnc     WireHint
	ParamsEmb, ParamsEnc simplepir.Params
	Centroids            *corpus.Centroids
	Quant                corpus.QuantizeParams
	RowsPerCluster       uint64
	DocLen               int
	Generation           uint64
	Vocab                []string
}

// Server listens for RPC connections and serves a Gateway, either over
// TLS (self-signed, matching the teacher's https.Server helper) or plain
// TCP.
type Server struct {
	useTLS bool
	ln     net.Listener
	http   *http.Server
	rpc    *rpc.Server
}

// Listen starts a Server bound to port, registering gw under the name
// "Gateway".
func Listen(port int, useTLS bool, gw *Gateway) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Gateway", gw); err != nil {
		return nil, err
	}

	if useTLS {
		httpSrv, err := https.Server(fmt.Sprintf("%d", port),
			https.GenerateOptions{Host: "tiptoe.app", ECDSACurve: "P256"})
		if err != nil {
			return nil, err
		}
		handle := CodecHandle()
		httpSrv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, rpc.DefaultRPCPath) {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-type", "application/octet-stream")
			sc := &serverCodec{
				w:       w,
				encoder: codec.NewEncoder(w, handle),
				decoder: codec.NewDecoder(r.Body, handle),
			}
			if err := rpcServer.ServeRequest(sc); err != nil {
				w.Header().Set("X-Rpc-Error", err.Error())
				w.WriteHeader(http.StatusInternalServerError)
			}
		})
		return &Server{useTLS: true, http: httpSrv, rpc: rpcServer}, nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen tcp: %w", err)
	}
	return &Server{useTLS: false, ln: ln, rpc: rpcServer}, nil
}

// Addr returns the address a non-TLS Server is listening on, useful when
// Listen was called with port 0 to get an OS-assigned port (as in tests).
// It panics if called on a TLS server, which has no net.Listener of its
// own.
func (s *Server) Addr() net.Addr {
	if s.useTLS {
		panic("rpcserver: Addr is not available for a TLS server")
	}
	return s.ln.Addr()
}

// Serve blocks, handling connections until the listener is closed.
func (s *Server) Serve() error {
	if s.useTLS {
		log.Printf("rpcserver: serving over HTTPS on %s", s.http.Addr)
		err := s.http.ListenAndServeTLS("", "")
		if err == http.ErrServerClosed {
			log.Println("rpcserver: shutdown")
			return nil
		}
		return err
	}

	log.Printf("rpcserver: serving over TCP on %s", s.ln.Addr())
	handle := CodecHandle()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return fmt.Errorf("tcp accept: %w", err)
		}
		go s.rpc.ServeCodec(codec.GoRpc.ServerCodec(conn, handle))
	}
}

// Close stops accepting new connections/requests.
func (s *Server) Close() error {
	if s.useTLS {
		return s.http.Close()
	}
	return s.ln.Close()
}

// serverCodec adapts a single HTTP request/response pair to rpc.ServerCodec,
// matching the teacher's rpc/server.go httpServerCodec.
type serverCodec struct {
	w       http.ResponseWriter
	encoder *codec.Encoder
	decoder *codec.Decoder
}

func (c *serverCodec) ReadRequestHeader(h *rpc.Request) error { return c.decoder.Decode(h) }
func (c *serverCodec) ReadRequestBody(body interface{}) error { return c.decoder.Decode(body) }
func (c *serverCodec) WriteResponse(h *rpc.Response, body interface{}) error {
	if h.Error != "" {
		c.w.Header().Set("X-Rpc-Error", h.Error)
	}
	if err := c.encoder.Encode(h); err != nil {
		return err
	}
	return c.encoder.Encode(body)
}
func (c *serverCodec) Close() error { return nil }
