// Package rpcclient is the client-side half of rpcserver: a net/rpc proxy
// implementing tiptoe.Answerer over a TCP or TLS connection, plus a
// one-shot Hints call to bootstrap a tiptoe.Setup.
//
// Grounded on the teacher (dimakogan-checklist)'s rpc/client.go: the same
// ClientProxy shape (cached persistent connection vs. dial-per-call), the
// same httpPostCodec for the TLS transport, and the same
// github.com/ugorji/go/codec wire codec the server side uses.
package rpcclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/rpc"

	"github.com/dimakogan/tiptoe-simplepir/rpcserver"
	"github.com/dimakogan/tiptoe-simplepir/simplepir"
	"github.com/ugorji/go/codec"
)

// Proxy is a connection to one rpcserver.Server, reused across calls when
// persistent is set and always reused when useTLS is set (an HTTPS
// transport pools its own connections regardless).
type Proxy struct {
	serverAddr string
	useTLS     bool
	persistent bool
	handle     codec.Handle

	cachedCodec  rpc.ClientCodec
	cachedClient *rpc.Client
}

// NewProxy dials (or prepares to dial) serverAddr.
func NewProxy(serverAddr string, useTLS bool, persistent bool) (*Proxy, error) {
	p := &Proxy{serverAddr: serverAddr, useTLS: useTLS, handle: rpcserver.CodecHandle()}
	if persistent || useTLS {
		c, err := p.newCodec()
		if err != nil {
			return nil, err
		}
		p.cachedCodec = c
		p.cachedClient = rpc.NewClientWithCodec(c)
		p.persistent = true
	}
	return p, nil
}

func (p *Proxy) newCodec() (rpc.ClientCodec, error) {
	if p.useTLS {
		return newHTTPPostCodec(p.handle, p.serverAddr), nil
	}
	conn, err := net.Dial("tcp", p.serverAddr)
	if err != nil {
		return nil, err
	}
	return codec.GoRpc.ClientCodec(conn, p.handle), nil
}

func (p *Proxy) client() (*rpc.Client, error) {
	if p.persistent {
		return p.cachedClient, nil
	}
	c, err := p.newCodec()
	if err != nil {
		return nil, err
	}
	return rpc.NewClientWithCodec(c), nil
}

// Call invokes serviceMethod, e.g. "Gateway.AnswerEmbedding".
func (p *Proxy) Call(serviceMethod string, args, reply interface{}) error {
	client, err := p.client()
	if err != nil {
		return err
	}
	err = client.Call(serviceMethod, args, reply)
	if !p.persistent {
		client.Close()
	}
	return err
}

// Close releases a persistent connection. A no-op for non-persistent
// proxies, which close their connection after every call.
func (p *Proxy) Close() {
	if p.persistent {
		p.cachedClient.Close()
		p.cachedCodec.Close()
	}
}

// AnswerEmbedding implements tiptoe.Answerer against the remote embedding
// database. ctx is not forwarded -- net/rpc has no per-call deadline
// support in this module's wire format, matching the teacher's proxy,
// which accepted the same limitation. q and the returned Answer cross the
// wire as rpcserver.WireQuery/WireAnswer, since simplepir.Query/Answer embed
// *matrix.Matrix[uint64] and the codec's reflection can't see its
// unexported fields.
func (p *Proxy) AnswerEmbedding(ctx context.Context, q *simplepir.Query) (*simplepir.Answer, error) {
	req, err := rpcserver.EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	var resp rpcserver.WireAnswer
	if err := p.Call("Gateway.AnswerEmbedding", req, &resp); err != nil {
		return nil, err
	}
	return rpcserver.DecodeAnswer(&resp)
}

// AnswerEncoding implements tiptoe.Answerer against the remote encoding
// database.
func (p *Proxy) AnswerEncoding(ctx context.Context, q *simplepir.Query) (*simplepir.Answer, error) {
	req, err := rpcserver.EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	var resp rpcserver.WireAnswer
	if err := p.Call("Gateway.AnswerEncoding", req, &resp); err != nil {
		return nil, err
	}
	return rpcserver.DecodeAnswer(&resp)
}

// Hints fetches the current Hints bundle from the server.
func (p *Proxy) Hints() (*rpcserver.HintsResp, error) {
	var resp rpcserver.HintsResp
	if err := p.Call("Gateway.Hints", 0, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EmbeddingAnswerer and EncodingAnswerer adapt a Proxy's two distinct RPC
// methods to the single-method tiptoe.Answerer interface, since a Proxy
// serves both databases but tiptoe.Client expects one Answerer per stage.
type EmbeddingAnswerer struct{ *Proxy }

func (a EmbeddingAnswerer) Answer(ctx context.Context, q *simplepir.Query) (*simplepir.Answer, error) {
	return a.Proxy.AnswerEmbedding(ctx, q)
}

type EncodingAnswerer struct{ *Proxy }

func (a EncodingAnswerer) Answer(ctx context.Context, q *simplepir.Query) (*simplepir.Answer, error) {
	return a.Proxy.AnswerEncoding(ctx, q)
}

// httpPostCodec implements rpc.ClientCodec over one HTTPS POST per call,
// matching the teacher's rpc/client.go httpPostCodec exactly in shape.
type httpPostCodec struct {
	http       *http.Client
	serverAddr string
	encoder    *codec.Encoder
	decoder    *codec.Decoder
	bodyCh     chan io.ReadCloser
	bodyCloser io.Closer
}

func newHTTPPostCodec(handle codec.Handle, serverAddr string) *httpPostCodec {
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	client := &http.Client{
		Transport: &http.Transport{
			DialTLS: func(network, addr string) (net.Conn, error) {
				return tls.Dial("tcp", addr, tlsConfig)
			},
		},
	}
	return &httpPostCodec{
		http:       client,
		serverAddr: serverAddr,
		encoder:    codec.NewEncoderBytes(nil, handle),
		decoder:    codec.NewDecoder(nil, handle),
		bodyCh:     make(chan io.ReadCloser),
	}
}

func (c *httpPostCodec) WriteRequest(req *rpc.Request, body interface{}) error {
	var buf []byte
	c.encoder.ResetBytes(&buf)
	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("encode request header: %w", err)
	}
	if err := c.encoder.Encode(body); err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	url := "https://" + c.serverAddr + rpc.DefaultRPCPath + "/" + req.ServiceMethod
	httpReq, err := http.NewRequest("POST", url, bytes.NewBuffer(buf))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("http post: unexpected status %d", resp.StatusCode)
	}
	c.bodyCh <- resp.Body
	return nil
}

func (c *httpPostCodec) ReadResponseHeader(resp *rpc.Response) error {
	body := <-c.bodyCh
	c.decoder.Reset(body)
	c.bodyCloser = body
	return c.decoder.Decode(resp)
}

func (c *httpPostCodec) ReadResponseBody(body interface{}) error {
	defer c.bodyCloser.Close()
	return c.decoder.Decode(body)
}

func (c *httpPostCodec) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
