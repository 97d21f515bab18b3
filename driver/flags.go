// Package driver collects the flag-parsing, corpus-loading, and profiling
// glue shared by cmd/server, cmd/client, and cmd/benchmark, so none of them
// has to duplicate flag.FlagSet wiring.
//
// Grounded on the teacher (dimakogan-checklist)'s driver/flags.go
// (Config struct with AddXFlags builder methods, one FlagSet shared across
// binaries) and driver/profiler.go (CPU+heap pprof wrapper).
package driver

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dimakogan/tiptoe-simplepir/simplepir"
)

// Config holds every flag a cmd/ binary in this module might need; each
// binary's main calls only the AddXFlags methods relevant to it.
type Config struct {
	// Corpus / LWE parameters.
	CorpusDir string
	DataDir   string
	N         uint64
	LogQ      uint64
	P         uint64
	Sigma     float64
	MaxDocLen int

	// Server.
	Port   int
	UseTLS bool

	// Client.
	ServerAddr    string
	UsePersistent bool

	// Benchmark.
	NumQueries int
	Progress   bool

	CPUProfile string

	FlagSet *flag.FlagSet
}

// NewConfig returns a Config wired to flag.CommandLine.
func NewConfig() *Config {
	return &Config{FlagSet: flag.CommandLine}
}

// AddCorpusFlags registers the flags controlling corpus construction and
// the LWE parameters of both SimplePIR databases.
func (c *Config) AddCorpusFlags() *Config {
	c.FlagSet.StringVar(&c.CorpusDir, "corpus", "", "directory of documents to serve (one file per document)")
	c.FlagSet.Uint64Var(&c.N, "n", 1408, "LWE secret dimension")
	c.FlagSet.Uint64Var(&c.LogQ, "logq", 32, "ciphertext modulus bit width (32 or 64)")
	c.FlagSet.Uint64Var(&c.P, "p", 256, "plaintext modulus")
	c.FlagSet.Float64Var(&c.Sigma, "sigma", 6.4, "LWE error standard deviation")
	c.FlagSet.IntVar(&c.MaxDocLen, "maxDocLen", 1024, "maximum document length in bytes")
	c.FlagSet.StringVar(&c.DataDir, "datadir", "", "directory to persist/load the built corpus from (skipped if empty)")
	return c
}

// AddServerFlags registers the flags cmd/server needs on top of the
// corpus flags.
func (c *Config) AddServerFlags() *Config {
	c.FlagSet.IntVar(&c.Port, "port", 12345, "listening port")
	c.FlagSet.BoolVar(&c.UseTLS, "tls", true, "serve over self-signed TLS")
	c.FlagSet.StringVar(&c.CPUProfile, "cpuprofile", "", "write CPU profile to `file`")
	return c
}

// AddClientFlags registers the flags cmd/client and cmd/benchmark need to
// reach a running server. -tls is shared with AddServerFlags and is only
// registered here if AddServerFlags has not already registered it.
func (c *Config) AddClientFlags() *Config {
	c.FlagSet.StringVar(&c.ServerAddr, "server", "localhost:12345", "<HOSTNAME>:<PORT> of the Tiptoe server")
	if c.FlagSet.Lookup("tls") == nil {
		c.FlagSet.BoolVar(&c.UseTLS, "tls", true, "connect over TLS")
	}
	c.FlagSet.BoolVar(&c.UsePersistent, "persistent", true, "reuse one connection across queries")
	return c
}

// AddBenchmarkFlags registers the flags cmd/benchmark needs on top of the
// client flags.
func (c *Config) AddBenchmarkFlags() *Config {
	c.FlagSet.IntVar(&c.NumQueries, "queries", 1000, "number of queries to issue")
	c.FlagSet.BoolVar(&c.Progress, "progress", true, "print progress while benchmarking")
	return c
}

// Parse parses os.Args, exiting the process on a bad flag.
func (c *Config) Parse() *Config {
	if c.FlagSet.Parsed() {
		return c
	}
	if err := c.FlagSet.Parse(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
	return c
}

// EmbedParams and EncodeParams build the Rows/Cols-less Params templates
// corpus.Builder.Config expects, from the flags above; Rows/Cols are
// filled in by Builder.Build once the corpus size and embedding dimension
// are known.
func (c *Config) EmbedParams() simplepir.Params {
	return simplepir.Params{N: c.N, Q: c.modulus(), LogQ: c.LogQ, P: c.P, Sigma: c.Sigma}
}

func (c *Config) EncodeParams() simplepir.Params {
	return simplepir.Params{N: c.N, Q: c.modulus(), LogQ: c.LogQ, P: c.P, Sigma: c.Sigma}
}

// modulus returns 0 (native 2^64 wraparound) when LogQ is 64, since 1<<64
// overflows uint64; otherwise the explicit modulus 1<<LogQ.
func (c *Config) modulus() uint64 {
	if c.LogQ >= 64 {
		return 0
	}
	return uint64(1) << c.LogQ
}

// String summarizes the active corpus/LWE configuration for log lines.
func (c *Config) String() string {
	return fmt.Sprintf("corpus=%s n=%d logq=%d p=%d sigma=%.1f", c.CorpusDir, c.N, c.LogQ, c.P, c.Sigma)
}
