// Command server loads a corpus directory and serves it over RPC, using
// an embedder derived from the corpus's own vocabulary so the whole
// pipeline runs standalone without an external embedding model.
//
// Grounded on the teacher (dimakogan-checklist)'s cmd/rpc_server/rpc_server.go:
// the same flag-driven port/TLS setup and signal-triggered graceful
// shutdown, reworked to build a refresh.Manager and rpcserver.Server
// instead of a single PirServerDriver.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/driver"
	"github.com/dimakogan/tiptoe-simplepir/refresh"
	"github.com/dimakogan/tiptoe-simplepir/rpcserver"
)

func main() {
	cfg := driver.NewConfig().AddCorpusFlags().AddServerFlags().Parse()

	if cfg.CorpusDir == "" {
		log.Fatalf("server: -corpus is required")
	}
	docs, err := driver.LoadCorpusDir(cfg.CorpusDir)
	if err != nil {
		log.Fatalf("server: failed to load corpus: %v", err)
	}
	if len(docs) == 0 {
		log.Fatalf("server: corpus directory %s contains no documents", cfg.CorpusDir)
	}
	embedder := driver.BuildVocabEmbedder(docs)
	log.Printf("server: %s, %d documents, vocabulary size %d", cfg, len(docs), embedder.Dim())

	prof := driver.NewProfiler(cfg.CPUProfile)
	defer prof.Close()

	builder := corpus.NewBuilder(corpus.Config{
		EmbedParams:  cfg.EmbedParams(),
		EncodeParams: cfg.EncodeParams(),
		ClusterSeed:  1,
		MaxDocLen:    cfg.MaxDocLen,
	})

	var mgr *refresh.Manager
	if cfg.DataDir != "" {
		if persisted, err := driver.LoadCorpus(cfg.DataDir); err == nil {
			log.Printf("server: loaded persisted corpus from %s", cfg.DataDir)
			mgr, err = refresh.NewManagerFromCorpus(builder, embedder, persisted)
			if err != nil {
				log.Fatalf("server: failed to serve persisted corpus: %v", err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("server: failed to load persisted corpus: %v", err)
		}
	}
	if mgr == nil {
		mgr, err = refresh.NewManager(builder, docs, embedder)
		if err != nil {
			log.Fatalf("server: failed to build initial corpus: %v", err)
		}
		if cfg.DataDir != "" {
			if err := driver.SaveCorpus(cfg.DataDir, mgr.Current().Corpus); err != nil {
				log.Printf("server: failed to persist corpus: %v", err)
			}
		}
	}

	gw := rpcserver.NewGateway(mgr, embedder.Vocab())
	srv, err := rpcserver.Listen(cfg.Port, cfg.UseTLS, gw)
	if err != nil {
		log.Fatalf("server: failed to listen: %v", err)
	}

	watcher, err := refresh.WatchDir(cfg.CorpusDir, mgr, func() ([]corpus.Document, error) {
		return driver.LoadCorpusDir(cfg.CorpusDir)
	})
	if err != nil {
		log.Printf("server: corpus directory watch disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("server: shutting down")
		srv.Close()
	}()

	if err := srv.Serve(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
