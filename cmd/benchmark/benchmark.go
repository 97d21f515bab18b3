// Command benchmark issues a fixed number of queries against a running
// server and reports latency and throughput, replaying a fixed set of
// queries drawn from the server's own vocabulary.
//
// Grounded on the teacher (dimakogan-checklist)'s cmd/stress/stress.go:
// the same ratecounter.RateCounter-driven QPS measurement, reported in
// progress lines, with the average latency printed once all queries have
// run. It is reworked from replaying recorded
// raw PIR requests to driving the full tiptoe.Client.Search path so the
// benchmark measures the protocol a real client actually runs.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/driver"
	"github.com/dimakogan/tiptoe-simplepir/rpcclient"
	"github.com/dimakogan/tiptoe-simplepir/tiptoe"
	"github.com/paulbellamy/ratecounter"
)

func main() {
	cfg := driver.NewConfig().AddClientFlags().AddBenchmarkFlags().Parse()

	fmt.Printf("Connecting to %s...", cfg.ServerAddr)
	proxy, err := rpcclient.NewProxy(cfg.ServerAddr, cfg.UseTLS, cfg.UsePersistent)
	if err != nil {
		log.Fatalf("benchmark: connection error: %v", err)
	}
	defer proxy.Close()
	fmt.Println(" done.")

	fmt.Print("Fetching setup...")
	hints, err := proxy.Hints()
	if err != nil {
		log.Fatalf("benchmark: failed to fetch hints: %v", err)
	}
	fmt.Println(" done.")
	if len(hints.Vocab) == 0 {
		log.Fatalf("benchmark: server vocabulary is empty, nothing to query")
	}

	hintEmb, err := hints.HintEmb.Decode()
	if err != nil {
		log.Fatalf("benchmark: failed to decode embedding hint: %v", err)
	}
	hintEnc, err := hints.HintEnc.Decode()
	if err != nil {
		log.Fatalf("benchmark: failed to decode encoding hint: %v", err)
	}

	embedder := corpus.NewMockEmbedder(hints.Vocab)
	setup := tiptoe.Setup{
		ParamsEmb:      hints.ParamsEmb,
		ParamsEnc:      hints.ParamsEnc,
		HintEmb:        hintEmb,
		HintEnc:        hintEnc,
		Centroids:      hints.Centroids,
		Quant:          hints.Quant,
		RowsPerCluster: hints.RowsPerCluster,
		DocLen:         hints.DocLen,
	}
	client := tiptoe.NewClient(setup, embedder.Embed,
		rpcclient.EmbeddingAnswerer{Proxy: proxy}, rpcclient.EncodingAnswerer{Proxy: proxy})

	r := rand.New(rand.NewSource(1))
	latencies := make([]time.Duration, 0, cfg.NumQueries)
	counter := ratecounter.NewRateCounter(1 * time.Second)

	for i := 0; i < cfg.NumQueries; i++ {
		query := hints.Vocab[r.Intn(len(hints.Vocab))]
		start := time.Now()
		if _, err := client.Search(context.Background(), query); err != nil {
			log.Fatalf("benchmark: query %d failed: %v", i, err)
		}
		latencies = append(latencies, time.Since(start))
		counter.Incr(1)
		if cfg.Progress && i%100 == 0 {
			fmt.Printf("\r%d/%d queries, %d QPS", i, cfg.NumQueries, counter.Rate())
		}
	}

	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	fmt.Printf("\nCompleted %d queries, average latency %v\n", len(latencies), total/time.Duration(len(latencies)))
	os.Exit(0)
}
