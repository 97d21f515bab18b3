// Command client is a REPL: it downloads a Setup once, then repeatedly
// reads a query from stdin, runs the two-stage protocol, and prints the
// matched document's bytes.
//
// Grounded on the teacher (dimakogan-checklist)'s cmd/rpc_client/rpc_client.go:
// the same "connect, fetch hint, then loop" shape, reworked from a
// random-key read loop to an interactive text-query loop since Tiptoe's
// query is a search string rather than a fixed key space.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dimakogan/tiptoe-simplepir/corpus"
	"github.com/dimakogan/tiptoe-simplepir/driver"
	"github.com/dimakogan/tiptoe-simplepir/rpcclient"
	"github.com/dimakogan/tiptoe-simplepir/tiptoe"
)

func main() {
	cfg := driver.NewConfig().AddClientFlags().Parse()

	fmt.Printf("Connecting to %s...\n", cfg.ServerAddr)
	proxy, err := rpcclient.NewProxy(cfg.ServerAddr, cfg.UseTLS, cfg.UsePersistent)
	if err != nil {
		log.Fatalf("client: connection error: %v", err)
	}
	defer proxy.Close()

	fmt.Print("Fetching setup (this may take a while)...")
	hints, err := proxy.Hints()
	if err != nil {
		log.Fatalf("client: failed to fetch hints: %v", err)
	}
	fmt.Println(" done.")

	hintEmb, err := hints.HintEmb.Decode()
	if err != nil {
		log.Fatalf("client: failed to decode embedding hint: %v", err)
	}
	hintEnc, err := hints.HintEnc.Decode()
	if err != nil {
		log.Fatalf("client: failed to decode encoding hint: %v", err)
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

	fmt.Println("Enter a search query, or an empty line to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		doc, err := client.Search(context.Background(), line)
		if err != nil {
			fmt.Printf("search failed: %v\n", err)
			continue
		}
		fmt.Printf("%s\n", doc)
	}
}
