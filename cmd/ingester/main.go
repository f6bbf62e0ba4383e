package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"empowertours/internal/config"
	"empowertours/internal/ingest"
	"empowertours/internal/ipfs"
	"empowertours/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Chain Ingestion Worker...")

	// 1. Setup Configuration
	cfg := config.Load()

	// 2. Initialize Infrastructure
	st := store.New(cfg)
	gateway := ipfs.New(cfg)

	// 3. Setup Metrics
	ingest.RegisterMetrics()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/metrics", cfg.Server.MetricsPort)
		log.Fatal(http.ListenAndServe(cfg.Server.MetricsPort, nil))
	}()

	// 4. Start Worker (no relay: subscribers live in the API process)
	worker := ingest.New(cfg, st, gateway, nil)
	worker.EnsureStarted(context.Background())

	select {} // poll loop runs until the process is killed
}
