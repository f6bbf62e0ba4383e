package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"empowertours/internal/api"
	"empowertours/internal/config"
	database "empowertours/internal/db"
	"empowertours/internal/farcaster"
	"empowertours/internal/geo"
	"empowertours/internal/ingest"
	"empowertours/internal/ipfs"
	"empowertours/internal/relay"
	"empowertours/internal/scheduler"
	"empowertours/internal/storage"
	"empowertours/internal/store"
)

func main() {
	// 1. Parse Flags
	// We add flags to override config.yaml values
	noDB := flag.Bool("no-db", false, "Run without Postgres (no play history, no catalog)")
	noIngester := flag.Bool("no-ingester", false, "Do not start the chain ingester in-process")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("🚀 Starting EmpowerTours Radio API...")

	// 2. Load Config
	cfg := config.Load()

	// 3. Init Infrastructure
	st := store.New(cfg)
	pinner := ipfs.New(cfg)
	mirror := storage.New(cfg)

	var db *database.Client
	if !*noDB {
		db = database.New(cfg)
		db.AutoMigrate()
	}

	// 4. Relay + Metrics
	hub := relay.New()
	relay.RegisterMetrics()
	scheduler.RegisterMetrics()
	ingest.RegisterMetrics()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/metrics", cfg.Server.MetricsPort)
		log.Fatal(http.ListenAndServe(cfg.Server.MetricsPort, nil))
	}()

	// 5. Lazy chain ingester (first stream subscriber starts it)
	var worker *ingest.Service
	if !*noIngester {
		worker = ingest.New(cfg, st, pinner, hub)
	}

	// 6. Serve
	server := api.New(cfg, api.Deps{
		Store:    st,
		Relay:    hub,
		DB:       db,
		Ingester: worker,
		Pinner:   pinner,
		Mirror:   mirror,
		Geo:      geo.New(cfg),
		Caster:   farcaster.New(cfg),
	})

	log.Printf("🌍 Listening on %s", cfg.Server.Port)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("❌ Server stopped: %v", err)
	}
}
