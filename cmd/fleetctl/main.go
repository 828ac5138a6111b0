// cmd/fleetctl/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/reddit-fleet/controller/internal/app"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "scrape-worker" {
		runScrapeWorker(os.Args[2:])
		return
	}
	runController()
}

// runScrapeWorker is the mode the Supervisor spawns one sub-process into
// per Scraper Instance (spec §4.3, §5): `fleetctl scrape-worker
// --instance=<container-handle>`.
func runScrapeWorker(args []string) {
	fs := flag.NewFlagSet("scrape-worker", flag.ExitOnError)
	instance := fs.String("instance", "", "container handle of the scraper instance to run")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parse scrape-worker flags: %v", err)
	}
	if *instance == "" {
		log.Fatal("scrape-worker: --instance is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("scrape-worker received signal: %v, shutting down", sig)
		cancel()
	}()

	if err := app.RunWorker(ctx, *instance); err != nil {
		log.Fatalf("scrape-worker failed: %v", err)
	}
}

// runController is the default mode: the long-running fleet controller
// process (Supervisor liveness loop, background workers, control-plane
// HTTP server).
func runController() {
	application, err := app.Initialize()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal: %v, shutting down", sig)
		application.Shutdown()
		os.Exit(0)
	}()

	log.Println("starting reddit fleet controller")
	if err := application.Start(); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}
}
