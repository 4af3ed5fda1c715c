// Package main provides docengine-demo, a minimal process wiring one
// document engine instance per configured partition with signal handling.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ansjsun/docengine/internal/config"
	"github.com/ansjsun/docengine/internal/engine"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr *os.File) int {
	fs := pflag.NewFlagSet("docengine-demo", pflag.ContinueOnError)

	configPath := fs.StringP("config", "c", "", "path to a JSONC engine config file")
	collection := fs.String("collection", "demo", "collection name")
	partition := fs.Uint32("partition", 0, "partition number")
	serverID := fs.String("server-id", "", "this node's raft server id (default: a generated uuid)")
	metricsAddr := fs.String("metrics-addr", "127.0.0.1:9090", "address to serve /metrics on")
	dataDir := fs.String("data-dir", "", "overrides data_dir from the config file")

	err := fs.Parse(args)
	if err != nil {
		return 2
	}

	if *serverID == "" {
		*serverID = uuid.NewString()
	}

	cfg := config.Default()

	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "docengine-demo: load config: %v\n", err)

			return 1
		}
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if cfg.DataDir == "" {
		fmt.Fprintln(stderr, "docengine-demo: --data-dir (or data_dir in the config file) is required")

		return 1
	}

	startLatch := make(chan struct{})

	e, err := engine.New(cfg, cfg.ReadOnly, *collection, *partition, *serverID, startLatch)
	if err != nil {
		fmt.Fprintf(stderr, "docengine-demo: start engine: %v\n", err)

		return 1
	}

	registry := prometheus.NewRegistry()
	e.RegisterMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			fmt.Fprintf(stderr, "docengine-demo: metrics server: %v\n", serveErr)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-startLatch:
	case <-sigCh:
		e.Stop()
		_ = e.Release()

		return 0
	}

	<-sigCh

	_ = server.Close()
	e.Stop()

	err = e.Release()
	if err != nil {
		fmt.Fprintf(stderr, "docengine-demo: release engine: %v\n", err)

		return 1
	}

	return 0
}
