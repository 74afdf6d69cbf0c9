// Command sitesmith starts the site generation API server.
// Usage: sitesmith [-config config.yaml] [-listen :8080]
package main

import (
	"flag"
	"log"

	"github.com/rmaia/sitesmith/internal/app"
	"github.com/rmaia/sitesmith/internal/logging"
	"github.com/rmaia/sitesmith/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	logger := logging.NewStdoutLogger("sitesmith")

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		App:        cfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("creating server: %v", err)
	}
	defer srv.Close()

	httpServer := srv.HTTPServer()
	logger.Info("listening", logging.Field{Key: "addr", Value: httpServer.Addr})
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
