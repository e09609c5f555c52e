package main

import (
	"flag"
	"log"
	"os"

	"incidentproxy/internal/config"
	"incidentproxy/internal/infra/db"
	"incidentproxy/internal/infra/http"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	server, err := http.NewServer(cfg, store)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := server.Run(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
