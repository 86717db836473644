package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"example.com/slpkserve/internal/app"
	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
)

var configFilePath string

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the configuration file (JSON, TOML or YAML)")
	flag.Parse()

	if configFilePath == "" {
		fmt.Fprintln(os.Stderr, "Error: Configuration file path must be provided via -config flag.")
		flag.Usage()
		os.Exit(1)
	}

	absConfigPath, err := filepath.Abs(configFilePath)
	if err != nil {
		log.Fatalf("Error getting absolute path for config file %s: %v", configFilePath, err)
	}

	cfg, err := config.LoadConfig(absConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", absConfigPath, err)
	}

	a, err := app.New(cfg, nil, nil)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	a.Log.Info("Configuration loaded", logger.LogFields{"config_file": absConfigPath})

	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}
