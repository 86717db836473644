package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"example.com/slpkserve/internal/app"
	"example.com/slpkserve/internal/config"
)

func main() {
	cfg, err := buildConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v\nUsage: %s <address> <root-folder> [path-base]", err, os.Args[0])
	}
	a, err := app.New(cfg, nil, nil)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	if err := a.Run(); err != nil {
		os.Exit(1)
	}
}

// buildConfig turns the quick-start arguments into a finalized configuration
// with access logging to stdout. A relative root folder is resolved against
// the working directory.
func buildConfig(args []string) (*config.Config, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("expected 2 or 3 arguments, got %d", len(args))
	}
	addr := args[0]
	pathBase := config.DefaultPathBase
	if len(args) == 3 {
		pathBase = args[2]
	}
	enabled := true
	cfg := &config.Config{
		Server: &config.ServerConfig{Address: &addr},
		Slpk:   &config.SlpkConfig{PathBase: pathBase, RootFolder: args[1]},
		Logging: &config.LoggingConfig{
			AccessLog: &config.AccessLogConfig{Enabled: &enabled},
		},
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	if err := config.Finalize(cfg, cwd); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Slpk.RootFolder) {
		return nil, fmt.Errorf("root folder %s did not resolve to an absolute path", cfg.Slpk.RootFolder)
	}
	return cfg, nil
}
