// Package app assembles configuration, logging, routing and the server into
// a runnable process.
package app

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/router"
	"example.com/slpkserve/internal/server"
)

// App is one configured server process.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Router *router.Router
	Server *server.Server

	fs afero.Fs
}

// New wires an App for a finalized cfg. A nil fs means the OS filesystem and
// a nil lg is built from cfg.Logging.
func New(cfg *config.Config, fs afero.Fs, lg *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if lg == nil {
		var err error
		lg, err = logger.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	rt, err := router.New(cfg, fs, lg)
	if err != nil {
		lg.CloseLogFiles()
		return nil, err
	}
	srv, err := server.NewServer(cfg, lg, rt, nil)
	if err != nil {
		lg.CloseLogFiles()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return &App{Config: cfg, Log: lg, Router: rt, Server: srv, fs: fs}, nil
}

// AssetSummary counts the regular files below the root folder and their total size.
type AssetSummary struct {
	Files int
	Bytes int64
}

// ScanAssets walks the root folder. Unreadable entries are skipped.
func (a *App) ScanAssets() (AssetSummary, error) {
	var sum AssetSummary
	err := afero.Walk(a.fs, a.Config.Slpk.RootFolder, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			a.Log.Debug("Skipping unreadable entry during asset scan", logger.LogFields{"error": err.Error()})
			return nil
		}
		if info.Mode().IsRegular() {
			sum.Files++
			sum.Bytes += info.Size()
		}
		return nil
	})
	return sum, err
}

// LogMount writes the startup banner: the mount point, the folder behind it
// and the assets found there.
func (a *App) LogMount() {
	s := a.Config.Slpk
	fields := logger.LogFields{
		"path_base":   s.PathBase,
		"root_folder": s.RootFolder,
		"index_files": s.IndexFiles,
		"extensions":  s.Extensions,
	}
	if sum, err := a.ScanAssets(); err != nil {
		fields["scan_error"] = err.Error()
	} else {
		fields["assets"] = humanize.Comma(int64(sum.Files))
		fields["size"] = humanize.Bytes(uint64(sum.Bytes))
	}
	a.Log.Info(fmt.Sprintf("SLPK %s => %s", s.PathBase, s.RootFolder), fields)
}

// Run logs the banner and serves until a shutdown signal. Log files are
// closed on return.
func (a *App) Run() error {
	defer func() {
		if err := a.Log.CloseLogFiles(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log files during shutdown: %v\n", err)
		}
	}()
	a.LogMount()
	if err := a.Server.Start(); err != nil {
		a.Log.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		return err
	}
	return nil
}
