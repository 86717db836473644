package slpk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
)

// ErrNotFound is returned by ResolveFile when no candidate file exists.
var ErrNotFound = errors.New("slpk: no file found for request path")

// ResolvedFile describes the file chosen for one request. It is never cached.
type ResolvedFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Resolver maps request paths onto files below the root folder.
type Resolver struct {
	fs         afero.Fs
	rootFolder string
	indexFiles []string
	extensions []string
}

// NewResolver binds a resolver to fs and the SLPK section of the configuration.
func NewResolver(fs afero.Fs, cfg *config.SlpkConfig) *Resolver {
	return &Resolver{
		fs:         fs,
		rootFolder: cfg.RootFolder,
		indexFiles: cfg.IndexFiles,
		extensions: cfg.Extensions,
	}
}

// Resolve returns the local file that answers requestPath, or "" if there is none.
//
// A directory is answered by its first existing index file. A path that is
// neither a directory nor a file is retried with each configured extension
// appended, in order. An existing file is returned unchanged. Only explicit
// candidates are checked; nothing is listed or globbed.
//
// The request path is joined onto the root folder without further
// sanitisation: callers are expected to pass an already cleaned URL path.
func (r *Resolver) Resolve(requestPath string) string {
	relPath := strings.TrimPrefix(requestPath, "/")
	if relPath == "" {
		return ""
	}
	if filepath.Separator != '/' {
		relPath = strings.ReplaceAll(relPath, "/", string(filepath.Separator))
	}
	localPath := filepath.Join(r.rootFolder, relPath)

	if r.isDir(localPath) {
		for _, indexFile := range r.indexFiles {
			indexPath := filepath.Join(localPath, indexFile)
			if r.isFile(indexPath) {
				return indexPath
			}
		}
		return ""
	}
	if !r.isFile(localPath) {
		for _, ext := range r.extensions {
			candidate := localPath + ext
			if r.isFile(candidate) {
				return candidate
			}
		}
		return ""
	}
	return localPath
}

// ResolveFile resolves requestPath and stats the result.
// It returns ErrNotFound when Resolve finds nothing.
func (r *Resolver) ResolveFile(requestPath string) (ResolvedFile, error) {
	p := r.Resolve(requestPath)
	if p == "" {
		return ResolvedFile{}, ErrNotFound
	}
	return statFile(r.fs, p)
}

func statFile(fs afero.Fs, path string) (ResolvedFile, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return ResolvedFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return ResolvedFile{}, &os.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	return ResolvedFile{Path: path, ModTime: fi.ModTime(), Size: fi.Size()}, nil
}

func (r *Resolver) isDir(p string) bool {
	fi, err := r.fs.Stat(p)
	return err == nil && fi.IsDir()
}

func (r *Resolver) isFile(p string) bool {
	fi, err := r.fs.Stat(p)
	return err == nil && !fi.IsDir()
}
