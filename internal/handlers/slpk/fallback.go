package slpk

import (
	"net/http"
	"os"
	"path"

	"github.com/spf13/afero"
)

// NewFallback returns the handler chained after the middleware: a plain file
// server over root. Directories are only served through their index.html;
// listings are refused with 404.
func NewFallback(fs afero.Fs, root string) http.Handler {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return http.FileServer(noListingFS{afero.NewHttpFs(fs).Dir(root)})
}

type noListingFS struct {
	http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		index, err := n.FileSystem.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}
