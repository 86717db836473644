package slpk

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
)

const testRoot = "/srv/slpk"

var testModTime = time.Date(2024, 5, 17, 8, 30, 0, 123456700, time.UTC)

// newTestFs creates the files under testRoot, all stamped with testModTime.
func newTestFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(testRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		p := testRoot + "/" + name
		if err := afero.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		if err := fs.Chtimes(p, testModTime, testModTime); err != nil {
			t.Fatalf("chtimes %s: %v", p, err)
		}
	}
	return fs
}

func newTestSlpkConfig() *config.SlpkConfig {
	return &config.SlpkConfig{
		PathBase:   "/slpk",
		RootFolder: testRoot,
		IndexFiles: config.DefaultIndexFiles,
		Extensions: config.DefaultExtensions,
	}
}

func newBufferLogger(t *testing.T, level config.LogLevel) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	lg, err := logger.NewWithWriters(&config.LoggingConfig{LogLevel: level}, buf, nil)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return lg, buf
}

// faultyFs fails Open with openErr while Stat keeps working, so a file
// resolves but cannot be read.
type faultyFs struct {
	afero.Fs
	openErr error
}

func (f faultyFs) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: f.openErr}
}

// panickyFs panics with value on Stat.
type panickyFs struct {
	afero.Fs
	value interface{}
}

func (p panickyFs) Stat(string) (os.FileInfo, error) {
	panic(p.value)
}
