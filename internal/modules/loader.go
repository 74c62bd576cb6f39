// Package modules resolves import paths to Flux source.
//
// An import path is a dot-separated identifier list. Paths starting with
// "std" resolve to the bundled stdlib (embedded in the binary, overridable
// with an on-disk directory); everything else resolves relative to the
// importing file's directory, with the source extension appended to the last
// segment.
package modules

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsah/flux/internal/config"
)

//go:embed lib
var stdlib embed.FS

// Source is a resolved module: its text plus the directory its own imports
// resolve against.
type Source struct {
	Text string
	Path string // display path for errors
	Dir  string // base directory for nested imports; empty for embedded files
}

type Loader struct {
	// LibDir overrides the embedded stdlib with an on-disk directory.
	LibDir string
}

func NewLoader() *Loader {
	return &Loader{}
}

// Resolve loads the module at path, relative to baseDir when the path is not
// a stdlib path.
func (l *Loader) Resolve(path []string, baseDir string) (*Source, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty import path")
	}
	if path[0] == config.StdlibRoot {
		return l.resolveStdlib(path[1:])
	}
	file := filepath.Join(append([]string{baseDir}, path...)...) + config.SourceFileExt
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return &Source{Text: string(data), Path: file, Dir: filepath.Dir(file)}, nil
}

func (l *Loader) resolveStdlib(rest []string) (*Source, error) {
	if len(rest) == 0 {
		return nil, fmt.Errorf("import path %q names no module", config.StdlibRoot)
	}
	if l.LibDir != "" {
		file := filepath.Join(append([]string{l.LibDir}, rest...)...) + config.SourceFileExt
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return &Source{Text: string(data), Path: file, Dir: filepath.Dir(file)}, nil
	}
	file := "lib/" + strings.Join(rest, "/") + config.SourceFileExt
	data, err := stdlib.ReadFile(file)
	if err != nil {
		return nil, err
	}
	// Embedded modules import only other stdlib modules, so they carry no
	// base directory.
	return &Source{Text: string(data), Path: file}, nil
}
