package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goplus/cxxlink/internal/artifact"
	"github.com/goplus/cxxlink/internal/linkage"
)

// Build directory bookkeeping:
//
//	buildDir/
//	  .lock                 # held for the duration of a run
//	  .cxxlink-cache.json   # run cache: input digest and the directives it produced
//	  conanbuildinfo.json
//	  bridge/               # shim sources and CMake build tree
const (
	cacheFile = ".cxxlink-cache.json"
	lockName  = ".lock"
)

// runCache records a successful run.
type runCache struct {
	Key        string              `json:"key"`
	Directives []linkage.Directive `json:"directives"`
	Outputs    []string            `json:"outputs"`
	BuildTime  time.Time           `json:"build_time"`
}

func newRunCache(key string, directives []linkage.Directive, outputs []string) *runCache {
	return &runCache{
		Key:        key,
		Directives: directives,
		Outputs:    outputs,
		BuildTime:  time.Now(),
	}
}

// intact reports whether every recorded output still exists.
func (c *runCache) intact() bool {
	for _, f := range c.Outputs {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// treeFiles lists the files of the lib and include trees of l.
func treeFiles(l artifact.Layout) ([]string, error) {
	var files []string
	for _, dir := range []string{l.LibDir, l.IncludeDir} {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func loadRunCache(path string) (*runCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache runCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveRunCache(path string, cache *runCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// runKey digests everything a run depends on: the content of the watched
// inputs, the profile, the build options, the output locations and the
// debug flag.
func runKey(opts *Options) (string, error) {
	h := sha256.New()
	files := append(append([]string(nil), opts.Watched...), opts.Recipe, opts.Bridge)
	sort.Strings(files)
	for _, f := range files {
		data, err := os.ReadFile(f)
		switch {
		case err == nil:
			fmt.Fprintf(h, "file %s %d\n", f, len(data))
			h.Write(data)
		case os.IsNotExist(err):
			fmt.Fprintf(h, "missing %s\n", f)
		default:
			return "", err
		}
	}
	fmt.Fprintf(h, "profile %s\n", opts.Profile)
	for _, o := range opts.Options {
		fmt.Fprintf(h, "option %s\n", o)
	}
	fmt.Fprintf(h, "out %s\ngo-out %s\ndebug %t\n", opts.OutDir, opts.GoOut, opts.Debug)
	fmt.Fprintf(h, "cmake %q %q\n", opts.CMakeGenerator, opts.CMakeToolchain)
	return hex.EncodeToString(h.Sum(nil)), nil
}
