// Package config loads the cxxlink.yaml project file.
//
// Settings are resolved in order: command-line flags, environment
// variables, the project file, built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/cxxlink/internal/env"
	"github.com/goplus/cxxlink/pkgs/buildsys/conan"
	"gopkg.in/yaml.v3"
)

// FileName is the project file looked up in the working directory.
const FileName = "cxxlink.yaml"

// Defaults.
const (
	DefaultRecipe   = "conanfile.py"
	DefaultBuildDir = "build"
	DefaultBridge   = "bridge.hcl"
)

// DefaultOptions are the build options used when none are configured.
var DefaultOptions = []string{"shared=False", "fPIC=False"}

// Config is the project configuration.
type Config struct {
	Recipe   string   `yaml:"recipe"`
	BuildDir string   `yaml:"build_dir"`
	OutDir   string   `yaml:"out_dir"` // default <build_dir>/out
	Profile  string   `yaml:"profile"`
	Options  []string `yaml:"options"`
	Bridge   string   `yaml:"bridge"`
	GoOut    string   `yaml:"go_out"` // default: the project directory
	Debug    bool     `yaml:"debug"`

	CMakeGenerator string `yaml:"cmake_generator"`
	CMakeToolchain string `yaml:"cmake_toolchain"`

	path string
	dir  string
}

// Load reads the project file of dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return &Config{dir: dir}, nil
	}
	return cfg, err
}

// LoadFile reads the project file at path.
func LoadFile(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := &Config{path: path, dir: filepath.Dir(path)}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, or "".
func (c *Config) Path() string { return c.path }

// ApplyEnv overrides the configuration with the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := env.Lookup(env.ConanProfile); ok {
		c.Profile = v
	}
	if v, ok := env.Lookup(env.OutDir); ok {
		c.OutDir = v
	}
	debug, set, err := env.Bool(env.Debug)
	if err != nil {
		return err
	}
	if set {
		c.Debug = debug
	}
	return nil
}

// Resolve fills in defaults, makes every path absolute relative to the
// project directory and validates the build options.
func (c *Config) Resolve() error {
	if c.dir == "" {
		c.dir = "."
	}
	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	c.dir = dir
	if c.Recipe == "" {
		c.Recipe = DefaultRecipe
	}
	if c.BuildDir == "" {
		c.BuildDir = DefaultBuildDir
	}
	if c.Bridge == "" {
		c.Bridge = DefaultBridge
	}
	if c.Profile == "" {
		c.Profile = conan.DefaultProfile
	}
	if len(c.Options) == 0 {
		c.Options = append([]string(nil), DefaultOptions...)
	}
	c.Recipe = c.abs(c.Recipe)
	c.BuildDir = c.abs(c.BuildDir)
	c.Bridge = c.abs(c.Bridge)
	if c.OutDir == "" {
		c.OutDir = filepath.Join(c.BuildDir, "out")
	}
	c.OutDir = c.abs(c.OutDir)
	if c.GoOut == "" {
		c.GoOut = c.dir
	}
	c.GoOut = c.abs(c.GoOut)
	if c.CMakeToolchain != "" {
		c.CMakeToolchain = c.abs(c.CMakeToolchain)
	}
	return conan.ValidateOptions(c.Options)
}

func (c *Config) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.dir, path)
}

// Watched returns the input files whose change invalidates a build.
func (c *Config) Watched() []string {
	var files []string
	if c.path != "" {
		files = append(files, c.path)
	}
	files = append(files, c.Recipe, c.Bridge)
	if c.CMakeToolchain != "" {
		files = append(files, c.CMakeToolchain)
	}
	return files
}
