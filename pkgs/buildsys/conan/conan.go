// Package conan drives the Conan 1.x client: install, build and package of a
// single recipe sharing one build folder.
package conan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goplus/cxxlink/pkgs/buildsys"
)

// DefaultProfile is used when neither the caller nor CONAN_PROFILE names one.
const DefaultProfile = "default"

var (
	ErrRecipeNotFound    = errors.New("conan: recipe not found")
	ErrUnknownProfile    = errors.New("conan: unknown profile")
	ErrInvalidOption     = errors.New("conan: invalid option")
	ErrUnsupportedClient = errors.New("conan: unsupported client version")
)

// BuildPolicy selects when Conan rebuilds a dependency from source.
type BuildPolicy int

const (
	BuildMissing BuildPolicy = iota // build only binaries missing from the cache
	BuildNever                      // never build, fail if a binary is missing
	BuildAlways                     // rebuild everything
)

func (p BuildPolicy) args() []string {
	switch p {
	case BuildNever:
		return []string{"--build", "never"}
	case BuildAlways:
		return []string{"--build"}
	default:
		return []string{"--build", "missing"}
	}
}

func (p BuildPolicy) String() string {
	switch p {
	case BuildNever:
		return "never"
	case BuildAlways:
		return "always"
	default:
		return "missing"
	}
}

// Conan runs conan commands through a buildsys.Runner.
type Conan struct {
	runner buildsys.Runner
	bin    string

	checked bool // client version verified
}

// Option configures Conan.
type Option func(*Conan)

// WithBinary sets a custom conan executable path.
func WithBinary(path string) Option {
	return func(c *Conan) {
		c.bin = path
	}
}

// New returns a Conan driver.
func New(runner buildsys.Runner, opts ...Option) *Conan {
	c := &Conan{runner: runner, bin: "conan"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the client version in semver form ("v1.66.0").
func (c *Conan) Version(ctx context.Context) (string, error) {
	out, err := c.output(ctx, "--version")
	if err != nil {
		return "", err
	}
	return parseVersion(out)
}

// parseVersion extracts the version from "Conan version 1.66.0".
func parseVersion(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty version output", ErrUnsupportedClient)
	}
	v := "v" + strings.TrimPrefix(fields[len(fields)-1], "v")
	if !semver.IsValid(v) {
		return "", fmt.Errorf("%w: cannot parse %q", ErrUnsupportedClient, strings.TrimSpace(out))
	}
	return v, nil
}

// checkClient verifies once that the client speaks the 1.x command set
// (install folders, "conan package").
func (c *Conan) checkClient(ctx context.Context) error {
	if c.checked {
		return nil
	}
	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if semver.Major(v) != "v1" {
		return fmt.Errorf("%w: %s, need 1.x", ErrUnsupportedClient, v)
	}
	c.checked = true
	return nil
}

// Profiles lists the profile names known to the client.
func (c *Conan) Profiles(ctx context.Context) ([]string, error) {
	out, err := c.output(ctx, "profile", "list")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// CheckProfile accepts a profile given as an existing file path or as a name
// the client lists.
func (c *Conan) CheckProfile(ctx context.Context, profile string) error {
	if profile == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownProfile)
	}
	if fi, err := os.Stat(profile); err == nil && fi.Mode().IsRegular() {
		return nil
	}
	names, err := c.Profiles(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == profile {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
}

// ValidateOptions checks that every option is a key=value pair and that no
// key repeats.
func ValidateOptions(options []string) error {
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		k, v, ok := strings.Cut(opt, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return fmt.Errorf("%w: %q, want key=value", ErrInvalidOption, opt)
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidOption, k)
		}
		seen[k] = true
	}
	return nil
}

func checkRecipe(recipe string) error {
	fi, err := os.Stat(recipe)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRecipeNotFound, recipe)
		}
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrRecipeNotFound, recipe)
	}
	return nil
}

func (c *Conan) run(ctx context.Context, args ...string) error {
	return c.runner.Run(ctx, &buildsys.Command{Name: c.bin, Args: args})
}

func (c *Conan) output(ctx context.Context, args ...string) (string, error) {
	var stdout bytes.Buffer
	err := c.runner.Run(ctx, &buildsys.Command{
		Name:   c.bin,
		Args:   args,
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	})
	if err != nil {
		return "", err
	}
	return stdout.String(), nil
}
