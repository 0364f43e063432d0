// Package conantest simulates a Conan 1.x client on top of a fake runner.
package conantest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/goplus/cxxlink/pkgs/buildsys/buildsystest"
	"github.com/goplus/cxxlink/pkgs/buildsys/conan"
)

// Client describes the simulated client and the package it produces.
type Client struct {
	Version  string             // printed by --version, default "1.66.0"
	Profiles []string           // default {"default"}
	Deps     []conan.Dependency // written to conanbuildinfo.json
	Libs     map[string]string  // lib/ files produced by build, name -> content
	Headers  map[string]string  // include/ files produced by package, rel path -> content
}

// DeepThought returns a client packaging the sample deep_thought library.
func DeepThought() *Client {
	return &Client{
		Libs: map[string]string{"libdeep_thought.a": "!<arch>\n"},
		Headers: map[string]string{
			"deep_thought/answer.hpp": "#pragma once\nnamespace deep_thought {\nint answer();\n}\n",
		},
	}
}

// Install registers the simulated conan subcommands on r.
func (c *Client) Install(r *buildsystest.Runner) {
	r.Handle("conan --version", func(_ context.Context, cmd *buildsys.Command) error {
		v := c.Version
		if v == "" {
			v = "1.66.0"
		}
		_, err := fmt.Fprintf(out(cmd), "Conan version %s\n", v)
		return err
	})
	r.Handle("conan profile", func(_ context.Context, cmd *buildsys.Command) error {
		profiles := c.Profiles
		if profiles == nil {
			profiles = []string{conan.DefaultProfile}
		}
		for _, p := range profiles {
			fmt.Fprintln(out(cmd), p)
		}
		return nil
	})
	r.Handle("conan install", func(_ context.Context, cmd *buildsys.Command) error {
		dir := flagValue(cmd.Args, "--install-folder")
		data, err := json.MarshalIndent(conan.BuildInfo{Dependencies: c.Deps}, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, conan.BuildInfoFile), data, 0o644)
	})
	r.Handle("conan build", func(_ context.Context, cmd *buildsys.Command) error {
		dir := flagValue(cmd.Args, "--build-folder")
		return writeFiles(filepath.Join(dir, "lib"), c.Libs)
	})
	r.Handle("conan package", func(_ context.Context, cmd *buildsys.Command) error {
		pkgDir := flagValue(cmd.Args, "--package-folder")
		if err := writeFiles(filepath.Join(pkgDir, "lib"), c.Libs); err != nil {
			return err
		}
		return writeFiles(filepath.Join(pkgDir, "include"), c.Headers)
	})
}

func out(cmd *buildsys.Command) io.Writer {
	if cmd.Stdout != nil {
		return cmd.Stdout
	}
	return io.Discard
}

func flagValue(args []string, name string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}

func writeFiles(dir string, files map[string]string) error {
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
