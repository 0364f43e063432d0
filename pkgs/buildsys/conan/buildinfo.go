package conan

import (
	"encoding/json"
	"fmt"
	"os"
)

// BuildInfoFile is the name the json generator writes into the install folder.
const BuildInfoFile = "conanbuildinfo.json"

// BuildInfo is the subset of conanbuildinfo.json this tool consumes.
type BuildInfo struct {
	Dependencies []Dependency   `json:"dependencies"`
	Settings     map[string]any `json:"settings,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// Dependency is one resolved package of the graph, in dependency order.
type Dependency struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	RootPath     string   `json:"rootpath"`
	IncludePaths []string `json:"include_paths"`
	LibPaths     []string `json:"lib_paths"`
	Libs         []string `json:"libs"`
	SystemLibs   []string `json:"system_libs"`
	Defines      []string `json:"defines"`
	CxxFlags     []string `json:"cxxflags"`
}

// IncludeDirs returns the include directories of every dependency, in
// dependency order.
func (b *BuildInfo) IncludeDirs() []string {
	var dirs []string
	for _, dep := range b.Dependencies {
		dirs = append(dirs, dep.IncludePaths...)
	}
	return dirs
}

// LoadBuildInfo decodes a conanbuildinfo.json file.
func LoadBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build info: %w", err)
	}
	var info BuildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse build info %s: %w", path, err)
	}
	return &info, nil
}
