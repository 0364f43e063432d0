package conan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// InstallOptions describes one "conan install" invocation.
type InstallOptions struct {
	Recipe     string      // path to conanfile.py
	InstallDir string      // install folder, shared with Build
	Profile    string      // profile name or path
	Policy     BuildPolicy // when to build from source
	Options    []string    // key=value, passed verbatim
	Update     bool        // check remotes for newer recipes
}

// Args returns the command line arguments after "conan".
func (o *InstallOptions) Args() []string {
	args := []string{"install", o.Recipe, "--install-folder", o.InstallDir, "--profile", o.Profile}
	args = append(args, o.Policy.args()...)
	for _, opt := range o.Options {
		args = append(args, "-o", opt)
	}
	if o.Update {
		args = append(args, "--update")
	}
	return append(args, "-g", "json")
}

// Install resolves and (per the policy) builds the recipe's dependency
// graph, then decodes the build info the json generator wrote.
func (c *Conan) Install(ctx context.Context, opts InstallOptions) (*BuildInfo, error) {
	if err := checkRecipe(opts.Recipe); err != nil {
		return nil, err
	}
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	if err := ValidateOptions(opts.Options); err != nil {
		return nil, err
	}
	if err := c.checkClient(ctx); err != nil {
		return nil, err
	}
	if err := c.CheckProfile(ctx, opts.Profile); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.InstallDir, 0o755); err != nil {
		return nil, err
	}
	if err := c.run(ctx, opts.Args()...); err != nil {
		return nil, fmt.Errorf("conan install: %w", err)
	}
	return LoadBuildInfo(filepath.Join(opts.InstallDir, BuildInfoFile))
}
