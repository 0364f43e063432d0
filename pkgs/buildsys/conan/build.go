package conan

import (
	"context"
	"fmt"
	"os"
)

// Build compiles the recipe in buildDir, the folder Install populated.
func (c *Conan) Build(ctx context.Context, recipe, buildDir string) error {
	if err := checkRecipe(recipe); err != nil {
		return err
	}
	if err := c.run(ctx, "build", recipe, "--build-folder", buildDir); err != nil {
		return fmt.Errorf("conan build: %w", err)
	}
	return nil
}

// Package collects the build outputs of buildDir into packageDir.
func (c *Conan) Package(ctx context.Context, recipe, buildDir, packageDir string) error {
	if err := os.MkdirAll(packageDir, 0o755); err != nil {
		return err
	}
	err := c.run(ctx, "package", recipe, "--build-folder", buildDir, "--package-folder", packageDir)
	if err != nil {
		return fmt.Errorf("conan package: %w", err)
	}
	return nil
}
