package internal

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/goplus/cxxlink/internal/build"
	"github.com/goplus/cxxlink/internal/config"
	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	buildProfile string
	buildOut     string
	buildGoOut   string
	buildDebug   bool
	buildForce   bool
	configPath   string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the recipe and generate the Go bridge",
	Long: `Build installs, builds and packages the Conan recipe, compiles the bridge
library and writes the Go bindings and cgo flags into the Go package.
Directives are printed to stdout, one per line.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	addConfigFlag(buildCmd)
	buildCmd.Flags().StringVar(&buildProfile, "profile", "", "Conan profile (overrides CONAN_PROFILE)")
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Artifact output directory (overrides CXXLINK_OUT_DIR)")
	buildCmd.Flags().StringVar(&buildGoOut, "go-out", "", "Go package directory receiving bindings and artifacts")
	buildCmd.Flags().BoolVar(&buildDebug, "debug", false, "Add a runtime search path for the packaged libraries")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "Rebuild even when nothing changed")
	rootCmd.AddCommand(buildCmd)
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project file (default ./"+config.FileName+")")
}

// loadConfig reads the project file and applies the environment.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildOptions merges the command-line flags over cfg.
func buildOptions(cmd *cobra.Command, cfg *config.Config) (build.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("profile") {
		cfg.Profile = buildProfile
	}
	if flags.Changed("out") {
		cfg.OutDir = buildOut
	}
	if flags.Changed("go-out") {
		cfg.GoOut = buildGoOut
	}
	if flags.Changed("debug") {
		cfg.Debug = buildDebug
	}
	if err := cfg.Resolve(); err != nil {
		return build.Options{}, err
	}
	return build.Options{
		Recipe:   cfg.Recipe,
		BuildDir: cfg.BuildDir,
		OutDir:   cfg.OutDir,
		Profile:  cfg.Profile,
		Options:  cfg.Options,
		Bridge:   cfg.Bridge,
		GoOut:    cfg.GoOut,
		Debug:    cfg.Debug,
		Force:    buildForce,
		Watched:  cfg.Watched(),

		CMakeGenerator: cfg.CMakeGenerator,
		CMakeToolchain: cfg.CMakeToolchain,
	}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := &buildsys.ExecRunner{Stdout: io.Discard, Stderr: io.Discard}
	if verbose {
		runner = &buildsys.ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr}
	}
	res, err := build.New(runner, cmd.OutOrStdout(), opts).Run(ctx)
	if err != nil {
		return err
	}
	if res.Cached {
		log.Debugf("replayed %d directives", len(res.Directives))
	} else {
		log.Infof("wrote %s", res.CgoFile)
	}
	return nil
}
