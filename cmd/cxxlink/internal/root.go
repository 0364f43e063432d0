package internal

import (
	"fmt"
	"os"

	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cxxlink",
	Short: "cxxlink links Conan-built C++ libraries into Go packages",
	Long: `cxxlink drives the Conan client to build a C++ library, generates a C bridge
for a whitelist of its functions and emits the linker directives and cgo
flags a Go package needs to call them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
//
// A failing command prints one diagnostic line and exits with the status of
// the external tool that failed, or 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cxxlink: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if code, ok := buildsys.ExitCode(err); ok && code != 0 {
		return code
	}
	return 1
}
