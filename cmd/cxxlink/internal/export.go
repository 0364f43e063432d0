package internal

import (
	"fmt"
	"path/filepath"

	"github.com/goplus/cxxlink/internal/artifact"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the packaged artifacts",
	Long: `Export copies the artifact tree of the last build to a directory, or writes
it to a .zip or .tar.xz archive chosen by the output's extension.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	addConfigFlag(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path (directory, .zip or .tar.xz)")
	exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Resolve(); err != nil {
		return err
	}
	if err := artifact.Locate(cfg.OutDir).Check(); err != nil {
		return fmt.Errorf("nothing to export, run 'cxxlink build' first: %w", err)
	}
	dest, err := filepath.Abs(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	if err := artifact.Export(cfg.OutDir, dest); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
