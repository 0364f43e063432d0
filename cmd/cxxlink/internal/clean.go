package internal

import (
	"os"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the build and output directories",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	addConfigFlag(cleanCmd)
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Resolve(); err != nil {
		return err
	}
	for _, dir := range []string{cfg.OutDir, cfg.BuildDir} {
		log.Debugf("removing %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}
