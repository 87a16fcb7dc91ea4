package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/config"
	"github.com/calpub/journal-transporter/internal/style"
)

var (
	cfgDataDir       string
	cfgDefaultSource string
	cfgDefaultTarget string
	cfgKeep          bool
	cfgKeepMax       int
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Apply configuration options",
	Long: `Persist default options for later commands.

Only flags that are explicitly set are applied; everything else is
left untouched.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringVarP(&cfgDataDir, "data-directory", "d", "", "Path to data directory location")
	configureCmd.Flags().StringVarP(&cfgDefaultSource, "default-source", "s", "", "Server to use as source when none is given")
	configureCmd.Flags().StringVarP(&cfgDefaultTarget, "default-target", "t", "", "Server to use as target when none is given")
	configureCmd.Flags().BoolVarP(&cfgKeep, "keep", "k", false, "Keep a snapshot of each completed transfer")
	configureCmd.Flags().IntVar(&cfgKeepMax, "keep-max", 0, "How many snapshots to retain (0 keeps all)")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}

	err = m.Update(func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("data-directory") {
			cfg.Settings.DataDirectory = cfgDataDir
		}
		if flags.Changed("default-source") {
			cfg.Settings.DefaultSource = cfgDefaultSource
		}
		if flags.Changed("default-target") {
			cfg.Settings.DefaultTarget = cfgDefaultTarget
		}
		if flags.Changed("keep") {
			cfg.Settings.Keep = cfgKeep
		}
		if flags.Changed("keep-max") {
			cfg.Settings.KeepMax = cfgKeepMax
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s Configuration saved\n", style.SuccessPrefix)
	return nil
}
