package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/style"
)

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the current application configuration",
	RunE:  runShowConfig,
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		return err
	}

	settings := []struct{ key, value string }{
		{"data_directory", cfg.Settings.DataDirectory},
		{"default_source", cfg.Settings.DefaultSource},
		{"default_target", cfg.Settings.DefaultTarget},
		{"keep", strconv.FormatBool(cfg.Settings.Keep)},
		{"keep_max", strconv.Itoa(cfg.Settings.KeepMax)},
	}
	for _, setting := range settings {
		fmt.Printf("%s: %s\n", style.Info.Render(setting.key), setting.value)
	}
	return nil
}
