package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/datadir"
	"github.com/calpub/journal-transporter/internal/style"
)

var initDataDir string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the application for use",
	Long: `Create the config file and data directory.

This command must be called before all else. Afterwards, configure
defaults with 'jt configure' and servers with 'jt server define'.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDataDir, "data-directory", "d", "", "Path to data directory location")
}

func runInit(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}

	dataDir := initDataDir
	if dataDir == "" {
		dataDir = filepath.Dir(m.Path())
	}
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}

	if err := m.Create(dataDir); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("%s Config file: %s\n", style.SuccessPrefix, m.Path())
	}

	if err := datadir.Create(dataDir); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("%s Data directory: %s\n", style.SuccessPrefix, dataDir)
	}

	fmt.Println(style.Success.Render("Application initialized!"))
	fmt.Println("\nYou can now configure the application with 'jt configure' and 'jt server define'.")
	return nil
}
