package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/datadir"
	"github.com/calpub/journal-transporter/internal/progress"
	"github.com/calpub/journal-transporter/internal/style"
	"github.com/calpub/journal-transporter/internal/transfer"
)

var (
	transferSource  string
	transferTarget  string
	transferDataDir string
)

var transferCmd = &cobra.Command{
	Use:   "transfer [journal-path...]",
	Short: "Fetch from a source server and push to a target server",
	Long: `Run a complete transfer: fetch journal data from the source into
the data directory, then push the mirror to the target.

If the keep setting is enabled, the completed mirror is snapshotted
into the data directory's history afterwards.`,
	RunE: runTransfer,
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().StringVarP(&transferSource, "source", "s", "", "Name of a defined server to fetch from")
	transferCmd.Flags().StringVarP(&transferTarget, "target", "t", "", "Name of a defined server to push to")
	transferCmd.Flags().StringVarP(&transferDataDir, "data-directory", "d", "", "Path to data directory location")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		return err
	}

	dataDir, err := resolveDataDir(transferDataDir, cfg)
	if err != nil {
		return err
	}
	sourceName := firstNonEmpty(transferSource, cfg.Settings.DefaultSource)
	targetName := firstNonEmpty(transferTarget, cfg.Settings.DefaultTarget)
	if sourceName == "" {
		return fmt.Errorf("no source server given; pass --source or set default_source")
	}
	if targetName == "" {
		return fmt.Errorf("no target server given; pass --target or set default_target")
	}

	source, err := buildTransport(m, sourceName)
	if err != nil {
		return err
	}
	target, err := buildTransport(m, targetName)
	if err != nil {
		return err
	}

	lock, err := datadir.Lock(dataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := datadir.Reset(dataDir); err != nil {
		return err
	}

	reporter := progress.NewCLI(progress.WithVerbose(verbose))
	defer reporter.Close()

	handler, err := transfer.NewHandler(dataDir, source, target, transfer.WithReporter(reporter))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := handler.BuildIndexes(ctx, args); err != nil {
		return err
	}
	if err := handler.FetchData(ctx); err != nil {
		return err
	}
	results, err := handler.Push(ctx)
	if err != nil {
		return err
	}

	reporter.Close()
	if err := reportPushResults(results); err != nil {
		return err
	}

	if cfg.Settings.Keep {
		snapshot, err := datadir.Snapshot(dataDir, cfg.Settings.KeepMax)
		if err != nil {
			return err
		}
		fmt.Printf("%s Transfer kept at %s\n", style.ArrowPrefix, snapshot)
	}
	return nil
}
