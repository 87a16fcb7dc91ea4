package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/config"
	"github.com/calpub/journal-transporter/internal/datadir"
	"github.com/calpub/journal-transporter/internal/progress"
	"github.com/calpub/journal-transporter/internal/style"
	"github.com/calpub/journal-transporter/internal/transfer"
)

var (
	fetchSource  string
	fetchDataDir string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [journal-path...]",
	Short: "Fetch journal data from a source server",
	Long: `Fetch journal data from a source server into the data directory.

Journal paths/codes given as arguments filter which journals are
fetched; with none, all journals are transferred. Fetching starts a
fresh mirror tree, discarding any previous unfinished run.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchSource, "source", "s", "", "Name of a defined server to fetch from")
	fetchCmd.Flags().StringVarP(&fetchDataDir, "data-directory", "d", "", "Path to data directory location")
}

func runFetch(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		return err
	}

	dataDir, err := resolveDataDir(fetchDataDir, cfg)
	if err != nil {
		return err
	}
	sourceName := firstNonEmpty(fetchSource, cfg.Settings.DefaultSource)
	if sourceName == "" {
		return fmt.Errorf("no source server given; pass --source or set default_source")
	}
	source, err := buildTransport(m, sourceName)
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

	handler, err := transfer.NewHandler(dataDir, source, nil, transfer.WithReporter(reporter))
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

	reporter.Close()
	fmt.Printf("%s Fetched %d record(s) into %s\n", style.SuccessPrefix, handler.RecordsSeen(), datadir.Current(dataDir))
	return nil
}

func resolveDataDir(flagValue string, cfg *config.Config) (string, error) {
	dir := firstNonEmpty(flagValue, cfg.Settings.DataDirectory)
	if dir == "" {
		return "", fmt.Errorf("no data directory configured; run 'jt init' or pass --data-directory")
	}
	return dir, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
