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
	pushTarget  string
	pushDataDir string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push fetched journal data to a target server",
	Long: `Replay the most recently fetched mirror tree against a target
server, submitting each journal body and its subresource bodies in
schema order. Failed records are reported individually.`,
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringVarP(&pushTarget, "target", "t", "", "Name of a defined server to push to")
	pushCmd.Flags().StringVarP(&pushDataDir, "data-directory", "d", "", "Path to data directory location")
}

func runPush(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		return err
	}

	dataDir, err := resolveDataDir(pushDataDir, cfg)
	if err != nil {
		return err
	}
	targetName := firstNonEmpty(pushTarget, cfg.Settings.DefaultTarget)
	if targetName == "" {
		return fmt.Errorf("no target server given; pass --target or set default_target")
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

	reporter := progress.NewCLI(progress.WithVerbose(verbose))
	defer reporter.Close()

	handler, err := transfer.NewHandler(dataDir, nil, target, transfer.WithReporter(reporter))
	if err != nil {
		return err
	}

	results, err := handler.Push(cmd.Context())
	if err != nil {
		return err
	}

	reporter.Close()
	return reportPushResults(results)
}

func reportPushResults(results []transfer.PushResult) error {
	failed := 0
	for _, result := range results {
		if result.Err == nil {
			continue
		}
		failed++
		label := result.Resource + " " + result.ID
		if result.Title != "" {
			label += fmt.Sprintf(" (%s)", result.Title)
		}
		fmt.Printf("%s %s: %v\n", style.ErrorPrefix, label, result.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d record(s) failed to push", failed, len(results))
	}
	fmt.Printf("%s Pushed %d record(s)\n", style.SuccessPrefix, len(results))
	return nil
}
