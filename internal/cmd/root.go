// Package cmd implements the jt command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calpub/journal-transporter/internal/config"
	"github.com/calpub/journal-transporter/internal/style"
	"github.com/calpub/journal-transporter/internal/transport"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "jt",
	Short: "Transfer scholarly journal data between publishing platforms",
	Long: `jt migrates journals, their roles, issues, sections, and referenced
users from a source publishing platform to a target platform.

A transfer mirrors the remote hierarchy into a local data directory
(fetch), then replays the mirror against the target (push).

Typical session:
  jt init --data-directory ~/journals
  jt server define src --host https://source.example.org/api --user admin
  jt server define dst --host https://target.example.org/api
  jt transfer --source src --target dst`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// manager builds the config manager from the --config flag or the
// default location.
func manager() (*config.Manager, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.NewManager(path), nil
}

// buildTransport resolves a named server definition into a transport.
func buildTransport(m *config.Manager, name string) (transport.Transport, error) {
	server, err := m.Server(name)
	if err != nil {
		return nil, err
	}
	return transport.New(transport.Server{
		Name:     name,
		Type:     server.Type,
		Host:     server.Host,
		Username: server.Username,
		Password: server.Password,
		Port:     server.Port,
	})
}
