package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/calpub/journal-transporter/internal/config"
	"github.com/calpub/journal-transporter/internal/style"
	"github.com/calpub/journal-transporter/internal/transport"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage server definitions",
	Long: `Define, list, and delete servers that can be referenced as the
source or target of a transfer.

Examples:
  jt server define prod --host https://journals.example.org/api --user admin
  jt server define legacy --type ssh --host legacy.example.org --port 2222
  jt server list
  jt server delete legacy`,
	RunE: requireSubcommand,
}

var serverDefineCmd = &cobra.Command{
	Use:   "define <name>",
	Short: "Create or update a server definition",
	Long: `Define a server that can be referenced later as a source or target.

If NAME already exists (case sensitive), its definition is updated
rather than a new one created.`,
	Args: cobra.ExactArgs(1),
	RunE: runServerDefine,
}

var serverDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a server definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerDelete,
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all defined servers",
	RunE:  runServerList,
}

var (
	serverHost     string
	serverType     string
	serverUsername string
	serverPassword string
	serverPort     int
	serverForce    bool
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverDefineCmd)
	serverCmd.AddCommand(serverDeleteCmd)
	serverCmd.AddCommand(serverListCmd)

	serverDefineCmd.Flags().StringVarP(&serverHost, "host", "H", "", "The server's URL or hostname")
	serverDefineCmd.Flags().StringVarP(&serverType, "type", "t", transport.TypeHTTP, "Connection method: http or ssh")
	serverDefineCmd.Flags().StringVarP(&serverUsername, "user", "u", "", "Username authorized to access the server")
	serverDefineCmd.Flags().StringVarP(&serverPassword, "password", "p", "", "Password for the authorized user")
	serverDefineCmd.Flags().IntVar(&serverPort, "port", 0, "Port to connect to")

	serverDeleteCmd.Flags().BoolVarP(&serverForce, "force", "f", false, "Delete without confirmation prompt")
}

func runServerDefine(cmd *cobra.Command, args []string) error {
	name := args[0]

	if serverType != transport.TypeHTTP && serverType != transport.TypeSSH {
		return fmt.Errorf("%w: %q", transport.ErrUnknownType, serverType)
	}

	m, err := manager()
	if err != nil {
		return err
	}
	err = m.DefineServer(name, config.Server{
		Type:     serverType,
		Host:     serverHost,
		Username: serverUsername,
		Password: serverPassword,
		Port:     serverPort,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s Server configuration saved\n", style.SuccessPrefix)
	if verbose {
		fmt.Printf("\nYou can reference this server by passing its name (%s) as the\n--source or --target option of a relevant command.\n", name)
	}
	return nil
}

func runServerDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if !serverForce {
		fmt.Printf("Delete server %q? (y/n) ", name)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "y" {
			fmt.Println("Aborted!")
			return nil
		}
	}

	m, err := manager()
	if err != nil {
		return err
	}
	if err := m.DeleteServer(name); err != nil {
		return err
	}

	fmt.Printf("%s Server %q deleted\n", style.SuccessPrefix, name)
	return nil
}

func runServerList(cmd *cobra.Command, args []string) error {
	m, err := manager()
	if err != nil {
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		return err
	}
	names, err := m.ServerNames()
	if err != nil {
		return err
	}

	entryWord := "entries"
	if len(names) == 1 {
		entryWord = "entry"
	}
	fmt.Println(style.Info.Render(fmt.Sprintf("Listing %d server %s:", len(names), entryWord)))

	title := cases.Title(language.English)
	for i, name := range names {
		server := cfg.Servers[name]
		fmt.Printf("\n%s\n", style.Bold.Render(fmt.Sprintf("#%d %s", i+1, name)))

		fields := []struct{ key, value string }{
			{"type", server.Type},
			{"host", server.Host},
			{"username", server.Username},
			{"password", maskPassword(server.Password)},
		}
		for _, field := range fields {
			if field.value == "" {
				continue
			}
			fmt.Printf("%s: %s\n", title.String(field.key), field.value)
		}
		if server.Port != 0 {
			fmt.Printf("Port: %d\n", server.Port)
		}
	}
	return nil
}

func maskPassword(password string) string {
	if password == "" {
		return ""
	}
	return "*****"
}
