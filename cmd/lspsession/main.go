package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/lspsession/cmd/lspsession/commands"
	"github.com/teranos/lspsession/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lspsession",
	Short: "lspsession - Language Server Protocol client over WebSocket",
	Long: `lspsession - Language Server Protocol client over WebSocket.

Connects to a language server, performs the initialize handshake, keeps
the session alive across disconnects and surfaces diagnostics, logs and
messages on the terminal.

Available commands:
  connect  - Open a file and stream diagnostics until interrupted
  complete - Request completion items at a position
  hover    - Request hover text at a position
  am       - Manage lspsession configuration ("I am")
  version  - Show version information

Examples:
  lspsession connect main.go                          # Stream diagnostics for main.go
  lspsession complete main.go 10 4                    # Completions at line 10, char 4
  lspsession hover --address ws://localhost:9000/lsp main.go 3 7
  lspsession am show                                  # Show current configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.Setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-log", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Load configuration from this am.toml only")

	rootCmd.AddCommand(commands.ConnectCmd)
	rootCmd.AddCommand(commands.CompleteCmd)
	rootCmd.AddCommand(commands.HoverCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
