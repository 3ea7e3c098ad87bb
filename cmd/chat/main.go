package main

import (
	"fmt"
	"os"
	"time"

	"discussion-facilitator/backend/conversation/client"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type appConfig struct {
	server        string
	username      string
	facilitatorID string
	pollInterval  time.Duration
	exportDir     string
	altScreen     bool
}

func newRootCmd() *cobra.Command {
	cfg := appConfig{}

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Join the facilitated discussion in the terminal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(client.Options{BaseURL: cfg.server, Timeout: 60 * time.Second, RetryMax: 2})
			opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
			if cfg.altScreen {
				opts = append(opts, tea.WithAltScreen())
			}
			_, err := tea.NewProgram(newModel(cfg, c), opts...).Run()
			return err
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	server := os.Getenv("CHAT_SERVER")
	if server == "" {
		server = "http://localhost:8081"
	}
	cmd.Flags().StringVarP(&cfg.server, "server", "s", server, "server base URL (env CHAT_SERVER)")
	cmd.Flags().StringVarP(&cfg.username, "name", "n", "", "display name; prompted for when empty")
	cmd.Flags().StringVar(&cfg.facilitatorID, "facilitator", "GPT4o", "author id used by the facilitator")
	cmd.Flags().DurationVar(&cfg.pollInterval, "interval", 2*time.Second, "refresh interval")
	cmd.Flags().StringVar(&cfg.exportDir, "export-dir", ".", "directory for ctrl+e exports")
	cmd.Flags().BoolVar(&cfg.altScreen, "alt-screen", true, "use the terminal alternate screen")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chat fatal error: %v\n", err)
		os.Exit(1)
	}
}
