package main

import (
	"fmt"
	"os"
	"time"

	"discussion-facilitator/backend/conversation/client"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server  string
	timeout time.Duration
	retries int
	debug   bool
}

func (o *rootOptions) client() *client.Client {
	opts := client.Options{
		BaseURL:  o.server,
		Timeout:  o.timeout,
		RetryMax: o.retries,
	}
	if o.debug {
		opts.Logger = logger.New(logger.ConfigFrom("debug", "text"))
	}
	return client.New(opts)
}

func defaultServer() string {
	if s := os.Getenv("CHAT_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8081"
}

// newRootCmd builds the command tree
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Operate a facilitated discussion from the command line",
		Long: `chatctl reads and writes the shared discussion log, triggers the
facilitator check and follows the live change feed.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", defaultServer(), "server base URL (env CHAT_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")
	rootCmd.PersistentFlags().IntVar(&opts.retries, "retries", 2, "retries for read requests")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log HTTP requests to stderr")

	rootCmd.AddCommand(
		newMessagesCmd(opts),
		newSendCmd(opts),
		newClearCmd(opts),
		newExportCmd(opts),
		newEvaluateCmd(opts),
		newMembersCmd(opts),
		newTailCmd(opts),
	)
	return rootCmd
}
