package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"discussion-facilitator/backend/conversation/client"
	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/service"

	"github.com/spf13/cobra"
)

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%d] %s %s: %s\n", m.ID, m.CreatedAt.Local().Format("15:04:05"), m.Author, m.Content)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMessagesCmd(opts *rootOptions) *cobra.Command {
	var afterID uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msgs, err := opts.client().Messages(cmd.Context(), afterID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), msgs)
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&afterID, "after", 0, "only messages with a larger id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func describeOutcome(res service.Result) string {
	switch res.Outcome {
	case service.OutcomeResolved:
		if res.Message != nil {
			return fmt.Sprintf("facilitator responded at %d messages: %s", res.Crossing, res.Message.Content)
		}
		return "facilitator responded"
	case service.OutcomeSkipped:
		return fmt.Sprintf("facilitator chose not to respond at %d messages", res.Crossing)
	case service.OutcomeFailed:
		return "facilitator call failed: " + res.Warning
	case service.OutcomeClaimLost:
		return "another participant is already getting the facilitator response"
	case service.OutcomeDisabled:
		return "facilitator is disabled"
	default:
		return "facilitator not due"
	}
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Post a message as --author",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Send(cmd.Context(), author, strings.Join(args, " "))
			if errors.Is(err, client.ErrIgnored) {
				fmt.Fprintln(cmd.OutOrStdout(), "empty message ignored")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent #%d\n", res.Message.ID)
			if res.Facilitator.Outcome != service.OutcomeNotDue {
				fmt.Fprintln(cmd.OutOrStdout(), describeOutcome(res.Facilitator))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", os.Getenv("USER"), "author name")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every message and reset the facilitator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			if err := opts.client().Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "conversation cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var formatName, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the conversation as markdown, text or json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			data, name, err := opts.client().Export(cmd.Context(), format)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", string(export.Markdown), "markdown, text or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: server suggested name)")
	return cmd
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run the facilitator trigger check now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeOutcome(*res))
			return nil
		},
	}
}

func newMembersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "Show active members and the next facilitator turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.client().Participants(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if p.Topic != "" {
				fmt.Fprintf(w, "Topic: %s\n", p.Topic)
			}
			fmt.Fprintf(w, "Active members (%d): %s\n", p.Count, strings.Join(p.Members, ", "))
			fmt.Fprintf(w, "Messages: %d, facilitator next at %d (every %d)\n", p.HumanMessages, p.NextCrossing, p.Threshold)
			if !p.Facilitator {
				fmt.Fprintln(w, "Facilitator is disabled")
			}
			return nil
		},
	}
}

func newTailCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Follow the conversation live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := opts.client()
			w := cmd.OutOrStdout()

			msgs, err := c.Messages(ctx, 0)
			if err != nil {
				return err
			}
			printMessages(w, msgs)
			var lastID uint64
			if len(msgs) > 0 {
				lastID = msgs[len(msgs)-1].ID
			}

			return c.Tail(ctx, func(e models.ChangeEvent) {
				if e.Cleared {
					fmt.Fprintln(w, "-- conversation cleared --")
					lastID = 0
					return
				}
				fresh, err := c.Messages(ctx, lastID)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "refresh failed: %v\n", err)
					return
				}
				printMessages(w, fresh)
				if len(fresh) > 0 {
					lastID = fresh[len(fresh)-1].ID
				}
			})
		},
	}
}
