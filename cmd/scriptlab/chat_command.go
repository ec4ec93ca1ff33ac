package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scriptlab/internal/advisory"
)

func newChatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <workflow-id> <message...>",
		Short: "Send one advisory message and stream the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			styled := shouldColorize(out)
			message := strings.Join(args[1:], " ")

			// Styled output is rendered once the reply is complete; plain
			// output streams deltas as they arrive.
			var reply strings.Builder
			var failed string
			err := ctx.client().Chat(cmd.Context(), args[0], message, func(ev advisory.Event) error {
				switch ev.Type {
				case advisory.EventText:
					if styled {
						reply.WriteString(ev.Text())
						return nil
					}
					_, err := fmt.Fprint(out, ev.Text())
					return err
				case advisory.EventContentUpdate:
					update, err := ev.Update()
					if err != nil {
						fmt.Fprintf(errOut, "\n[update] undecodable: %v\n", err)
						return nil
					}
					fmt.Fprintf(errOut, "\n[update] %s applied\n", update.Kind())
				case advisory.EventStatus:
					fmt.Fprintf(errOut, "\n[status] %s\n", ev.Text())
				case advisory.EventError:
					failed = ev.Text()
				}
				return nil
			})
			if err != nil {
				return err
			}

			if styled && reply.Len() > 0 {
				rendered, err := renderMarkdown(reply.String(), true)
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
			} else {
				fmt.Fprintln(out)
			}
			if failed != "" {
				return fmt.Errorf("advisory turn failed: %s", failed)
			}
			return nil
		},
	}
}
