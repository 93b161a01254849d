package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rabbitry/streamers"
	"rabbitry/streamers/cli"
)

var (
	askJSON  bool
	askStyle string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Ask one question and print the combined answer.

  rabbitry ask "which does are due this week and what's the weather?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		exitOnErr(err)
		defer a.Close()

		query := strings.Join(args, " ")
		if askJSON {
			resp := a.orch.Query(ctx, query)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			exitOnErr(enc.Encode(resp))
			if !resp.Success {
				os.Exit(1)
			}
			return
		}

		handler := cli.NewChatHandler(os.Stdin, os.Stdout, askStyle)
		resp := a.orch.QueryWithEvents(ctx, query, streamers.Events(handler))
		handler.Result(resp)
		if !resp.Success {
			fmt.Fprintln(os.Stderr, "query failed")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw combined response as JSON")
	askCmd.Flags().StringVar(&askStyle, "style", "", "Glamour style (dark, light, notty); detected from the terminal when empty")
}
