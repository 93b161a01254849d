package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rabbitry/streamers"
	"rabbitry/streamers/cli"
)

var (
	chatVerbose bool
	chatStyle   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session with the farm assistant",
	Long:  `Start an interactive session. Each line is routed to the agents that can answer it.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		exitOnErr(err)
		defer a.Close()

		handler := cli.NewChatHandler(os.Stdin, os.Stdout, chatStyle)
		handler.Verbose = chatVerbose
		handler.Welcome(a.orch.Agents(), a.model)
		runChat(ctx, a, handler)
	},
}

func runChat(ctx context.Context, a *app, handler streamers.QueryHandler) {
	events := streamers.Events(handler)
	for {
		input, err := handler.AwaitClientAnswer()
		if err != nil {
			if err == io.EOF {
				handler.Goodbye()
				return
			}
			handler.Error(err)
			return
		}

		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			handler.Goodbye()
			return
		}

		handler.Result(a.orch.QueryWithEvents(ctx, input, events))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Show the query sent to each agent")
	chatCmd.Flags().StringVar(&chatStyle, "style", "", "Glamour style (dark, light, notty); detected from the terminal when empty")
}
