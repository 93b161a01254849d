package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"rabbitry/streamers/cli"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show quick farm numbers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		exitOnErr(err)
		defer a.Close()

		insights, err := a.orch.QuickInsights(ctx)
		exitOnErr(err)
		cli.NewChatHandler(os.Stdin, os.Stdout, "").Insights(insights)
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
}
