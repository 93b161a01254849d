package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rabbitry/store"
	"rabbitry/streamers/cli"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [query_id]",
	Short: "List recent queries, or show one in full",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		logger := newLogger()
		cfg, err := loadConfig(configPath, logger)
		exitOnErr(err)

		stores, err := store.NewBundle(ctx, cfg.Storage)
		exitOnErr(err)
		defer stores.Close()
		if stores.History == nil {
			exitOnErr(errors.New("query history is disabled in the storage block"))
		}

		if len(args) == 1 {
			rec, err := stores.History.GetQuery(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				exitOnErr(fmt.Errorf("query %q not found", args[0]))
			}
			exitOnErr(err)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			exitOnErr(enc.Encode(rec))
			return
		}

		records, err := stores.History.ListQueries(ctx, historyLimit)
		exitOnErr(err)
		cli.NewChatHandler(os.Stdin, os.Stdout, "").History(records)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of queries to list")
}
