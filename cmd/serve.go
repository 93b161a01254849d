package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rabbitry/wsbridge"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the farm assistant over HTTP and WebSocket",
	Long: `Start a long-running server. Queries are accepted on POST /api/query and
over the /ws WebSocket, which streams agent progress before the result.

The listen address and allowed origins come from the server block.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		exitOnErr(err)
		defer a.Close()

		addr := a.cfg.Server.Address
		if serveAddress != "" {
			addr = serveAddress
		}

		server := wsbridge.NewServer(wsbridge.Options{
			Orchestrator:   a.orch,
			History:        a.stores.History,
			Info:           wsbridge.ConfigToServerInfo(a.cfg),
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			Logger:         a.logger.Named("wsbridge"),
		})

		fmt.Printf("Serving %d agent(s) on %s\n", len(a.orch.Agents()), addr)
		if err := server.ListenAndServe(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nShutting down...")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddress, "address", "a", "", "Listen address (overrides the server block)")
}
