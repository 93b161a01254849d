package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Rabbitry %s

Multi-agent assistant for rabbit farms. Questions are routed to the agents
that can answer them (farm database, weather, care manuals, camera events)
and their answers are merged into one response.

Get started:
  rabbitry verify          Validate the configuration in the current directory
  rabbitry ask "<question>" Ask one question
  rabbitry chat            Start an interactive session
  rabbitry serve           Serve the HTTP and WebSocket API`, Version)
}
