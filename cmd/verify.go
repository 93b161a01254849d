package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rabbitry/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory and defaults to --config.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := config.LoadAndValidate(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var warnings []string
		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			key := "api key set"
			if m.APIKey == "" {
				key = "no api key"
			}
			fmt.Printf("  - %s (provider: %s, model: %s, %s)\n", m.Name, m.Provider, m.Model, key)
		}

		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		vs := varStore()
		for _, v := range cfg.Variables {
			resolved, _ := vs.Resolve(&v)
			if resolved == "" && v.Default == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no value; run `rabbitry vars set %s` or export %s", v.Name, v.Name, v.EnvName()))
			}
			if v.Secret {
				state := "not set"
				if resolved != "" {
					state = "set"
				}
				fmt.Printf("  - %s (secret, %s)\n", v.Name, state)
			} else {
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}

		fmt.Printf("Agents\n")
		for _, name := range config.KnownAgents {
			if !cfg.AgentEnabled(name) {
				fmt.Printf("  - %s (disabled)\n", name)
				continue
			}
			model := "none"
			if m := cfg.ModelFor(name); m != nil {
				model = m.Name
			}
			fmt.Printf("  - %s (model: %s)\n", name, model)
		}

		fmt.Printf("Storage: %s", cfg.Storage.Backend)
		if cfg.Storage.Backend == "sqlite" {
			fmt.Printf(" (%s)", cfg.Storage.Path)
		}
		fmt.Printf(", history %s\n", onOff(cfg.Storage.RecordHistory()))
		fmt.Printf("Farm: %s, %s\n", cfg.Farm.DefaultLocation, cfg.Farm.TemperatureUnit)
		fmt.Printf("SQL execution: %s\n", cfg.SQLAgent.Execution)

		if cfg.Farm.OwnerID == "" {
			warnings = append(warnings, "farm.owner_id is empty; owner preferences and builder filters are off")
		}
		if cfg.Weather.APIKey == "" && cfg.AgentEnabled("weather") {
			warnings = append(warnings, "weather.api_key is empty; the weather agent will use mock data")
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
	},
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
