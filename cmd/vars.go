package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"rabbitry/config"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Manage variables",
	Long: `Manage variables stored in ~/.rabbitry/vars.txt, or the file named by
$RABBITRY_VARS_FILE. Stored values take precedence over environment
variables and defaults.`,
}

func varStore() *config.VarStore {
	vs, err := config.DefaultVarStore()
	exitOnErr(err)
	return vs
}

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all variables",
	Run: func(cmd *cobra.Command, args []string) {
		vars, err := varStore().Load()
		exitOnErr(err)
		if len(vars) == 0 {
			fmt.Println("No variables set")
			return
		}
		secrets := secretVariables()
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if secrets[name] || looksSecret(name) {
				fmt.Printf("%s=********\n", name)
			} else {
				fmt.Printf("%s=%s\n", name, vars[name])
			}
		}
	},
}

// secretVariables returns the variables the config marks secret. A missing
// or broken config yields none.
func secretVariables() map[string]bool {
	secrets := map[string]bool{}
	cfg, err := config.Load(configPath)
	if err != nil {
		return secrets
	}
	for _, v := range cfg.Variables {
		if v.Secret {
			secrets[v.Name] = true
		}
	}
	return secrets
}

func looksSecret(name string) bool {
	for _, suffix := range []string{"_key", "_token", "_secret", "_password", "_dsn"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

var varsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Get a variable value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value, err := varStore().Get(args[0])
		exitOnErr(err)
		fmt.Println(value)
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Set a variable value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(varStore().Set(args[0], args[1]))
		fmt.Printf("Variable '%s' set\n", args[0])
	},
}

var varsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a variable",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(varStore().Delete(args[0]))
		fmt.Printf("Variable '%s' deleted\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsListCmd)
	varsCmd.AddCommand(varsGetCmd)
	varsCmd.AddCommand(varsSetCmd)
	varsCmd.AddCommand(varsDeleteCmd)
}
