package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Variable declares a value the farm config reads as vars.<name>, such as
// openai_api_key or database_url. Values come from the vars file, then the
// environment, then Default.
type Variable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
	// Secret values are masked by `rabbitry vars list` and must never live in
	// committed HCL.
	Secret bool `hcl:"secret,optional"`
}

// EnvName is the environment variable consulted for v, e.g. OPENAI_API_KEY.
func (v *Variable) EnvName() string {
	return strings.ToUpper(v.Name)
}

func (v *Variable) Validate() error {
	if !hclsyntax.ValidIdentifier(v.Name) {
		return fmt.Errorf("variable %q: name must be a valid identifier", v.Name)
	}
	if v.Secret && v.Default != "" {
		return fmt.Errorf("variable %q: secret values cannot have a default; set it with `rabbitry vars set %s` or %s", v.Name, v.Name, v.EnvName())
	}
	return nil
}
