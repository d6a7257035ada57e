package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/hms/hms/internal/platform/auth"
)

// LoadPolicy reads the edge authorization policy from a YAML or JSON file.
// An empty path yields the built-in policy. Sections missing from the file
// keep their built-in values.
func LoadPolicy(path string) (auth.Policy, error) {
	policy := auth.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return auth.Policy{}, fmt.Errorf("reading policy file %s: %w", path, err)
	}

	if v.IsSet("routes") {
		var routes auth.RouteConfig
		if err := v.UnmarshalKey("routes", &routes); err != nil {
			return auth.Policy{}, fmt.Errorf("decoding routes: %w", err)
		}
		policy.Routes = routes
	}
	if v.IsSet("rules") {
		var rules []auth.RoleRule
		if err := v.UnmarshalKey("rules", &rules); err != nil {
			return auth.Policy{}, fmt.Errorf("decoding rules: %w", err)
		}
		policy.Rules = rules
	}

	// Compile once here so a bad file fails at start, not on first request.
	if _, err := auth.NewPolicyEngine(policy.Rules); err != nil {
		return auth.Policy{}, err
	}
	return policy, nil
}
