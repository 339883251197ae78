package cli

import (
	"errors"
	"fmt"

	"github.com/mrrp-bot/mrrp/internal/config"
	"github.com/spf13/cobra"
)

// loadConfigOrDefault loads the config file. Read-only commands fall back to
// the built-in defaults when the default path does not exist; an explicit
// --config must exist.
func loadConfigOrDefault(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, config.ErrConfigNotFound) {
		return nil, err
	}
	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		return nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "no config at %s, using built-in defaults\n", configPath)
	return config.DefaultConfig(), nil
}
