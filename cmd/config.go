package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempohq/tempo/internal/config"
)

// validConfigKeys lists the supported config keys for set/get.
var validConfigKeys = []string{
	"server_url",
	"api_key",
	"sync_timeout",
	"health_check_interval",
}

func isValidConfigKey(key string) bool {
	for _, k := range validConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tempo configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(getBaseDir())
		if err != nil {
			return err
		}
		fmt.Printf("server_url            = %s\n", cfg.ServerURL)
		if cfg.APIKey != "" {
			fmt.Println("api_key               = (set)")
		}
		if d := cfg.SyncTimeout.Duration; d > 0 {
			fmt.Printf("sync_timeout          = %s\n", d)
		}
		if d := cfg.HealthCheckInterval.Duration; d > 0 {
			fmt.Printf("health_check_interval = %s\n", d)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if !isValidConfigKey(key) {
			return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(validConfigKeys, ", "))
		}

		cfg, err := config.Load(getBaseDir())
		if err != nil {
			return err
		}

		switch key {
		case "server_url":
			cfg.ServerURL = val
		case "api_key":
			cfg.APIKey = val
		case "sync_timeout":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", val, err)
			}
			cfg.SyncTimeout.Duration = d
		case "health_check_interval":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", val, err)
			}
			cfg.HealthCheckInterval.Duration = d
		}

		if err := config.Save(getBaseDir(), cfg); err != nil {
			return err
		}
		fmt.Printf("set %s\n", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
