package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/websoft9/sshmux/internal/config"
)

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "Validate the configuration file and exit without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: per_host_max_connections=%d command_timeout_seconds=%d known_hosts_policy=%s hash_algorithm=%s\n",
				cfg.PerHostMaxConnections, cfg.CommandTimeoutSeconds, cfg.KnownHostsPolicy, cfg.HashAlgorithm)
			return nil
		},
	}
}
