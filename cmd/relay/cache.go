// cmd/relay/cache.go
//
// Cache commands against the configured backend. A TTL of zero or
// below stores the entry without expiry; when no --ttl is given the
// configured cache.default_ttl applies.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/cache"
)

func newCacheSetCommand(app *appContext) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "cache-set <agent> <key> <value>",
		Short: "Store a value in an agent's cache",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, key, value := args[0], args[1], args[2]
			effective := app.cfg.Cache.DefaultTTL
			if cmd.Flags().Changed("ttl") {
				effective = ttl
			}
			if effective <= 0 {
				effective = cache.NoExpiry
			}
			if err := app.cacheStore().Set(cmd.Context(), agent, key, []byte(value), effective); err != nil {
				return err
			}
			if effective == cache.NoExpiry {
				fmt.Fprintf(cmd.OutOrStdout(), "cached %s/%s (no expiry)\n", agent, key)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cached %s/%s (ttl %s)\n", agent, key, effective)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time-to-live, e.g. 90s or 1h (0 or negative stores without expiry)")
	return cmd
}

func newCacheGetCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-get <agent> <key>",
		Short: "Print a cached value; expired or missing entries are misses",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, key := args[0], args[1]
			value, ok, err := app.cacheStore().Get(cmd.Context(), agent, key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache miss: %s/%s", agent, key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(value))
			return nil
		},
	}
}
