package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/postgres"
)

func newKeysCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the search service",
	}
	cmd.AddCommand(newKeysCreateCmd(root), newKeysListCmd(root), newKeysRevokeCmd(root))
	return cmd
}

// withValidator connects to PostgreSQL, makes sure the key table exists and
// runs fn.
func withValidator(ctx context.Context, root *rootOptions, fn func(v *apikey.Validator) error) error {
	db, err := postgres.New(ctx, root.cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := apikey.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(apikey.NewValidator(store, 0, 0))
}

func newKeysCreateCmd(root *rootOptions) *cobra.Command {
	var rateLimit int
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if ttl > 0 {
				t := time.Now().Add(ttl).UTC()
				expiresAt = &t
			}
			return withValidator(cmd.Context(), root, func(v *apikey.Validator) error {
				raw, info, err := v.CreateKey(cmd.Context(), args[0], rateLimit, expiresAt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:         %s\nkey:        %s\nrate limit: %d per %s\n",
					info.ID, raw, info.RateLimit, root.cfg.Auth.RateLimitWindow)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 600, "Requests allowed per rate limit window")
	cmd.Flags().DurationVar(&ttl, "expires-in", 0, "Key lifetime; zero never expires")
	return cmd
}

func newKeysListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withValidator(cmd.Context(), root, func(v *apikey.Validator) error {
				keys, err := v.ListKeys(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), keys)
			})
		},
	}
}

func newKeysRevokeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withValidator(cmd.Context(), root, func(v *apikey.Validator) error {
				if err := v.RevokeKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "revoked")
				return nil
			})
		},
	}
}
