package main

import (
	"fmt"
	"time"

	"github.com/gigroom/gigroom/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		configPath string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue <username>",
		Short: "Issue a signed API token for a user",
		Long:  "Signs a bearer token for the named user with the configured secret. Intended for development and operator scripts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(cmd, configPath, args[0], ttl)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to gigroom config file")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl_hours)")
	return cmd
}

func runTokenIssue(cmd *cobra.Command, configPath, username string, ttl time.Duration) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	u, err := findUser(gormDB, username)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.Auth.TokenTTLHr) * time.Hour
	}
	tok, err := auth.New(gormDB, cfg.Auth.JWTSecret).Issue(u.ID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
