package main

import (
	"fmt"

	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/models"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user identities",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		configPath string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Long:  "Creates an organizer, vendor or admin identity. Username must be unique.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd, configPath, args[0], role)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to gigroom config file")
	cmd.Flags().StringVarP(&role, "role", "r", models.RoleOrganizer, "role: organizer, vendor or admin")
	return cmd
}

func runUserCreate(cmd *cobra.Command, configPath, username, role string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	u, err := db.CreateUser(gormDB, username, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, role %s)\n", u.Username, u.ID, u.Role)
	return nil
}
