package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finex/internal/core"
)

func rolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage user roles",
	}
	cmd.AddCommand(assignRoleCmd())
	return cmd
}

func assignRoleCmd() *cobra.Command {
	var admin string

	cmd := &cobra.Command{
		Use:   "assign <principal> <role>",
		Short: "Assign admin, user or guest to a principal",
		Long:  `Assign a role on behalf of an admin. Guests keep their profile but lose ledger access.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, role := core.Principal(args[0]), core.UserRole(args[1])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q: must be admin, user or guest", args[1])
			}

			ctx, err := actingAs(cmd.Context(), admin)
			if err != nil {
				return fmt.Errorf("--as: %w", err)
			}
			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			if err := res.Backend.AssignCallerUserRole(ctx, user, role); err != nil {
				return fmt.Errorf("failed to assign role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&admin, "as", "", "admin principal performing the change")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
