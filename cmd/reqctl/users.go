package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/reqflow/internal/auth"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(newUserAddCommand(ctx), newUserListCommand(ctx))
	return cmd
}

func newUserAddCommand(ctx *commandContext) *cobra.Command {
	var in auth.NewUserInput
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("REQCTL_PASSWORD")
			}
			if in.Password == "" {
				return errors.New("a password is required (--password or REQCTL_PASSWORD)")
			}
			in.Role = requisition.Role(role)
			users, err := ctx.users(cmd.Context())
			if err != nil {
				return err
			}
			user, err := users.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) as %s\n", user.ID, user.Email, requisition.Label(user.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "Account id used in X-User-ID")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "REQUESTER, CHAIRMAN, AUDITOR, STORE, PHARMACY or FINANCE")
	cmd.Flags().StringVar(&in.Password, "password", "", "Signature password")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newUserListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := ctx.users(cmd.Context())
			if err != nil {
				return err
			}
			all, err := users.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(all))
			for _, u := range all {
				active := "yes"
				if !u.IsActive {
					active = "no"
				}
				rows = append(rows, []string{u.ID, u.Name, u.Email, requisition.Label(u.Role), active})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Email", "Role", "Active"}, rows, nil))
			return nil
		},
	}
}
