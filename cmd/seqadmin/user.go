package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"dispatchconsole/internal/service"

	"github.com/spf13/cobra"
)

var (
	userEmail       string
	userDisplayName string
	userRoles       []string
	tokenTTL        time.Duration
)

func init() {
	rootCmd.AddCommand(userCmd, tokenCmd, seedRolesCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userCreateCmd.Flags().StringVar(&userDisplayName, "name", "", "display name")
	userCreateCmd.Flags().StringSliceVar(&userRoles, "role", nil, "role to grant (repeatable)")
	_ = userCreateCmd.MarkFlagRequired("email")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage console operators",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an operator and grant roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx := context.Background()
		if err := svc.roles.SeedDefaultRoles(ctx); err != nil {
			return err
		}
		user, err := svc.users.CreateUser(ctx, service.CreateUserRequest{
			Username:    args[0],
			Email:       userEmail,
			DisplayName: userDisplayName,
			Roles:       userRoles,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, user)
		}
		fmt.Fprintf(os.Stdout, "created %s (%s) roles=%v\n", user.Username, user.ID, user.Roles)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Issue an API token for an operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		tok, err := svc.users.IssueToken(context.Background(), args[0], tokenTTL)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, tok)
		}
		fmt.Fprintln(os.Stdout, tok.Token)
		return nil
	},
}

var seedRolesCmd = &cobra.Command{
	Use:   "seed-roles",
	Short: "Create the built-in roles if they are missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()
		return svc.roles.SeedDefaultRoles(context.Background())
	},
}
