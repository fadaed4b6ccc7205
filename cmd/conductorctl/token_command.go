package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Music-Vine/conductor/internal/models"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		email  string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			userRole := models.UserRole(strings.ToUpper(strings.TrimSpace(role)))
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			token, expires, err := a.Tokens.Issue(models.User{ID: userID, Email: email, Role: userRole, Active: true})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id placed in the token subject")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", string(models.RoleReviewer), "Role claim (SUPERADMIN, ADMIN, REVIEWER, VIEWER)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
