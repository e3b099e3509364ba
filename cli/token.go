package cli

import (
	"fmt"
	"time"

	"l3v3l_server/middleware"
	"l3v3l_server/models"

	"github.com/spf13/cobra"
)

type TokenOptions struct {
	*RootOptions
	Username string
	Role     string
	TTL      time.Duration
}

// NewTokenCommand mints a bearer token for local testing and operators.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config.JWTSecret == "" {
				return errNoJWTSecret
			}
			if opts.Role != models.RoleUser && opts.Role != models.RoleAdmin {
				return fmt.Errorf("invalid role %q: must be %s or %s", opts.Role, models.RoleUser, models.RoleAdmin)
			}
			token, err := middleware.NewAuthenticator(opts.Config.JWTSecret).IssueToken(opts.Username, opts.Role, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Username, "username", "", "token subject (required)")
	cmd.Flags().StringVar(&opts.Role, "role", models.RoleUser, "role claim (user|admin)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
