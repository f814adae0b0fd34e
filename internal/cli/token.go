package cli

import (
	"fmt"
	"time"

	"chronotech-quiz-service/internal/config"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/identity"
	"github.com/spf13/cobra"
)

// NewTokenCmd issues an identity token for local testing against the API.
func NewTokenCmd(configPath *string) *cobra.Command {
	var id domain.Identity
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
				config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := verifier.Issue(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UID, "uid", "", "user id (token subject)")
	cmd.Flags().StringVar(&id.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&id.Email, "email", "", "email address")
	cmd.Flags().StringVar(&id.PhotoURL, "photo", "", "photo url")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}
