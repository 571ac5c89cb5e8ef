package cli

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"lakegov/internal/domain"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}

	cmd.AddCommand(newAuthTokenCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		subject   string
		role      string
		roleClaim string
		secret    string
		audience  string
		expires   time.Duration
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a dev-mode JWT token and save it to the active profile",
		Long:  "Generate an HS256 JWT token for development and testing. The token is saved to the active profile unless --no-save is given.",
		Example: `  # Generate an engineer token with the default dev secret
  govctl auth token --subject eve --role ENGINEER --secret dev-secret-change-in-production

  # Generate an admin token with custom expiry
  govctl auth token --subject ada --role ADMIN --secret mysecret --expires 48h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			signed, err := signDevToken(subject, r, roleClaim, audience, secret, expires)
			if err != nil {
				return err
			}

			if !noSave {
				cfg, err := LoadUserConfig()
				if err != nil {
					cfg = emptyUserConfig()
				}
				if cfg.CurrentProfile == "" {
					cfg.CurrentProfile = "default"
				}
				p := cfg.Profiles[cfg.CurrentProfile]
				p.Token = signed
				cfg.Profiles[cfg.CurrentProfile] = p
				if err := SaveUserConfig(cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Principal name (JWT sub claim)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleViewer), "Role: VIEWER, ANALYST, ENGINEER or ADMIN")
	cmd.Flags().StringVar(&roleClaim, "role-claim", "role", "Claim that carries the role")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (HS256)")
	cmd.Flags().StringVar(&audience, "audience", "", "Audience (aud claim)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token expiry duration")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Print the token without saving it")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func signDevToken(subject string, role domain.Role, roleClaim, audience, secret string, expires time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     subject,
		"iat":     now.Unix(),
		"exp":     now.Add(expires).Unix(),
		roleClaim: string(role),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
