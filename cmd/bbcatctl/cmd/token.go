package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilhermesalviano/bbcat/internal/auth"
)

const envJWTSecret = "JWT_SECRET"

func tokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signaling token for AUTH_MODE=jwt relays",
		Long: `Mint an HS256 signaling token signed with the relay's JWT_SECRET.

Examples:
  JWT_SECRET=... bbcatctl token --subject kitchen-tablet --ttl 24h
  bbcatctl --token "$(bbcatctl token)" room watch living-room`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or " + envJWTSecret + " is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be > 0")
			}
			if subject == "" {
				host, _ := os.Hostname()
				subject = "bbcatctl@" + host
			}
			tok, err := auth.SignToken(secret, subject, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv(envJWTSecret), "HS256 secret shared with the relay (env "+envJWTSecret+")")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default bbcatctl@<hostname>)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
