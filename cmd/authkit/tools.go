package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/config"
)

// readSecret returns args[0] or, without args, the first line of in.
func readSecret(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no input")
	}
	return line, nil
}

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := authkit.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", authkit.DefaultBcryptCost, "bcrypt cost")
	return cmd
}

func newTokenCmd(g *globals) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Inspect JWTs",
	}

	var refresh bool
	var secret string
	verify := &cobra.Command{
		Use:   "verify [token]",
		Short: "Validate a token with the configured secrets and print its claims",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSecret(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := config.Load(g.configPath, g.envFiles...)
			if err != nil {
				return err
			}
			issuer := &authkit.TokenIssuer{
				AccessSecret:  cfg.JWT.Secret,
				RefreshSecret: cfg.JWT.RefreshSecret,
				Issuer:        cfg.JWT.Issuer,
			}
			if secret != "" {
				issuer.AccessSecret, issuer.RefreshSecret = secret, secret
			}

			validate := issuer.ValidateAccessToken
			if refresh {
				validate = issuer.ValidateRefreshToken
			}
			claims, err := validate(raw)
			if err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
	verify.Flags().BoolVar(&refresh, "refresh", false, "treat the token as a refresh token")
	verify.Flags().StringVar(&secret, "secret", "", "override the signing secret")

	token.AddCommand(verify)
	return token
}
