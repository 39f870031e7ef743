package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panyam/authkit/client"
	"github.com/panyam/authkit/client/stores/fs"
)

func (g *globals) authClient() (*client.AuthClient, error) {
	store, err := fs.NewFileStore(g.credentials)
	if err != nil {
		return nil, err
	}
	return client.NewAuthClient(g.serverURL, store, client.WithAPIPrefix(g.apiPrefix)), nil
}

func newLoginCmd(g *globals) *cobra.Command {
	var email, password string
	var register bool
	var name string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a server and store the tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				p, err := readSecret(nil, cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			c, err := g.authClient()
			if err != nil {
				return err
			}
			var cred *client.ServerCredential
			if register {
				cred, err = c.Register(cmd.Context(), email, password, name)
			} else {
				cred, err = c.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", c.ServerURL(), cred.UserEmail)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted on stdin when empty)")
	cmd.Flags().BoolVar(&register, "register", false, "create the account first")
	cmd.Flags().StringVar(&name, "name", "", "display name for --register")
	return cmd
}

func newWhoamiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.authClient()
			if err != nil {
				return err
			}
			if !c.IsLoggedIn() {
				if cred, _ := c.GetCredential(); cred == nil || !cred.HasRefreshToken() {
					return fmt.Errorf("not logged in to %s", c.ServerURL())
				}
			}
			user, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(user)
		},
	}
}

func newLogoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens for a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.authClient()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", c.ServerURL())
			return nil
		},
	}
}
