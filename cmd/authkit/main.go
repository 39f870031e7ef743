// Command authkit runs the auth server and talks to a running one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath  string
	envFiles    []string
	serverURL   string
	apiPrefix   string
	credentials string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "authkit",
		Short:         "Authentication server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", os.Getenv("AUTHKIT_CONFIG"), "YAML config file (env AUTHKIT_CONFIG)")
	pf.StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "dotenv files to load, missing ones are skipped")
	pf.StringVar(&g.serverURL, "server", envOr("AUTHKIT_SERVER", "http://localhost:3000"), "server URL for client commands (env AUTHKIT_SERVER)")
	pf.StringVar(&g.apiPrefix, "api-prefix", "/api/v1", "API prefix on the server")
	pf.StringVar(&g.credentials, "credentials", os.Getenv("AUTHKIT_CREDENTIALS"), "credentials file (default <config dir>/authkit/credentials.json)")

	root.AddCommand(
		newServeCmd(g),
		newHashPasswordCmd(),
		newTokenCmd(g),
		newLoginCmd(g),
		newWhoamiCmd(g),
		newLogoutCmd(g),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
